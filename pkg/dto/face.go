package dto

type FaceUploadResponse struct {
	FaceID       int64  `json:"face_id"`
	Scope        string `json:"scope"`
	ContentKey   string `json:"content_key"`
	FaceDetected bool   `json:"face_detected"`
	FaceCount    int    `json:"face_count"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type MatchQuery struct {
	Scope     string   `form:"scope"`
	Threshold *float64 `form:"threshold" binding:"omitempty,min=0,max=1"`
}

type MatchItem struct {
	FileID     int64   `json:"file_id"`
	Score      float64 `json:"score"`
	ContentKey string  `json:"content_key"`
}

// MatchResponse carries Reason instead of an error when Matches is empty.
type MatchResponse struct {
	FaceID    int64       `json:"face_id"`
	Scope     string      `json:"scope"`
	Threshold float64     `json:"threshold"`
	Matches   []MatchItem `json:"matches"`
	Total     int         `json:"total"`
	Reason    string      `json:"reason,omitempty"`
	Cached    bool        `json:"cached"`
}
