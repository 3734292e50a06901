package dto

// WSEvent is pushed to WebSocket clients subscribed to a scope.
type WSEvent struct {
	Type      string  `json:"type"`
	Scope     string  `json:"scope"`
	FileID    int64   `json:"file_id,omitempty"`
	FaceID    int64   `json:"face_id,omitempty"`
	FileIDs   []int64 `json:"file_ids,omitempty"`
	Status    string  `json:"status,omitempty"`
	FaceCount int     `json:"face_count,omitempty"`
	Matches   int     `json:"matches,omitempty"`
	Timestamp string  `json:"timestamp"`
}
