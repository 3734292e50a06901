package dto

type DuplicateQuery struct {
	Scope      string `form:"scope"`
	UploaderID string `form:"uploader_id"`
}

type PairScore struct {
	A          int64   `json:"a"`
	B          int64   `json:"b"`
	Similarity float64 `json:"similarity"`
}

type DuplicateGroup struct {
	FileIDs    []int64     `json:"file_ids"`
	Similarity float64     `json:"similarity"`
	Pairs      []PairScore `json:"pairs"`
	Paths      []string    `json:"paths"`
	Reason     string      `json:"reason"`
}

type DuplicatesResponse struct {
	Groups []DuplicateGroup `json:"groups"`
	Total  int              `json:"total"`
	Reason string           `json:"reason,omitempty"`
}
