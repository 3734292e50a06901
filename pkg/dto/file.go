package dto

type FileUploadResponse struct {
	FileID int64  `json:"file_id"`
	Status string `json:"status"`
}

type FileResponse struct {
	ID          int64  `json:"id"`
	UploaderID  string `json:"uploader_id"`
	Scope       string `json:"scope"`
	Filename    string `json:"filename"`
	ContentKey  string `json:"content_key"`
	ContentHash string `json:"content_hash"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Version     int    `json:"version"`
	Status      string `json:"status"`
	FaceCount   int    `json:"face_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type FileListResponse struct {
	Files []FileResponse `json:"files"`
	Total int            `json:"total"`
}

type DeleteFilesRequest struct {
	FileIDs []int64 `json:"file_ids" binding:"required,min=1"`
}

type DeleteFilesResponse struct {
	DeletedFileIDs []int64 `json:"deleted_file_ids"`
}
