package models

import "time"

// FaceRecord is an uploaded probe face (an attendee's selfie). It is
// immutable once created and removed only by explicit cleanup.
type FaceRecord struct {
	ID          int64     `json:"id" db:"id"`
	UploaderID  string    `json:"uploader_id" db:"uploader_id"`
	Scope       string    `json:"scope" db:"scope"`
	Filename    string    `json:"filename" db:"filename"`
	ContentKey  string    `json:"content_key" db:"content_key"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	EmbeddingID *int64    `json:"embedding_id,omitempty" db:"embedding_id"`
	FaceCount   int       `json:"face_count" db:"face_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (f *FaceRecord) Owner() Owner { return FaceOwner(f.ID) }

// FileRecord is an uploaded event photo. EmbeddingID stays nil until
// extraction attaches vectors; it remains nil when no face was detected.
type FileRecord struct {
	ID          int64           `json:"id" db:"id"`
	UploaderID  string          `json:"uploader_id" db:"uploader_id"`
	Scope       string          `json:"scope" db:"scope"`
	Filename    string          `json:"filename" db:"filename"`
	ContentKey  string          `json:"content_key" db:"content_key"`
	ContentHash string          `json:"content_hash" db:"content_hash"`
	ContentType string          `json:"content_type" db:"content_type"`
	Size        int64           `json:"size" db:"size"`
	Version     int             `json:"version" db:"version"`
	Status      EmbeddingStatus `json:"status" db:"status"`
	EmbeddingID *int64          `json:"embedding_id,omitempty" db:"embedding_id"`
	FaceCount   int             `json:"face_count" db:"face_count"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func (f *FileRecord) Owner() Owner { return FileOwner(f.ID) }

// FileFilter narrows file listings. Empty fields match everything.
type FileFilter struct {
	UploaderID string
	Scope      string
	Status     EmbeddingStatus
}

// Chunk is one stored piece of a file's content, in manifest order.
type Chunk struct {
	FileID int64  `json:"file_id" db:"file_id"`
	Index  int    `json:"index" db:"chunk_index"`
	Key    string `json:"key" db:"object_key"`
	SHA256 string `json:"sha256" db:"sha256"`
	Size   int64  `json:"size" db:"size"`
}
