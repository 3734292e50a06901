package models

import "time"

// FileTask is the message published to NATS for embedding extraction.
type FileTask struct {
	FileID     int64     `json:"file_id"`
	Scope      string    `json:"scope"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Notification types fanned out to WebSocket clients.
const (
	NotifyFileProcessed = "file_processed"
	NotifyMatchFound    = "match_found"
	NotifyFilesDeleted  = "files_deleted"
)

// Notification is published on the NOTIFY stream.
type Notification struct {
	Type       string          `json:"type"`
	Scope      string          `json:"scope"`
	UploaderID string          `json:"uploader_id,omitempty"`
	FileID     int64           `json:"file_id,omitempty"`
	FaceID     int64           `json:"face_id,omitempty"`
	FileIDs    []int64         `json:"file_ids,omitempty"`
	Status     EmbeddingStatus `json:"status,omitempty"`
	FaceCount  int             `json:"face_count,omitempty"`
	Matches    int             `json:"matches,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
