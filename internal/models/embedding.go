package models

import "time"

// EmbeddingRecord groups every vector extracted for one owner.
type EmbeddingRecord struct {
	ID        int64       `json:"id" db:"id"`
	Owner     Owner       `json:"owner"`
	Scope     string      `json:"scope" db:"scope"`
	Dim       int         `json:"dim" db:"dim"`
	Vectors   [][]float32 `json:"vectors"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// ScopedVector is one stored vector as seen by a scope scan.
type ScopedVector struct {
	Owner    Owner
	Scope    string
	Position int
	Vector   []float32
}

// Match is one ranked candidate for a query face.
type Match struct {
	Owner      Owner   `json:"owner"`
	Score      float64 `json:"score"`
	ContentKey string  `json:"content_key,omitempty"`
}

// PairScore is a single qualifying pair inside a DuplicateGroup.
type PairScore struct {
	A          int64   `json:"a"`
	B          int64   `json:"b"`
	Similarity float64 `json:"similarity"`
}

// Reasons a DuplicateGroup was formed.
const (
	DuplicateByEmbedding   = "embedding"
	DuplicateByContentHash = "content_hash"
)

// DuplicateGroup is a set of two or more file ids whose content is near-identical.
// Similarity is the lowest pair score that joined the group.
type DuplicateGroup struct {
	FileIDs    []int64     `json:"file_ids"`
	Similarity float64     `json:"similarity"`
	Pairs      []PairScore `json:"pairs"`
	Paths      []string    `json:"paths,omitempty"`
	Reason     string      `json:"reason"`
}

// DuplicateCandidate is one file in a duplicate scan pool. Vector is the
// file's representative (first) face vector and is nil when no face was detected.
type DuplicateCandidate struct {
	FileID      int64
	UploaderID  string
	Scope       string
	ContentKey  string
	ContentHash string
	Vector      []float32
}
