// Package storage persists face and file records, their content chunk
// manifests and their embedding vectors.
package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facefind/internal/models"
)

// VectorStore owns embedding storage. Each owner has at most one embedding
// record holding zero or more vectors of the same dimension.
type VectorStore interface {
	// Insert replaces any embedding record of owner and returns the new
	// record id. Fails with ErrEmptyVector for no vectors or an empty vector,
	// with ErrDimensionMismatch when a length differs from the store's D and
	// with ErrNotFound when owner has no face or file record.
	Insert(ctx context.Context, owner models.Owner, scope string, vectors [][]float32) (int64, error)
	// GetByOwner reports found=false when owner exists but has no embedding
	// and fails with ErrNotFound when owner has no record.
	GetByOwner(ctx context.Context, owner models.Owner) (vectors [][]float32, found bool, err error)
	// GetByScope returns every stored vector tagged with scope.
	GetByScope(ctx context.Context, scope string) ([]models.ScopedVector, error)
	// Delete removes all embeddings of owner. Deleting nothing is not an error.
	Delete(ctx context.Context, owner models.Owner) error
	// DuplicateCandidates returns one candidate per live file matching filter,
	// carrying the file's first vector if it has one.
	DuplicateCandidates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateCandidate, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	VectorStore

	CreateFace(ctx context.Context, f *models.FaceRecord) error
	GetFace(ctx context.Context, id int64) (*models.FaceRecord, error)
	SetFaceEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error
	// DeleteFace removes the face and its embeddings.
	DeleteFace(ctx context.Context, id int64) error

	CreateFile(ctx context.Context, f *models.FileRecord) error
	GetFile(ctx context.Context, id int64) (*models.FileRecord, error)
	ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error)
	// UpdateFileStatus fails with ErrInvalidTransition when the current
	// status may not move to next.
	UpdateFileStatus(ctx context.Context, id int64, next models.EmbeddingStatus) error
	// AttachEmbedding finishes extraction: embedding_attached when
	// embeddingID is set, no_face_detected otherwise.
	AttachEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error
	// DeleteFile removes the file, its chunk manifest and its embeddings.
	DeleteFile(ctx context.Context, id int64) error

	SaveChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error
	ListChunks(ctx context.Context, fileID int64) ([]models.Chunk, error)
	// ContentKeys lists the content keys of every face and file record.
	ContentKeys(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// validateVectors checks a batch against the store dimension dim. A dim of
// zero means not yet established; the batch dimension is returned.
func validateVectors(vectors [][]float32, dim int) (int, error) {
	if len(vectors) == 0 {
		return 0, fmt.Errorf("%w: no vectors", models.ErrEmptyVector)
	}
	want := dim
	if want == 0 {
		want = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("%w: vector %d", models.ErrEmptyVector, i)
		}
		if len(v) != want {
			return 0, fmt.Errorf("%w: vector %d has %d, store has %d", models.ErrDimensionMismatch, i, len(v), want)
		}
	}
	return want, nil
}

// ownerTable names the table holding the records of kind. Owners are
// validated before this is called.
func ownerTable(kind models.OwnerKind) string {
	if kind == models.OwnerFace {
		return "faces"
	}
	return "files"
}

func parseVector(s string) ([]float32, error) {
	var v pgvector.Vector
	if err := v.Scan([]byte(s)); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return v.Slice(), nil
}

func embeddingStatus(embeddingID *int64) models.EmbeddingStatus {
	if embeddingID != nil {
		return models.StatusEmbeddingAttached
	}
	return models.StatusNoFaceDetected
}

func statusStrings(in []models.EmbeddingStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
