package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/facefind/internal/models"
)

// MemoryStore keeps everything in process. Used by tests and single-node
// demos; ids come from atomic counters.
type MemoryStore struct {
	mu sync.RWMutex

	dim int

	faceSeq      atomic.Int64
	fileSeq      atomic.Int64
	embeddingSeq atomic.Int64

	faces      map[int64]models.FaceRecord
	files      map[int64]models.FileRecord
	chunks     map[int64][]models.Chunk
	embeddings map[models.Owner]models.EmbeddingRecord
}

// NewMemoryStore creates an empty store. dim fixes the embedding dimension;
// zero means it is taken from the first inserted vector.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:        dim,
		faces:      make(map[int64]models.FaceRecord),
		files:      make(map[int64]models.FileRecord),
		chunks:     make(map[int64][]models.Chunk),
		embeddings: make(map[models.Owner]models.EmbeddingRecord),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

// --- Embeddings ---

func (s *MemoryStore) Insert(ctx context.Context, owner models.Owner, scope string, vectors [][]float32) (int64, error) {
	if !owner.Valid() {
		return 0, fmt.Errorf("insert embedding: invalid owner %v", owner)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := validateVectors(vectors, s.establishedDim())
	if err != nil {
		return 0, err
	}
	if !s.ownerExists(owner) {
		return 0, fmt.Errorf("insert embedding %s: %w", owner, models.ErrNotFound)
	}

	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		copied[i] = append([]float32(nil), v...)
	}
	rec := models.EmbeddingRecord{
		ID:        s.embeddingSeq.Add(1),
		Owner:     owner,
		Scope:     scope,
		Dim:       dim,
		Vectors:   copied,
		CreatedAt: time.Now().UTC(),
	}
	s.embeddings[owner] = rec
	return rec.ID, nil
}

// establishedDim must be called with s.mu held.
func (s *MemoryStore) establishedDim() int {
	if s.dim > 0 {
		return s.dim
	}
	for _, rec := range s.embeddings {
		return rec.Dim
	}
	return 0
}

// ownerExists must be called with s.mu held.
func (s *MemoryStore) ownerExists(owner models.Owner) bool {
	var ok bool
	switch owner.Kind {
	case models.OwnerFace:
		_, ok = s.faces[owner.ID]
	case models.OwnerFile:
		_, ok = s.files[owner.ID]
	}
	return ok
}

func (s *MemoryStore) GetByOwner(ctx context.Context, owner models.Owner) ([][]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ownerExists(owner) {
		return nil, false, fmt.Errorf("embedding of %s: %w", owner, models.ErrNotFound)
	}
	rec, ok := s.embeddings[owner]
	if !ok {
		return nil, false, nil
	}
	out := make([][]float32, len(rec.Vectors))
	for i, v := range rec.Vectors {
		out[i] = append([]float32(nil), v...)
	}
	return out, true, nil
}

func (s *MemoryStore) GetByScope(ctx context.Context, scope string) ([]models.ScopedVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ScopedVector
	for _, rec := range s.embeddings {
		if rec.Scope != scope {
			continue
		}
		for pos, v := range rec.Vectors {
			out = append(out, models.ScopedVector{Owner: rec.Owner, Scope: rec.Scope, Position: pos, Vector: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			if out[i].Owner.Kind != out[j].Owner.Kind {
				return out[i].Owner.Kind < out[j].Owner.Kind
			}
			return out[i].Owner.ID < out[j].Owner.ID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, owner models.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.embeddings, owner)
	return nil
}

func (s *MemoryStore) DuplicateCandidates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DuplicateCandidate
	for _, f := range s.files {
		if !matchesFilter(f, filter) {
			continue
		}
		c := models.DuplicateCandidate{
			FileID:      f.ID,
			UploaderID:  f.UploaderID,
			Scope:       f.Scope,
			ContentKey:  f.ContentKey,
			ContentHash: f.ContentHash,
		}
		if rec, ok := s.embeddings[f.Owner()]; ok && len(rec.Vectors) > 0 {
			c.Vector = rec.Vectors[0]
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func matchesFilter(f models.FileRecord, filter models.FileFilter) bool {
	if filter.Scope != "" && f.Scope != filter.Scope {
		return false
	}
	if filter.UploaderID != "" && f.UploaderID != filter.UploaderID {
		return false
	}
	if filter.Status != "" && f.Status != filter.Status {
		return false
	}
	return true
}

// --- Faces ---

func (s *MemoryStore) CreateFace(ctx context.Context, f *models.FaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.faceSeq.Add(1)
	f.CreatedAt = time.Now().UTC()
	s.faces[f.ID] = *f
	return nil
}

func (s *MemoryStore) GetFace(ctx context.Context, id int64) (*models.FaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.faces[id]
	if !ok {
		return nil, fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) SetFaceEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.faces[id]
	if !ok {
		return fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	f.EmbeddingID = embeddingID
	f.FaceCount = faceCount
	s.faces[id] = f
	return nil
}

func (s *MemoryStore) DeleteFace(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.faces[id]; !ok {
		return fmt.Errorf("face %d: %w", id, models.ErrNotFound)
	}
	delete(s.faces, id)
	delete(s.embeddings, models.FaceOwner(id))
	return nil
}

// --- Files ---

func (s *MemoryStore) CreateFile(ctx context.Context, f *models.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	f.ID = s.fileSeq.Add(1)
	if f.Status == "" {
		f.Status = models.StatusUploaded
	}
	if f.Version == 0 {
		f.Version = 1
	}
	f.CreatedAt = now
	f.UpdatedAt = now
	s.files[f.ID] = *f
	return nil
}

func (s *MemoryStore) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.FileRecord
	for _, f := range s.files {
		if matchesFilter(f, filter) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateFileStatus(ctx context.Context, id int64, next models.EmbeddingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, next, func(f *models.FileRecord) {})
}

func (s *MemoryStore) AttachEmbedding(ctx context.Context, id int64, embeddingID *int64, faceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, embeddingStatus(embeddingID), func(f *models.FileRecord) {
		f.EmbeddingID = embeddingID
		f.FaceCount = faceCount
	})
}

// transition must be called with s.mu held.
func (s *MemoryStore) transition(id int64, next models.EmbeddingStatus, apply func(*models.FileRecord)) error {
	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	if !f.Status.CanTransition(next) {
		return fmt.Errorf("file %d %s -> %s: %w", id, f.Status, next, models.ErrInvalidTransition)
	}
	f.Status = next
	f.UpdatedAt = time.Now().UTC()
	apply(&f)
	s.files[id] = f
	return nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file %d: %w", id, models.ErrNotFound)
	}
	delete(s.files, id)
	delete(s.chunks, id)
	delete(s.embeddings, models.FileOwner(id))
	return nil
}

// --- Chunks ---

func (s *MemoryStore) SaveChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return fmt.Errorf("file %d: %w", fileID, models.ErrNotFound)
	}
	stored := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.FileID = fileID
		stored[i] = c
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	s.chunks[fileID] = stored
	return nil
}

func (s *MemoryStore) ListChunks(ctx context.Context, fileID int64) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Chunk(nil), s.chunks[fileID]...), nil
}

func (s *MemoryStore) ContentKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.faces)+len(s.files))
	for _, f := range s.faces {
		keys = append(keys, f.ContentKey)
	}
	for _, f := range s.files {
		keys = append(keys, f.ContentKey)
	}
	sort.Strings(keys)
	return keys, nil
}
