package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facefind/internal/cache"
	"github.com/your-org/facefind/internal/chunk"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

// FaceUpload is the outcome of UploadFace. Detected is false when the image
// held no usable face; the record is kept either way.
type FaceUpload struct {
	Face      *models.FaceRecord
	Detected  bool
	FaceCount int
}

// UploadFace stores a probe image, extracts its embeddings and records them
// under a face owner.
func (s *Service) UploadFace(ctx context.Context, caller, scope, filename string, data []byte) (*FaceUpload, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: scope is required", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	face := &models.FaceRecord{
		UploaderID:  caller,
		Scope:       scope,
		Filename:    filename,
		ContentKey:  "faces/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename)),
		ContentHash: chunk.Sum(data),
	}
	if err := s.store.CreateFace(ctx, face); err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	if err := s.objects.PutObject(ctx, face.ContentKey, data, http.DetectContentType(data)); err != nil {
		s.rollbackFace(face)
		return nil, fmt.Errorf("store face image: %w", err)
	}

	owner := face.Owner()
	vectors, err := s.extract(ctx, owner, data)
	if err != nil {
		s.rollbackFace(face)
		return nil, err
	}

	if len(vectors) == 0 {
		observability.FacesUploaded.WithLabelValues("no_face").Inc()
		slog.Info("face uploaded without detection", "face_id", face.ID, "scope", scope)
		return &FaceUpload{Face: face}, nil
	}

	embeddingID, err := s.store.Insert(ctx, owner, scope, vectors)
	if err != nil {
		s.rollbackFace(face)
		return nil, fmt.Errorf("store face embedding: %w", err)
	}
	if err := s.store.SetFaceEmbedding(ctx, face.ID, &embeddingID, len(vectors)); err != nil {
		s.rollbackFace(face)
		return nil, fmt.Errorf("attach face embedding: %w", err)
	}
	face.EmbeddingID = &embeddingID
	face.FaceCount = len(vectors)
	s.cache.SetEmbedding(ctx, owner, vectors)

	observability.FacesUploaded.WithLabelValues("detected").Inc()
	observability.FacesDetected.WithLabelValues(string(models.OwnerFace)).Add(float64(len(vectors)))
	slog.Info("face uploaded", "face_id", face.ID, "scope", scope, "faces", len(vectors))

	return &FaceUpload{Face: face, Detected: true, FaceCount: len(vectors)}, nil
}

// rollbackFace undoes a failed upload: the record with any embedding, then
// the image. It runs detached from the request context, which may be done.
func (s *Service) rollbackFace(face *models.FaceRecord) {
	ctx := context.Background()
	if err := s.store.DeleteFace(ctx, face.ID); err != nil {
		slog.Warn("rollback face record", "face_id", face.ID, "error", err)
	}
	if err := s.objects.DeleteObjects(ctx, []string{face.ContentKey}); err != nil {
		slog.Warn("rollback face image", "face_id", face.ID, "key", face.ContentKey, "error", err)
	}
}

// GetFace returns a face the caller uploaded.
func (s *Service) GetFace(ctx context.Context, caller string, id int64) (*models.FaceRecord, error) {
	face, err := s.store.GetFace(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, face.UploaderID); err != nil {
		return nil, fmt.Errorf("face %d: %w", id, err)
	}
	return face, nil
}

// MatchResult is a ranked match list. Reason is set when Matches is empty.
type MatchResult struct {
	FaceID    int64
	Scope     string
	Threshold float64
	Matches   []models.Match
	Reason    string
	Cached    bool
}

// MatchFace ranks the files of scope against the caller's face. An empty
// scope means the face's own scope; a nil threshold means the configured one.
func (s *Service) MatchFace(ctx context.Context, caller string, faceID int64, scope string, threshold *float64) (*MatchResult, error) {
	face, err := s.GetFace(ctx, caller, faceID)
	if err != nil {
		return nil, err
	}
	if scope == "" {
		scope = face.Scope
	}
	thr := s.opts.MatchThreshold
	if threshold != nil {
		thr = *threshold
	}
	if thr < 0 || thr > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidInput, thr)
	}

	res := &MatchResult{FaceID: faceID, Scope: scope, Threshold: thr}
	owner := face.Owner()
	key := cache.MatchKey{Query: owner, Scope: scope, Threshold: thr}
	if matches, ok := s.cache.GetMatches(ctx, key); ok {
		res.Matches, res.Cached = matches, true
		if len(matches) == 0 {
			res.Reason = ReasonNoMatches
		}
		return res, nil
	}

	vectors, found, err := s.embedding(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !found {
		res.Matches = []models.Match{}
		res.Reason = ReasonNoFaceDetected
		return res, nil
	}

	matches, err := s.matcher.MatchAll(ctx, vectors, scope, thr)
	if err != nil {
		return nil, fmt.Errorf("match face %d: %w", faceID, err)
	}
	matches, err = s.withContentKeys(ctx, matches)
	if err != nil {
		return nil, err
	}
	s.cache.SetMatches(ctx, key, matches)

	res.Matches = matches
	if len(matches) == 0 {
		res.Reason = ReasonNoMatches
		return res, nil
	}

	s.notify(ctx, models.Notification{
		Type:       models.NotifyMatchFound,
		Scope:      scope,
		UploaderID: face.UploaderID,
		FaceID:     faceID,
		Matches:    len(matches),
	})
	return res, nil
}

// embedding reads an owner's vectors through the cache.
func (s *Service) embedding(ctx context.Context, owner models.Owner) ([][]float32, bool, error) {
	if vectors, ok := s.cache.GetEmbedding(ctx, owner); ok {
		return vectors, true, nil
	}
	vectors, found, err := s.store.GetByOwner(ctx, owner)
	if err != nil {
		return nil, false, fmt.Errorf("load embedding of %s: %w", owner, err)
	}
	if found {
		s.cache.SetEmbedding(ctx, owner, vectors)
	}
	return vectors, found, nil
}

// withContentKeys fills Match.ContentKey and drops files deleted since the scan.
func (s *Service) withContentKeys(ctx context.Context, matches []models.Match) ([]models.Match, error) {
	out := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		f, err := s.store.GetFile(ctx, m.Owner.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load matched file %d: %w", m.Owner.ID, err)
		}
		m.ContentKey = f.ContentKey
		out = append(out, m)
	}
	return out, nil
}

// DeleteFace removes the caller's face, its embeddings and its image.
func (s *Service) DeleteFace(ctx context.Context, caller string, id int64) error {
	face, err := s.GetFace(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFace(ctx, id); err != nil {
		return fmt.Errorf("delete face %d: %w", id, err)
	}
	if err := s.objects.DeleteObjects(ctx, []string{face.ContentKey}); err != nil {
		slog.Warn("delete face image", "face_id", id, "key", face.ContentKey, "error", err)
	}
	s.cache.Invalidate(ctx, face.Owner())
	slog.Info("face deleted", "face_id", id)
	return nil
}
