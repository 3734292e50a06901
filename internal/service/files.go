package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facefind/internal/chunk"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

// UploadFile stores an event photo as chunks and queues its extraction.
// The returned record is embedding_pending.
func (s *Service) UploadFile(ctx context.Context, caller, scope, filename string, data []byte) (*models.FileRecord, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: scope is required", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	file := &models.FileRecord{
		UploaderID:  caller,
		Scope:       scope,
		Filename:    filename,
		ContentKey:  "files/" + uuid.NewString(),
		ContentHash: chunk.Sum(data),
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		Version:     1,
		Status:      models.StatusUploaded,
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	manifest, err := chunk.Store(ctx, s.objects, file.ContentKey, data, s.opts.ChunkSize)
	if err != nil {
		s.rollbackFile(file.ID)
		return nil, fmt.Errorf("store file content: %w", err)
	}
	if err := s.store.SaveChunks(ctx, file.ID, manifest); err != nil {
		s.rollbackFile(file.ID)
		return nil, fmt.Errorf("save chunk manifest: %w", err)
	}
	observability.FilesUploaded.WithLabelValues(scope).Inc()

	if err := s.enqueue(ctx, file); err != nil {
		return nil, err
	}
	slog.Info("file uploaded", "file_id", file.ID, "scope", scope, "size", file.Size, "chunks", len(manifest))
	return file, nil
}

func (s *Service) rollbackFile(id int64) {
	if err := s.store.DeleteFile(context.Background(), id); err != nil {
		slog.Warn("rollback file record", "file_id", id, "error", err)
	}
}

// enqueue moves file to embedding_pending and publishes its task.
func (s *Service) enqueue(ctx context.Context, file *models.FileRecord) error {
	if err := s.store.UpdateFileStatus(ctx, file.ID, models.StatusEmbeddingPending); err != nil {
		return fmt.Errorf("mark file %d pending: %w", file.ID, err)
	}
	file.Status = models.StatusEmbeddingPending
	if s.publisher == nil {
		return nil
	}
	task := models.FileTask{FileID: file.ID, Scope: file.Scope, EnqueuedAt: time.Now().UTC()}
	if err := s.publisher.PublishFileTask(ctx, task); err != nil {
		return fmt.Errorf("queue file %d: %w", file.ID, err)
	}
	return nil
}

// ProcessFile runs extraction for one queued file. Redelivered tasks for
// files that already finished, or were deleted, are skipped. Extraction
// failures and corrupt content finish the file as no_face_detected.
func (s *Service) ProcessFile(ctx context.Context, task models.FileTask) error {
	file, err := s.store.GetFile(ctx, task.FileID)
	if errors.Is(err, models.ErrNotFound) {
		slog.Info("skipping task for deleted file", "file_id", task.FileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load file %d: %w", task.FileID, err)
	}
	if file.Status != models.StatusEmbeddingPending {
		slog.Info("skipping task for settled file", "file_id", file.ID, "status", file.Status)
		return nil
	}

	owner := file.Owner()
	var vectors [][]float32

	manifest, err := s.store.ListChunks(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("load chunk manifest of file %d: %w", file.ID, err)
	}
	data, err := chunk.Assemble(ctx, s.objects, manifest)
	switch {
	case errors.Is(err, chunk.ErrCorrupt):
		observability.ExtractionFailures.WithLabelValues("corrupt").Inc()
		slog.Warn("file content corrupt, treating as no face detected", "file_id", file.ID, "error", err)
	case err != nil:
		return fmt.Errorf("assemble file %d: %w", file.ID, err)
	default:
		vectors, err = s.extract(ctx, owner, data)
		if err != nil {
			return err
		}
	}

	var embeddingID *int64
	if len(vectors) > 0 {
		id, err := s.store.Insert(ctx, owner, file.Scope, vectors)
		switch {
		case err == nil:
			embeddingID = &id
			observability.FacesDetected.WithLabelValues(string(models.OwnerFile)).Add(float64(len(vectors)))
		case errors.Is(err, models.ErrNotFound):
			slog.Info("file deleted during extraction", "file_id", file.ID)
			return nil
		case permanentStoreError(err):
			// Redelivery would fail the same way; finish the file instead.
			observability.ExtractionFailures.WithLabelValues("store").Inc()
			slog.Warn("embedding rejected by store, treating as no face detected", "file_id", file.ID, "error", err)
			vectors = nil
		default:
			return fmt.Errorf("store embedding of file %d: %w", file.ID, err)
		}
	}
	if embeddingID == nil {
		if err := s.store.Delete(ctx, owner); err != nil {
			return fmt.Errorf("clear embedding of file %d: %w", file.ID, err)
		}
	}

	if err := s.store.AttachEmbedding(ctx, file.ID, embeddingID, len(vectors)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			if err := s.store.Delete(ctx, owner); err != nil {
				slog.Warn("clear embedding of deleted file", "file_id", file.ID, "error", err)
			}
			return nil
		}
		return fmt.Errorf("attach embedding of file %d: %w", file.ID, err)
	}

	s.cache.Invalidate(ctx, owner)
	s.cache.InvalidateScope(ctx, file.Scope)

	status := models.StatusNoFaceDetected
	if embeddingID != nil {
		status = models.StatusEmbeddingAttached
		s.cache.SetEmbedding(ctx, owner, vectors)
	}
	slog.Info("file processed", "file_id", file.ID, "status", status, "faces", len(vectors), "attempt", task.Attempt)

	s.notify(ctx, models.Notification{
		Type:       models.NotifyFileProcessed,
		Scope:      file.Scope,
		UploaderID: file.UploaderID,
		FileID:     file.ID,
		Status:     status,
		FaceCount:  len(vectors),
	})
	return nil
}

// permanentStoreError reports store rejections of the vectors themselves.
func permanentStoreError(err error) bool {
	return errors.Is(err, models.ErrDimensionMismatch) || errors.Is(err, models.ErrEmptyVector)
}

// GetFile returns a file the caller uploaded.
func (s *Service) GetFile(ctx context.Context, caller string, id int64) (*models.FileRecord, error) {
	file, err := s.store.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, file.UploaderID); err != nil {
		return nil, fmt.Errorf("file %d: %w", id, err)
	}
	return file, nil
}

// ListFiles lists the caller's files, optionally narrowed to scope.
func (s *Service) ListFiles(ctx context.Context, caller, scope string) ([]models.FileRecord, error) {
	return s.store.ListFiles(ctx, models.FileFilter{UploaderID: caller, Scope: scope})
}

// FileContent reassembles and verifies a file's chunks.
func (s *Service) FileContent(ctx context.Context, caller string, id int64) (*models.FileRecord, []byte, error) {
	file, err := s.GetFile(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := s.store.ListChunks(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load chunk manifest of file %d: %w", id, err)
	}
	data, err := chunk.Assemble(ctx, s.objects, manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("assemble file %d: %w", id, err)
	}
	return file, data, nil
}

// DeleteFile removes one of the caller's files.
func (s *Service) DeleteFile(ctx context.Context, caller string, id int64) error {
	file, err := s.GetFile(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.deleteFile(ctx, file); err != nil {
		return err
	}
	s.afterDelete(ctx, []*models.FileRecord{file})
	return nil
}

// DeleteFiles removes the named files and returns the ids actually deleted,
// in ascending order. Unknown ids are skipped. If any id belongs to another
// uploader nothing is deleted and ErrUnauthorized is returned.
func (s *Service) DeleteFiles(ctx context.Context, caller string, ids []int64) ([]int64, error) {
	var targets []*models.FileRecord
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		file, err := s.store.GetFile(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load file %d: %w", id, err)
		}
		if err := authorize(caller, file.UploaderID); err != nil {
			return nil, fmt.Errorf("file %d: %w", id, err)
		}
		targets = append(targets, file)
	}

	deleted := make([]int64, 0, len(targets))
	var done []*models.FileRecord
	for _, file := range targets {
		err := s.deleteFile(ctx, file)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			s.afterDelete(ctx, done)
			return deleted, err
		}
		deleted = append(deleted, file.ID)
		done = append(done, file)
	}
	s.afterDelete(ctx, done)

	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })
	return deleted, nil
}

// deleteFile cascades a file to its manifest, embeddings, chunk objects and
// cache entries. Object removal failures are left to the orphan sweep.
func (s *Service) deleteFile(ctx context.Context, file *models.FileRecord) error {
	manifest, err := s.store.ListChunks(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("load chunk manifest of file %d: %w", file.ID, err)
	}
	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete file %d: %w", file.ID, err)
	}

	keys := make([]string, len(manifest))
	for i, c := range manifest {
		keys[i] = c.Key
	}
	if len(keys) > 0 {
		if err := s.objects.DeleteObjects(ctx, keys); err != nil {
			slog.Warn("delete file chunks", "file_id", file.ID, "error", err)
		}
	}
	s.cache.Invalidate(ctx, file.Owner())
	return nil
}

// afterDelete drops stale match results and notifies once per scope.
func (s *Service) afterDelete(ctx context.Context, files []*models.FileRecord) {
	byScope := make(map[string][]int64)
	uploader := make(map[string]string)
	for _, f := range files {
		byScope[f.Scope] = append(byScope[f.Scope], f.ID)
		uploader[f.Scope] = f.UploaderID
	}
	for scope, ids := range byScope {
		s.cache.InvalidateScope(ctx, scope)
		slog.Info("files deleted", "scope", scope, "file_ids", ids)
		s.notify(ctx, models.Notification{
			Type:       models.NotifyFilesDeleted,
			Scope:      scope,
			UploaderID: uploader[scope],
			FileIDs:    ids,
		})
	}
}

// Reembed queues extraction again for every file in scope. progress, if
// set, is called after each file.
func (s *Service) Reembed(ctx context.Context, scope string, progress func(done, total int)) (int, error) {
	files, err := s.store.ListFiles(ctx, models.FileFilter{Scope: scope})
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}
	queued := 0
	for i := range files {
		f := &files[i]
		if f.Status == models.StatusDeleted {
			continue
		}
		if err := s.enqueue(ctx, f); err != nil {
			return queued, err
		}
		queued++
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	return queued, nil
}

// ProcessPending runs extraction inline for every embedding_pending file in
// scope. It serves operators without a task queue.
func (s *Service) ProcessPending(ctx context.Context, scope string, progress func(done, total int)) (int, error) {
	files, err := s.store.ListFiles(ctx, models.FileFilter{Scope: scope, Status: models.StatusEmbeddingPending})
	if err != nil {
		return 0, fmt.Errorf("list pending files: %w", err)
	}
	for i, f := range files {
		task := models.FileTask{FileID: f.ID, Scope: f.Scope, Attempt: 1, EnqueuedAt: time.Now().UTC()}
		if err := s.ProcessFile(ctx, task); err != nil {
			return i, err
		}
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	return len(files), nil
}
