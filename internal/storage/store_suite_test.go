package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/facefind/internal/models"
)

func vec(dim int, vals ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, vals)
	return v
}

func createFile(t *testing.T, s Store, scope string) models.Owner {
	t.Helper()
	f := &models.FileRecord{UploaderID: "u1", Scope: scope}
	if err := s.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	return f.Owner()
}

func createFace(t *testing.T, s Store, scope string) models.Owner {
	t.Helper()
	f := &models.FaceRecord{UploaderID: "u1", Scope: scope}
	if err := s.CreateFace(context.Background(), f); err != nil {
		t.Fatalf("CreateFace failed: %v", err)
	}
	return f.Owner()
}

// runStoreSuite exercises the Store contract. newStore must return an empty
// store whose dimension is inferred from the first insert.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("InsertAndGetByOwner", func(t *testing.T) {
		s := newStore(t)
		owner := createFile(t, s, "E1")

		id, err := s.Insert(ctx, owner, "E1", [][]float32{vec(4, 1), vec(4, 0, 1)})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id <= 0 {
			t.Errorf("expected positive embedding id, got %d", id)
		}

		got, found, err := s.GetByOwner(ctx, owner)
		if err != nil {
			t.Fatalf("GetByOwner failed: %v", err)
		}
		if !found || len(got) != 2 {
			t.Fatalf("expected 2 vectors, got found=%v len=%d", found, len(got))
		}
		if got[0][0] != 1 || got[1][1] != 1 {
			t.Errorf("vectors not returned in insert order: %v", got)
		}
	})

	t.Run("InsertReplacesAndIssuesNewID", func(t *testing.T) {
		s := newStore(t)
		owner := createFace(t, s, "E1")

		first, err := s.Insert(ctx, owner, "E1", [][]float32{vec(4, 1)})
		if err != nil {
			t.Fatal(err)
		}
		second, err := s.Insert(ctx, owner, "E1", [][]float32{vec(4, 0, 0, 1)})
		if err != nil {
			t.Fatal(err)
		}
		if second <= first {
			t.Errorf("expected monotonically issued ids, got %d then %d", first, second)
		}
		got, _, err := s.GetByOwner(ctx, owner)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0][2] != 1 {
			t.Errorf("expected replaced vector, got %v", got)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Insert(ctx, createFile(t, s, "E1"), "E1", [][]float32{vec(512, 1)}); err != nil {
			t.Fatal(err)
		}
		_, err := s.Insert(ctx, createFile(t, s, "E1"), "E1", [][]float32{vec(128, 1)})
		if !errors.Is(err, models.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
		_, err = s.Insert(ctx, createFile(t, s, "E1"), "E1", [][]float32{vec(512, 1), vec(511, 1)})
		if !errors.Is(err, models.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch for mixed batch, got %v", err)
		}
	})

	t.Run("EmptyVectors", func(t *testing.T) {
		s := newStore(t)
		owner := createFile(t, s, "E1")
		for name, vectors := range map[string][][]float32{
			"none":  nil,
			"empty": {{}},
		} {
			if _, err := s.Insert(ctx, owner, "E1", vectors); !errors.Is(err, models.ErrEmptyVector) {
				t.Errorf("%s: expected ErrEmptyVector, got %v", name, err)
			}
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		owner := createFile(t, s, "E1")
		if _, err := s.Insert(ctx, owner, "E1", [][]float32{vec(4, 1)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, owner); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, owner); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		_, found, err := s.GetByOwner(ctx, owner)
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Error("expected absent after delete")
		}
		pool, err := s.GetByScope(ctx, "E1")
		if err != nil {
			t.Fatal(err)
		}
		if len(pool) != 0 {
			t.Errorf("deleted owner still in scope pool: %+v", pool)
		}
	})

	t.Run("UnknownOwnerIsNotFound", func(t *testing.T) {
		s := newStore(t)
		known := createFile(t, s, "E1")
		if _, found, err := s.GetByOwner(ctx, known); err != nil || found {
			t.Fatalf("owner without embedding: found=%v err=%v", found, err)
		}

		for _, o := range []models.Owner{models.FileOwner(known.ID + 100), models.FaceOwner(known.ID)} {
			if _, _, err := s.GetByOwner(ctx, o); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("GetByOwner(%s): expected ErrNotFound, got %v", o, err)
			}
			if _, err := s.Insert(ctx, o, "E1", [][]float32{vec(4, 1)}); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("Insert(%s): expected ErrNotFound, got %v", o, err)
			}
		}
		pool, err := s.GetByScope(ctx, "E1")
		if err != nil {
			t.Fatal(err)
		}
		if len(pool) != 0 {
			t.Errorf("rejected inserts left vectors behind: %+v", pool)
		}
	})

	t.Run("GetByScope", func(t *testing.T) {
		s := newStore(t)
		mustInsert := func(o models.Owner, scope string, vs ...[]float32) {
			t.Helper()
			if _, err := s.Insert(ctx, o, scope, vs); err != nil {
				t.Fatal(err)
			}
		}
		other := createFile(t, s, "E2")
		mustInsert(createFile(t, s, "E1"), "E1", vec(4, 1), vec(4, 0, 1))
		mustInsert(createFile(t, s, "E1"), "E1", vec(4, 1))
		mustInsert(other, "E2", vec(4, 1))
		mustInsert(createFace(t, s, "E1"), "E1", vec(4, 1))

		pool, err := s.GetByScope(ctx, "E1")
		if err != nil {
			t.Fatal(err)
		}
		if len(pool) != 4 {
			t.Fatalf("expected 4 vectors in E1, got %d", len(pool))
		}
		for _, sv := range pool {
			if sv.Scope != "E1" {
				t.Errorf("vector from scope %q leaked into E1", sv.Scope)
			}
			if sv.Owner == other {
				t.Errorf("%s belongs to E2", other)
			}
		}
	})

	t.Run("FileLifecycle", func(t *testing.T) {
		s := newStore(t)
		f := &models.FileRecord{UploaderID: "u1", Scope: "E1", Filename: "a.jpg", ContentKey: "files/a", ContentHash: "h1"}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatalf("CreateFile failed: %v", err)
		}
		if f.ID <= 0 || f.Status != models.StatusUploaded || f.Version != 1 {
			t.Fatalf("unexpected created file: %+v", f)
		}

		err := s.AttachEmbedding(ctx, f.ID, nil, 0)
		if !errors.Is(err, models.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition from uploaded, got %v", err)
		}
		if err := s.UpdateFileStatus(ctx, f.ID, models.StatusEmbeddingPending); err != nil {
			t.Fatalf("UpdateFileStatus failed: %v", err)
		}

		embID, err := s.Insert(ctx, f.Owner(), f.Scope, [][]float32{vec(4, 1)})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.AttachEmbedding(ctx, f.ID, &embID, 1); err != nil {
			t.Fatalf("AttachEmbedding failed: %v", err)
		}

		got, err := s.GetFile(ctx, f.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.StatusEmbeddingAttached || got.EmbeddingID == nil || *got.EmbeddingID != embID || got.FaceCount != 1 {
			t.Errorf("unexpected file after attach: %+v", got)
		}

		if err := s.UpdateFileStatus(ctx, 9999, models.StatusEmbeddingPending); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing file, got %v", err)
		}
	})

	t.Run("NoFaceDetected", func(t *testing.T) {
		s := newStore(t)
		f := &models.FileRecord{UploaderID: "u1", Scope: "E1", Status: models.StatusEmbeddingPending}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatal(err)
		}
		if err := s.AttachEmbedding(ctx, f.ID, nil, 0); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetFile(ctx, f.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.StatusNoFaceDetected || got.EmbeddingID != nil {
			t.Errorf("expected no_face_detected without embedding, got %+v", got)
		}
	})

	t.Run("DeleteFileCascades", func(t *testing.T) {
		s := newStore(t)
		f := &models.FileRecord{UploaderID: "u1", Scope: "E1", ContentKey: "files/x"}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Insert(ctx, f.Owner(), "E1", [][]float32{vec(4, 1)}); err != nil {
			t.Fatal(err)
		}
		if err := s.SaveChunks(ctx, f.ID, []models.Chunk{{Index: 0, Key: "files/x/chunks/0", SHA256: "aa", Size: 3}}); err != nil {
			t.Fatal(err)
		}

		if err := s.DeleteFile(ctx, f.ID); err != nil {
			t.Fatalf("DeleteFile failed: %v", err)
		}
		if _, err := s.GetFile(ctx, f.ID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if _, found, err := s.GetByOwner(ctx, f.Owner()); found || !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected deleted file to be not found, got found=%v err=%v", found, err)
		}
		chunks, err := s.ListChunks(ctx, f.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 0 {
			t.Errorf("chunks survived file delete: %+v", chunks)
		}
		if err := s.DeleteFile(ctx, f.ID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("Faces", func(t *testing.T) {
		s := newStore(t)
		face := &models.FaceRecord{UploaderID: "u1", Scope: "E1", ContentKey: "faces/a.jpg"}
		if err := s.CreateFace(ctx, face); err != nil {
			t.Fatal(err)
		}
		embID, err := s.Insert(ctx, face.Owner(), "E1", [][]float32{vec(4, 1)})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.SetFaceEmbedding(ctx, face.ID, &embID, 1); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetFace(ctx, face.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.EmbeddingID == nil || *got.EmbeddingID != embID || got.UploaderID != "u1" {
			t.Errorf("unexpected face: %+v", got)
		}
		if err := s.DeleteFace(ctx, face.ID); err != nil {
			t.Fatal(err)
		}
		if _, found, err := s.GetByOwner(ctx, face.Owner()); found || !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected deleted face to be not found, got found=%v err=%v", found, err)
		}
		if _, err := s.GetFace(ctx, face.ID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAndCandidates", func(t *testing.T) {
		s := newStore(t)
		files := []*models.FileRecord{
			{UploaderID: "u1", Scope: "E1", ContentKey: "files/1", ContentHash: "h"},
			{UploaderID: "u2", Scope: "E1", ContentKey: "files/2", ContentHash: "h"},
			{UploaderID: "u1", Scope: "E2", ContentKey: "files/3"},
		}
		for _, f := range files {
			if err := s.CreateFile(ctx, f); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.Insert(ctx, files[0].Owner(), "E1", [][]float32{vec(4, 1), vec(4, 0, 1)}); err != nil {
			t.Fatal(err)
		}

		listed, err := s.ListFiles(ctx, models.FileFilter{UploaderID: "u1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(listed) != 2 || listed[0].ID != files[0].ID || listed[1].ID != files[2].ID {
			t.Errorf("unexpected uploader listing: %+v", listed)
		}

		candidates, err := s.DuplicateCandidates(ctx, models.FileFilter{Scope: "E1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates in E1, got %d", len(candidates))
		}
		if candidates[0].FileID != files[0].ID || len(candidates[0].Vector) != 4 || candidates[0].Vector[0] != 1 {
			t.Errorf("expected first vector as representative, got %+v", candidates[0])
		}
		if candidates[1].Vector != nil || candidates[1].ContentHash != "h" {
			t.Errorf("expected hash-only candidate, got %+v", candidates[1])
		}
	})

	t.Run("ChunksAndContentKeys", func(t *testing.T) {
		s := newStore(t)
		f := &models.FileRecord{UploaderID: "u1", Scope: "E1", ContentKey: "files/c"}
		if err := s.CreateFile(ctx, f); err != nil {
			t.Fatal(err)
		}
		face := &models.FaceRecord{UploaderID: "u1", Scope: "E1", ContentKey: "faces/f.jpg"}
		if err := s.CreateFace(ctx, face); err != nil {
			t.Fatal(err)
		}
		chunks := []models.Chunk{
			{Index: 1, Key: "files/c/chunks/1", SHA256: "b", Size: 2},
			{Index: 0, Key: "files/c/chunks/0", SHA256: "a", Size: 5},
		}
		if err := s.SaveChunks(ctx, f.ID, chunks); err != nil {
			t.Fatal(err)
		}
		got, err := s.ListChunks(ctx, f.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Index != 0 || got[1].Index != 1 || got[0].FileID != f.ID {
			t.Errorf("unexpected chunk manifest: %+v", got)
		}

		keys, err := s.ContentKeys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 2 || keys[0] != "faces/f.jpg" || keys[1] != "files/c" {
			t.Errorf("unexpected content keys: %v", keys)
		}
	})
}
