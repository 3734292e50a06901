package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		s, err := NewSQLiteStore(context.Background(), dbPath, 0)
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "ff.db")

	s, err := NewSQLiteStore(ctx, dbPath, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	owner := createFile(t, s, "E1")
	if _, err := s.Insert(ctx, owner, "E1", [][]float32{vec(8, 0.5, 0.25)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewSQLiteStore(ctx, dbPath, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, found, err := s.GetByOwner(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !found || len(got) != 1 || got[0][0] != 0.5 || got[0][1] != 0.25 {
		t.Errorf("expected persisted vector, got found=%v %v", found, got)
	}
}
