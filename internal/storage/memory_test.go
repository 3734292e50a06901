package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/facefind/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore(0) })
}

func TestMemoryStore_FixedDimension(t *testing.T) {
	s := NewMemoryStore(512)
	_, err := s.Insert(context.Background(), models.FileOwner(1), "E1", [][]float32{vec(128, 1)})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch against configured dim, got %v", err)
	}
}

func TestMemoryObjectStore_ListPrefixes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryObjectStore()
	for _, k := range []string{"files/a/chunks/0", "files/a/chunks/1", "files/b/chunks/0", "faces/x.jpg"} {
		if err := s.PutObject(ctx, k, []byte("x"), "application/octet-stream"); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListPrefixes(ctx, "files/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "files/a/" || got[1] != "files/b/" {
		t.Errorf("unexpected prefixes: %v", got)
	}

	got, err = s.ListPrefixes(ctx, "faces/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "faces/x.jpg" {
		t.Errorf("unexpected face objects: %v", got)
	}

	if _, err := s.GetObject(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
