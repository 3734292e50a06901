package chunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
	fail string
}

func newMemObjects() *memObjects { return &memObjects{data: make(map[string][]byte)} }

func (m *memObjects) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.fail {
		return errors.New("put failed")
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return d, nil
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		length int
		size   int
		want   []int
	}{
		{"empty", 0, 4, []int{0}},
		{"smaller than chunk", 3, 4, []int{3}},
		{"exact multiple", 8, 4, []int{4, 4}},
		{"remainder", 10, 4, []int{4, 4, 2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{'x'}, tc.length)
			pieces := Split(data, tc.size)
			if len(pieces) != len(tc.want) {
				t.Fatalf("expected %d pieces, got %d", len(tc.want), len(pieces))
			}
			for i, p := range pieces {
				if p.Index != i || len(p.Data) != tc.want[i] {
					t.Errorf("piece %d: index %d len %d; want len %d", i, p.Index, len(p.Data), tc.want[i])
				}
				if p.SHA256 != Sum(p.Data) {
					t.Errorf("piece %d: wrong hash", i)
				}
			}
		})
	}
}

func TestStoreAndAssemble(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	manifest, err := Store(ctx, objects, "files/abc", data, 1024)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if len(manifest) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(manifest))
	}
	if manifest[3].Key != "files/abc/chunks/3" {
		t.Errorf("unexpected key %q", manifest[3].Key)
	}

	// manifest order must not matter.
	manifest[0], manifest[9] = manifest[9], manifest[0]
	got, err := Assemble(ctx, objects, manifest)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("reassembled content differs from original")
	}
}

func TestAssembleDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	manifest, err := Store(ctx, objects, "files/c", []byte("hello world"), 4)
	if err != nil {
		t.Fatal(err)
	}
	objects.data["files/c/chunks/1"] = []byte("XXXX")

	if _, err := Assemble(ctx, objects, manifest); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestStorePropagatesErrors(t *testing.T) {
	objects := newMemObjects()
	objects.fail = "files/d/chunks/1"
	if _, err := Store(context.Background(), objects, "files/d", []byte("abcdefgh"), 4); err == nil {
		t.Error("expected error from failing upload")
	}
}
