// Package chunk splits file content into fixed-size pieces for object
// storage and reassembles it with per-piece integrity checks.
package chunk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/facefind/internal/models"
)

// DefaultSize is the chunk size used when none is configured.
const DefaultSize = 512 << 10

// maxParallel bounds concurrent object uploads and downloads per file.
const maxParallel = 4

// ErrCorrupt means a stored chunk does not match its manifest hash or size.
var ErrCorrupt = errors.New("chunk checksum mismatch")

type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type ObjectReader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Piece is one slice of content before it is stored.
type Piece struct {
	Index  int
	Data   []byte
	SHA256 string
}

// Key returns the object key of chunk index under a file content key.
func Key(contentKey string, index int) string {
	return contentKey + "/chunks/" + strconv.Itoa(index)
}

// Sum returns the hex sha256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Split cuts data into pieces of at most size bytes. Empty data yields one
// empty piece so every stored file has a manifest.
func Split(data []byte, size int) []Piece {
	if size <= 0 {
		size = DefaultSize
	}
	if len(data) == 0 {
		return []Piece{{Index: 0, Data: []byte{}, SHA256: Sum(nil)}}
	}
	pieces := make([]Piece, 0, (len(data)+size-1)/size)
	for i, off := 0, 0; off < len(data); i, off = i+1, off+size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		part := data[off:end]
		pieces = append(pieces, Piece{Index: i, Data: part, SHA256: Sum(part)})
	}
	return pieces
}

// Store splits data and uploads every piece under contentKey. The returned
// manifest is ordered by index; FileID is left for the caller to set.
func Store(ctx context.Context, w ObjectWriter, contentKey string, data []byte, size int) ([]models.Chunk, error) {
	pieces := Split(data, size)
	manifest := make([]models.Chunk, len(pieces))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, p := range pieces {
		key := Key(contentKey, p.Index)
		manifest[p.Index] = models.Chunk{Index: p.Index, Key: key, SHA256: p.SHA256, Size: int64(len(p.Data))}
		g.Go(func() error {
			if err := w.PutObject(ctx, key, p.Data, "application/octet-stream"); err != nil {
				return fmt.Errorf("store chunk %d: %w", p.Index, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Assemble downloads every chunk of manifest, verifies it and concatenates
// the content in index order.
func Assemble(ctx context.Context, r ObjectReader, manifest []models.Chunk) ([]byte, error) {
	ordered := append([]models.Chunk(nil), manifest...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	parts := make([][]byte, len(ordered))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, c := range ordered {
		g.Go(func() error {
			data, err := r.GetObject(ctx, c.Key)
			if err != nil {
				return fmt.Errorf("load chunk %d: %w", c.Index, err)
			}
			if int64(len(data)) != c.Size || Sum(data) != c.SHA256 {
				return fmt.Errorf("chunk %d (%s): %w", c.Index, c.Key, ErrCorrupt)
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bytes.Join(parts, nil), nil
}
