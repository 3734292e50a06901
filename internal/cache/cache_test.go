package cache

import (
	"context"
	"testing"
	"time"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
)

func TestMatchKey(t *testing.T) {
	tests := []struct {
		name string
		key  MatchKey
		want string
	}{
		{"empty scope", MatchKey{Query: models.FaceOwner(3), Threshold: 0.6}, "_.face.3.6000"},
		{"scope", MatchKey{Query: models.FaceOwner(3), Scope: "ev", Threshold: 0.6}, "ZXY.face.3.6000"},
		{"threshold", MatchKey{Query: models.FaceOwner(12), Scope: "ev", Threshold: 0.75}, "ZXY.face.12.7500"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.key.String(); got != tc.want {
				t.Errorf("String() = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestQueriedBy(t *testing.T) {
	key := MatchKey{Query: models.FaceOwner(1), Scope: "ev"}.String()
	if !queriedBy(key, models.FaceOwner(1)) {
		t.Error("expected key to belong to face 1")
	}
	if queriedBy(key, models.FaceOwner(12)) || queriedBy(key, models.FileOwner(1)) {
		t.Error("key must not match other owners")
	}
}

func TestLRU(t *testing.T) {
	ctx := context.Background()

	t.Run("Embeddings", func(t *testing.T) {
		c := NewLRU(16, time.Hour, time.Hour)
		owner := models.FaceOwner(1)
		if _, ok := c.GetEmbedding(ctx, owner); ok {
			t.Fatal("expected miss on empty cache")
		}
		c.SetEmbedding(ctx, owner, [][]float32{{1, 0}})
		got, ok := c.GetEmbedding(ctx, owner)
		if !ok || len(got) != 1 || got[0][0] != 1 {
			t.Fatalf("GetEmbedding = %v, %v", got, ok)
		}
		c.Invalidate(ctx, owner)
		if _, ok := c.GetEmbedding(ctx, owner); ok {
			t.Error("expected miss after invalidate")
		}
	})

	t.Run("InvalidateOwnerDropsMatches", func(t *testing.T) {
		c := NewLRU(16, time.Hour, time.Hour)
		k1 := MatchKey{Query: models.FaceOwner(1), Scope: "ev", Threshold: 0.6}
		k2 := MatchKey{Query: models.FaceOwner(2), Scope: "ev", Threshold: 0.6}
		c.SetMatches(ctx, k1, []models.Match{{Owner: models.FileOwner(9), Score: 0.9}})
		c.SetMatches(ctx, k2, []models.Match{})

		c.Invalidate(ctx, models.FaceOwner(1))
		if _, ok := c.GetMatches(ctx, k1); ok {
			t.Error("expected k1 dropped")
		}
		if _, ok := c.GetMatches(ctx, k2); !ok {
			t.Error("expected k2 kept")
		}
	})

	t.Run("InvalidateScope", func(t *testing.T) {
		c := NewLRU(16, time.Hour, time.Hour)
		a := MatchKey{Query: models.FaceOwner(1), Scope: "a", Threshold: 0.6}
		b := MatchKey{Query: models.FaceOwner(1), Scope: "b", Threshold: 0.6}
		c.SetMatches(ctx, a, nil)
		c.SetMatches(ctx, b, nil)

		c.InvalidateScope(ctx, "a")
		if _, ok := c.GetMatches(ctx, a); ok {
			t.Error("expected scope a dropped")
		}
		if _, ok := c.GetMatches(ctx, b); !ok {
			t.Error("expected scope b kept")
		}
	})

	t.Run("MatchTTL", func(t *testing.T) {
		c := NewLRU(16, time.Hour, 20*time.Millisecond)
		k := MatchKey{Query: models.FaceOwner(1), Scope: "ev", Threshold: 0.6}
		c.SetMatches(ctx, k, nil)
		c.SetEmbedding(ctx, models.FaceOwner(1), [][]float32{{1}})
		time.Sleep(60 * time.Millisecond)
		if _, ok := c.GetMatches(ctx, k); ok {
			t.Error("expected match entry expired")
		}
		if _, ok := c.GetEmbedding(ctx, models.FaceOwner(1)); !ok {
			t.Error("expected embedding entry to outlive match ttl")
		}
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		backend string
		wantErr bool
	}{
		{config.CacheLRU, false},
		{config.CacheNone, false},
		{config.CacheNATS, true},
		{"redis", true},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			_, err := New(ctx, config.CacheConfig{Backend: tc.backend, Size: 8, EmbeddingTTL: time.Hour, MatchTTL: time.Minute}, nil)
			if (err != nil) != tc.wantErr {
				t.Errorf("New(%q) err = %v; wantErr %v", tc.backend, err, tc.wantErr)
			}
		})
	}

	c, _ := New(ctx, config.CacheConfig{Backend: config.CacheNone}, nil)
	c.SetEmbedding(ctx, models.FaceOwner(1), [][]float32{{1}})
	if _, ok := c.GetEmbedding(ctx, models.FaceOwner(1)); ok {
		t.Error("noop cache must always miss")
	}
}
