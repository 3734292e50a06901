package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/your-org/facefind/internal/models"
)

// LRU is the in-process backend. Embeddings and match results live in
// separate LRUs so each keeps its own TTL.
type LRU struct {
	embeddings *expirable.LRU[string, [][]float32]
	matches    *expirable.LRU[string, []models.Match]
}

func NewLRU(size int, embeddingTTL, matchTTL time.Duration) *LRU {
	if size <= 0 {
		size = 4096
	}
	return &LRU{
		embeddings: expirable.NewLRU[string, [][]float32](size, nil, embeddingTTL),
		matches:    expirable.NewLRU[string, []models.Match](size, nil, matchTTL),
	}
}

func (c *LRU) GetEmbedding(ctx context.Context, owner models.Owner) ([][]float32, bool) {
	v, ok := c.embeddings.Get(embeddingKey(owner))
	record(kindEmbedding, ok)
	return v, ok
}

func (c *LRU) SetEmbedding(ctx context.Context, owner models.Owner, vectors [][]float32) {
	c.embeddings.Add(embeddingKey(owner), vectors)
}

func (c *LRU) GetMatches(ctx context.Context, key MatchKey) ([]models.Match, bool) {
	v, ok := c.matches.Get(key.String())
	record(kindMatch, ok)
	return v, ok
}

func (c *LRU) SetMatches(ctx context.Context, key MatchKey, matches []models.Match) {
	c.matches.Add(key.String(), matches)
}

func (c *LRU) Invalidate(ctx context.Context, owner models.Owner) {
	c.embeddings.Remove(embeddingKey(owner))
	for _, k := range c.matches.Keys() {
		if queriedBy(k, owner) {
			c.matches.Remove(k)
		}
	}
}

func (c *LRU) InvalidateScope(ctx context.Context, scope string) {
	prefix := scopePrefix(scope)
	for _, k := range c.matches.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.matches.Remove(k)
		}
	}
}
