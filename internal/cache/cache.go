// Package cache memoizes raw embeddings and match results. It is advisory:
// every backend error is logged and reported as a miss.
package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

const (
	kindEmbedding = "embedding"
	kindMatch     = "match"
)

// ResultCache is implemented by the LRU, NATS KV and no-op backends.
type ResultCache interface {
	GetEmbedding(ctx context.Context, owner models.Owner) ([][]float32, bool)
	SetEmbedding(ctx context.Context, owner models.Owner, vectors [][]float32)
	GetMatches(ctx context.Context, key MatchKey) ([]models.Match, bool)
	SetMatches(ctx context.Context, key MatchKey, matches []models.Match)
	// Invalidate drops the owner's embedding and every match result queried by it.
	Invalidate(ctx context.Context, owner models.Owner)
	// InvalidateScope drops every match result computed over scope.
	InvalidateScope(ctx context.Context, scope string)
}

// MatchKey identifies one match result.
type MatchKey struct {
	Query     models.Owner
	Scope     string
	Threshold float64
}

// String renders the key with characters that are valid in NATS KV keys:
// "<scope>.<kind>.<id>.<threshold in basis points>".
func (k MatchKey) String() string {
	return scopeToken(k.Scope) + "." + ownerToken(k.Query) + "." +
		strconv.Itoa(int(math.Round(k.Threshold*10000)))
}

func scopeToken(scope string) string {
	if scope == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(scope))
}

func ownerToken(o models.Owner) string {
	return string(o.Kind) + "." + strconv.FormatInt(o.ID, 10)
}

func embeddingKey(o models.Owner) string { return ownerToken(o) }

func scopePrefix(scope string) string { return scopeToken(scope) + "." }

// queriedBy reports whether a match key string was computed for owner.
func queriedBy(key string, owner models.Owner) bool {
	_, rest, ok := strings.Cut(key, ".")
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, ownerToken(owner)+".")
}

func record(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	observability.CacheRequests.WithLabelValues(kind, outcome).Inc()
}

// New builds the backend selected by cfg.Backend. kv is only consulted for
// the nats backend and may be nil otherwise.
func New(ctx context.Context, cfg config.CacheConfig, kv KVFactory) (ResultCache, error) {
	switch cfg.Backend {
	case config.CacheLRU, "":
		return NewLRU(cfg.Size, cfg.EmbeddingTTL, cfg.MatchTTL), nil
	case config.CacheNATS:
		if kv == nil {
			return nil, fmt.Errorf("cache backend %q needs a NATS connection", cfg.Backend)
		}
		return NewKV(ctx, kv, cfg.EmbeddingTTL, cfg.MatchTTL)
	case config.CacheNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
