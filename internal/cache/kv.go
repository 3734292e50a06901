package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facefind/internal/models"
)

const (
	EmbeddingBucket = "facefind_embeddings"
	MatchBucket     = "facefind_matches"
)

// KVFactory creates or binds a key-value bucket. jetstream.JetStream satisfies it.
type KVFactory interface {
	CreateOrUpdateKeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error)
}

// KV is the shared backend on JetStream key-value buckets, used when several
// API replicas should see the same cache. Bucket TTLs give the expiry.
type KV struct {
	embeddings jetstream.KeyValue
	matches    jetstream.KeyValue
}

func NewKV(ctx context.Context, js KVFactory, embeddingTTL, matchTTL time.Duration) (*KV, error) {
	emb, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      EmbeddingBucket,
		Description: "face and file embeddings",
		TTL:         embeddingTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", EmbeddingBucket, err)
	}
	m, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      MatchBucket,
		Description: "match results",
		TTL:         matchTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", MatchBucket, err)
	}
	return &KV{embeddings: emb, matches: m}, nil
}

func (c *KV) GetEmbedding(ctx context.Context, owner models.Owner) ([][]float32, bool) {
	var v [][]float32
	ok := c.get(ctx, c.embeddings, embeddingKey(owner), &v)
	record(kindEmbedding, ok)
	return v, ok
}

func (c *KV) SetEmbedding(ctx context.Context, owner models.Owner, vectors [][]float32) {
	c.put(ctx, c.embeddings, embeddingKey(owner), vectors)
}

func (c *KV) GetMatches(ctx context.Context, key MatchKey) ([]models.Match, bool) {
	var v []models.Match
	ok := c.get(ctx, c.matches, key.String(), &v)
	record(kindMatch, ok)
	return v, ok
}

func (c *KV) SetMatches(ctx context.Context, key MatchKey, matches []models.Match) {
	c.put(ctx, c.matches, key.String(), matches)
}

func (c *KV) Invalidate(ctx context.Context, owner models.Owner) {
	if err := c.embeddings.Delete(ctx, embeddingKey(owner)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.Warn("cache invalidate embedding", "owner", owner.String(), "error", err)
	}
	c.deleteMatching(ctx, func(k string) bool { return queriedBy(k, owner) })
}

func (c *KV) InvalidateScope(ctx context.Context, scope string) {
	prefix := scopePrefix(scope)
	c.deleteMatching(ctx, func(k string) bool { return strings.HasPrefix(k, prefix) })
}

func (c *KV) deleteMatching(ctx context.Context, match func(string) bool) {
	lister, err := c.matches.ListKeys(ctx)
	if err != nil {
		slog.Warn("cache list keys", "error", err)
		return
	}
	defer lister.Stop()

	for k := range lister.Keys() {
		if !match(k) {
			continue
		}
		if err := c.matches.Delete(ctx, k); err != nil {
			slog.Warn("cache invalidate match", "key", k, "error", err)
		}
	}
}

func (c *KV) get(ctx context.Context, kv jetstream.KeyValue, key string, dst any) bool {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			slog.Warn("cache get", "bucket", kv.Bucket(), "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(entry.Value(), dst); err != nil {
		slog.Warn("cache decode", "bucket", kv.Bucket(), "key", key, "error", err)
		return false
	}
	return true
}

func (c *KV) put(ctx context.Context, kv jetstream.KeyValue, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode", "key", key, "error", err)
		return
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		slog.Warn("cache put", "bucket", kv.Bucket(), "key", key, "error", err)
	}
}
