package cache

import (
	"context"

	"github.com/your-org/facefind/internal/models"
)

// Noop disables caching; every lookup misses.
type Noop struct{}

func (Noop) GetEmbedding(ctx context.Context, owner models.Owner) ([][]float32, bool) {
	record(kindEmbedding, false)
	return nil, false
}

func (Noop) SetEmbedding(context.Context, models.Owner, [][]float32) {}

func (Noop) GetMatches(ctx context.Context, key MatchKey) ([]models.Match, bool) {
	record(kindMatch, false)
	return nil, false
}

func (Noop) SetMatches(context.Context, MatchKey, []models.Match) {}
func (Noop) Invalidate(context.Context, models.Owner)             {}
func (Noop) InvalidateScope(context.Context, string)              {}
