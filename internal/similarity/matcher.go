package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

// DefaultMatchThreshold is the score a candidate needs to count as the same face.
const DefaultMatchThreshold = 0.6

// CandidateSource returns every stored vector tagged with a scope.
type CandidateSource interface {
	GetByScope(ctx context.Context, scope string) ([]models.ScopedVector, error)
}

// Matcher ranks the files of a scope against one or more query vectors.
type Matcher struct {
	source  CandidateSource
	timeout time.Duration
}

func NewMatcher(source CandidateSource, timeout time.Duration) *Matcher {
	return &Matcher{source: source, timeout: timeout}
}

// Match scores query against every file vector in scope and returns the
// files whose best score is >= threshold, best first.
func (m *Matcher) Match(ctx context.Context, query []float32, scope string, threshold float64) ([]models.Match, error) {
	return m.MatchAll(ctx, [][]float32{query}, scope, threshold)
}

// MatchAll is Match for a query owner with several vectors; a file's score is
// the best over every (query, candidate) pair.
func (m *Matcher) MatchAll(ctx context.Context, queries [][]float32, scope string, threshold float64) ([]models.Match, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: no query vectors", models.ErrEmptyVector)
	}
	for _, q := range queries {
		if err := ValidateQuery(q); err != nil {
			return nil, err
		}
	}

	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.ScanDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	pool, err := m.source.GetByScope(ctx, scope)
	if err != nil {
		return nil, scanErr(ctx, fmt.Errorf("load candidates for scope %q: %w", scope, err))
	}

	files := make([]models.ScopedVector, 0, len(pool))
	for _, c := range pool {
		if c.Owner.IsFile() {
			files = append(files, c)
		}
	}
	observability.CandidatePool.WithLabelValues("match").Observe(float64(len(files)))

	return Rank(ctx, queries, files, threshold)
}

// Rank is the scan behind Match. Candidates whose dimension differs from a
// query are skipped. Each owner appears at most once, with its best score.
// Results are sorted by score descending, then owner id ascending.
func Rank(ctx context.Context, queries [][]float32, candidates []models.ScopedVector, threshold float64) ([]models.Match, error) {
	norms := make([]float64, len(queries))
	for i, q := range queries {
		norms[i] = Norm(q)
	}

	best := make(map[models.Owner]float64)
	n := 0
	for _, c := range candidates {
		for qi, q := range queries {
			if n%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, scanErr(ctx, err)
				}
			}
			n++

			if len(c.Vector) != len(q) {
				continue
			}
			score := cosineWithNorm(q, norms[qi], c.Vector)
			if score < threshold {
				continue
			}
			if prev, ok := best[c.Owner]; !ok || score > prev {
				best[c.Owner] = score
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, scanErr(ctx, err)
	}

	matches := make([]models.Match, 0, len(best))
	for owner, score := range best {
		matches = append(matches, models.Match{Owner: owner, Score: score})
	}
	SortMatches(matches)
	return matches, nil
}

// SortMatches orders by score descending with owner id as the tie-break.
func SortMatches(matches []models.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Owner.ID < matches[j].Owner.ID
	})
}
