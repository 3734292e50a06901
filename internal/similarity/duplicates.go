package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

// DefaultDuplicateThreshold is the strict lower bound for two files to be duplicates.
const DefaultDuplicateThreshold = 0.95

// Grouping selects how qualifying pairs become groups.
type Grouping string

const (
	// GroupPairwise reports every qualifying pair as its own group.
	GroupPairwise Grouping = "pairwise"
	// GroupCluster merges pairs transitively (A~B, B~C gives {A,B,C}).
	GroupCluster Grouping = "cluster"
)

// DuplicateSource supplies the file-level candidate pool for a filter.
type DuplicateSource interface {
	DuplicateCandidates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateCandidate, error)
}

// DetectorOptions configures a DuplicateDetector.
type DetectorOptions struct {
	Threshold      float64
	Grouping       Grouping
	HashDuplicates bool
	Timeout        time.Duration
}

// DuplicateDetector finds near-identical uploads with an O(N^2) pair scan.
type DuplicateDetector struct {
	source DuplicateSource
	opts   DetectorOptions
}

func NewDuplicateDetector(source DuplicateSource, opts DetectorOptions) *DuplicateDetector {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultDuplicateThreshold
	}
	if opts.Grouping == "" {
		opts.Grouping = GroupPairwise
	}
	return &DuplicateDetector{source: source, opts: opts}
}

// FindDuplicates loads the candidate pool for filter and groups it.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, filter models.FileFilter) ([]models.DuplicateGroup, error) {
	ctx, cancel := withTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.ScanDuration.WithLabelValues("dedup").Observe(time.Since(start).Seconds())
	}()

	candidates, err := d.source.DuplicateCandidates(ctx, filter)
	if err != nil {
		return nil, scanErr(ctx, fmt.Errorf("load duplicate candidates: %w", err))
	}
	observability.CandidatePool.WithLabelValues("dedup").Observe(float64(len(candidates)))

	return d.Group(ctx, candidates)
}

type pairKey struct{ lo, hi int64 }

func newPairKey(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Group scans every unordered pair of candidates once. A pair qualifies when
// the content hashes are equal (if enabled, scored 1.0) or when the cosine
// similarity of their representative vectors is strictly above the threshold.
func (d *DuplicateDetector) Group(ctx context.Context, candidates []models.DuplicateCandidate) ([]models.DuplicateGroup, error) {
	pool := make([]models.DuplicateCandidate, len(candidates))
	copy(pool, candidates)
	sort.Slice(pool, func(i, j int) bool { return pool[i].FileID < pool[j].FileID })

	byID := make(map[int64]models.DuplicateCandidate, len(pool))
	norms := make([]float64, len(pool))
	for i, c := range pool {
		byID[c.FileID] = c
		norms[i] = Norm(c.Vector)
	}

	seen := make(map[pairKey]bool)
	var pairs []models.PairScore
	reasons := make(map[pairKey]string)

	if d.opts.HashDuplicates {
		for i := 0; i < len(pool); i++ {
			if pool[i].ContentHash == "" {
				continue
			}
			for j := i + 1; j < len(pool); j++ {
				if pool[i].FileID == pool[j].FileID || pool[i].ContentHash != pool[j].ContentHash {
					continue
				}
				key := newPairKey(pool[i].FileID, pool[j].FileID)
				if seen[key] {
					continue
				}
				seen[key] = true
				reasons[key] = models.DuplicateByContentHash
				pairs = append(pairs, models.PairScore{A: key.lo, B: key.hi, Similarity: 1})
			}
		}
	}

	n := 0
	for i := 0; i < len(pool); i++ {
		if len(pool[i].Vector) == 0 || norms[i] == 0 {
			continue
		}
		for j := i + 1; j < len(pool); j++ {
			if n%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, scanErr(ctx, err)
				}
			}
			n++

			if pool[i].FileID == pool[j].FileID || len(pool[j].Vector) != len(pool[i].Vector) {
				continue
			}
			key := newPairKey(pool[i].FileID, pool[j].FileID)
			if seen[key] {
				continue
			}
			sim := cosineWithNorm(pool[i].Vector, norms[i], pool[j].Vector)
			if sim <= d.opts.Threshold {
				continue
			}
			seen[key] = true
			reasons[key] = models.DuplicateByEmbedding
			pairs = append(pairs, models.PairScore{A: key.lo, B: key.hi, Similarity: sim})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, scanErr(ctx, err)
	}

	var groups []models.DuplicateGroup
	if d.opts.Grouping == GroupCluster {
		groups = clusterPairs(pairs, reasons)
	} else {
		groups = make([]models.DuplicateGroup, 0, len(pairs))
		for _, p := range pairs {
			groups = append(groups, models.DuplicateGroup{
				FileIDs:    []int64{p.A, p.B},
				Similarity: p.Similarity,
				Pairs:      []models.PairScore{p},
				Reason:     reasons[newPairKey(p.A, p.B)],
			})
		}
	}

	for gi := range groups {
		paths := make([]string, len(groups[gi].FileIDs))
		for i, id := range groups[gi].FileIDs {
			paths[i] = byID[id].ContentKey
		}
		groups[gi].Paths = paths
	}
	sortGroups(groups)
	return groups, nil
}

func sortGroups(groups []models.DuplicateGroup) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].FileIDs, groups[j].FileIDs
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}
