package similarity

import (
	"sort"

	"github.com/your-org/facefind/internal/models"
)

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64)}
}

func (u *unionFind) find(x int64) int64 {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

// union keeps the smaller id as the root so group roots are stable.
func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}

// clusterPairs merges qualifying pairs into connected components.
func clusterPairs(pairs []models.PairScore, reasons map[pairKey]string) []models.DuplicateGroup {
	uf := newUnionFind()
	for _, p := range pairs {
		uf.union(p.A, p.B)
	}

	byRoot := make(map[int64]*models.DuplicateGroup)
	members := make(map[int64]map[int64]bool)
	var roots []int64
	for _, p := range pairs {
		root := uf.find(p.A)
		g, ok := byRoot[root]
		if !ok {
			g = &models.DuplicateGroup{Similarity: p.Similarity, Reason: models.DuplicateByContentHash}
			byRoot[root] = g
			members[root] = make(map[int64]bool)
			roots = append(roots, root)
		}
		g.Pairs = append(g.Pairs, p)
		if p.Similarity < g.Similarity {
			g.Similarity = p.Similarity
		}
		if reasons[newPairKey(p.A, p.B)] == models.DuplicateByEmbedding {
			g.Reason = models.DuplicateByEmbedding
		}
		members[root][p.A] = true
		members[root][p.B] = true
	}

	groups := make([]models.DuplicateGroup, 0, len(roots))
	for _, root := range roots {
		g := byRoot[root]
		for id := range members[root] {
			g.FileIDs = append(g.FileIDs, id)
		}
		sort.Slice(g.FileIDs, func(i, j int) bool { return g.FileIDs[i] < g.FileIDs[j] })
		groups = append(groups, *g)
	}
	return groups
}
