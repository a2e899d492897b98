package domain

import (
	"math"
	"slices"
)

// NeighborFunc lists the undirected neighbours of a node, restricted to kinds
type NeighborFunc func(id string) ([]Neighbor, error)

// Traverse runs a breadth-first expansion from every seed up to maxDepth.
// Each (seed, node) pair is reported once at its shortest depth; seeds are
// never reported as hops of themselves. Output is sorted by seed, depth, id.
func Traverse(seeds []string, maxDepth int, neighbors NeighborFunc) ([]Hop, error) {
	if maxDepth < 1 {
		return nil, nil
	}
	var hops []Hop
	for _, seed := range slices.Compact(slices.Sorted(slices.Values(seeds))) {
		visited := map[string]bool{seed: true}
		frontier := []string{seed}
		for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
			var next []string
			for _, id := range frontier {
				ns, err := neighbors(id)
				if err != nil {
					return nil, err
				}
				for _, n := range ns {
					if visited[n.ID] {
						continue
					}
					visited[n.ID] = true
					hops = append(hops, Hop{Seed: seed, ID: n.ID, Depth: depth, Via: n.Kind})
					next = append(next, n.ID)
				}
			}
			slices.Sort(next)
			frontier = next
		}
	}
	return hops, nil
}

// KindSet builds a lookup from a list of kinds; an empty list means all kinds
func KindSet(kinds []RelationKind) map[RelationKind]bool {
	if len(kinds) == 0 {
		kinds = AllRelationKinds
	}
	set := make(map[RelationKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when lengths differ or either vector is zero
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarityHit is one result of a vector similarity query
type SimilarityHit struct {
	Item  IndexedItem
	Score float64
}
