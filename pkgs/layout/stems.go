package layout

import (
	"sort"

	"github.com/gganty/Gtol/pkgs/tree"
)

// stemIndex maps each node to the x-coordinate of its vertical stem line.
// Raw stems (cumulative distance scaled to pixels, plus the parent stub)
// are spread left-to-right so that any two distinct stems are separated by
// at least MinLevelGap, no matter how many nodes share a depth.
type stemIndex struct {
	raw    []float64           // quantized raw stem per node
	spread map[float64]float64 // quantized raw → spread
}

func newStemIndex(t *tree.Tree, dist []float64, params Params) *stemIndex {
	idx := &stemIndex{
		raw:    make([]float64, len(t.Nodes)),
		spread: make(map[float64]float64),
	}

	for i := range t.Nodes {
		r := q(dist[i]*params.XScale + params.ParentStub)
		idx.raw[i] = r
		idx.spread[r] = 0
	}

	distinct := make([]float64, 0, len(idx.spread))
	for r := range idx.spread {
		distinct = append(distinct, r)
	}
	sort.Float64s(distinct)

	// Left-to-right sweep: each stem keeps its raw position unless it
	// crowds the previous one
	last := 0.0
	for i, r := range distinct {
		s := r
		if i > 0 && s < last+params.MinLevelGap {
			s = last + params.MinLevelGap
		}
		idx.spread[r] = s
		last = s
	}
	return idx
}

// x returns the spread stem x-coordinate for node u. Lookup goes through
// the quantized raw key to avoid float-identity pitfalls.
func (s *stemIndex) x(u int) float64 {
	return s.spread[s.raw[u]]
}
