// Package layout converts a logical phylogenetic tree into a flat 2D visual
// graph with orthogonal ("Manhattan") edge routing: one point per logical
// node, elbow bend points where edges change direction, and a column of
// aligned leaf markers along the right edge.
package layout

import (
	"math"

	u "github.com/araddon/gou"

	"github.com/gganty/Gtol/pkgs/tree"
)

// AlgoVersion tags the layout algorithm for result caching. Bump it with
// any change that alters emitted geometry.
const AlgoVersion = "2"

// Point kinds
const (
	KindLeaf       = "leaf"
	KindLeafMarker = "leaf_marker"
	KindInternal   = "internal"
	KindBend       = "bend"
)

// Appearance constants
const (
	ColorLeaf     = "#f5d76e"
	ColorInternal = "#8ab4f8"
	ColorBend     = "#9aa0a6"
	ColorLink     = "#97A1A9"

	SizeLeafMarker = 20.0
	SizeLeafReal   = 8.0
	SizeInternal   = 6.0
	SizeBend       = 3.0
	NodeSizeScale  = 2.0 // global size scaling applied at emission
)

// Params bundles the geometry knobs of the drawing.
type Params struct {
	XScale       float64 // px per branch-length unit
	MinLevelGap  float64 // min horizontal gap between adjacent vertical stems
	LeafStep     float64 // vertical spacing between consecutive leaves
	ParentStub   float64 // elbow stub length before the vertical
	TipPad       float64 // extra space right of the farthest leaf for markers
	WeightedStub float64 // minimal horizontal stub before the weighted segment
}

// DefaultParams returns the default visualization parameters.
func DefaultParams() Params {
	return Params{
		XScale:       140.0,
		MinLevelGap:  56.0,
		LeafStep:     400.0,
		ParentStub:   20.0,
		TipPad:       40.0,
		WeightedStub: 40.0,
	}
}

// Point is a single visual point. IDs are dense integers assigned in
// emission order.
type Point struct {
	ID    int
	X     float64
	Y     float64
	Size  float64
	Color string
	Label string
	Kind  string
}

// Link is a directed visual edge between two point ids.
type Link struct {
	Source int
	Target int
	Color  string
}

// Graph holds the two append-only output tables.
type Graph struct {
	Points []Point
	Links  []Link
}

// ProgressFunc receives fractional layout completion in [0, 1].
type ProgressFunc func(fraction float64)

// coordKey quantizes a coordinate pair for bend coalescing. Rounding is
// decimal to 6 places so points within 0.5e-6 hash identically.
type coordKey struct {
	x, y float64
}

func q(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Build assigns coordinates to every logical node and emits the point and
// link tables. The input tree's children are reordered in place for
// crossing minimization.
func Build(t *tree.Tree, params Params, progress ProgressFunc) (*Graph, error) {
	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}

	report(0)
	root, err := t.Root()
	if err != nil {
		return nil, err
	}

	dist := t.CumDist(root)
	report(0.08)
	y := t.AssignY(root, params.LeafStep)
	report(0.15)

	stems := newStemIndex(t, dist, params)

	b := &builder{
		graph:     &Graph{Points: make([]Point, 0, len(t.Nodes)*2)},
		bendCache: make(map[coordKey]int),
		linkCache: make(map[[2]int]struct{}),
	}

	// Visual node per logical node, placed at stem-aligned x. Children are
	// re-placed during the edge pass once their parent's stem is known.
	report(0.20)
	total := len(t.Nodes)
	nodePID := make([]int, total)
	reportEvery := total / 20
	if reportEvery < 1 {
		reportEvery = 1
	}
	for i := range t.Nodes {
		node := &t.Nodes[i]
		kind := KindInternal
		color := ColorInternal
		size := SizeInternal
		label := node.Name
		if t.IsLeaf(i) {
			kind = KindLeaf
			color = ColorLeaf
			size = SizeLeafReal
			if label == "" {
				label = node.ID
			}
		}
		ex := stems.x(i)
		nodePID[i] = b.addPoint(kind, q(ex-params.ParentStub), y[i], label, color, size)

		if (i+1)%reportEvery == 0 {
			report(0.20 + 0.25*float64(i+1)/float64(total))
		}
	}
	report(0.45)

	// Orthogonal edges: parent point → elbow at the parent's stem, a
	// vertical run to the child's y when they differ, then into the child.
	const eps = 1e-6
	totalLinks := 0
	for i := range t.Nodes {
		totalLinks += len(t.Nodes[i].Children)
	}
	if totalLinks < 1 {
		totalLinks = 1
	}
	linksDone := 0
	linkEvery := totalLinks / 20
	if linkEvery < 1 {
		linkEvery = 1
	}
	for i := range t.Nodes {
		ex := stems.x(i)
		yParent := y[i]
		for _, c := range t.Nodes[i].Children {
			yChild := y[c]
			blen := t.Nodes[c].Length
			if blen < 0 {
				blen = 0
			}
			childPID := nodePID[c]

			// Re-place the child at its true branch-length distance
			b.graph.Points[childPID].X = q(ex + params.WeightedStub + blen*params.XScale)

			elbowTop := b.addBend(ex, yParent)
			b.addLink(nodePID[i], elbowTop)

			if math.Abs(yParent-yChild) > eps {
				elbowBot := b.addBend(ex, yChild)
				b.addLink(elbowTop, elbowBot)
				b.addLink(elbowBot, childPID)
			} else {
				b.addLink(elbowTop, childPID)
			}

			linksDone++
			if linksDone%linkEvery == 0 {
				report(math.Min(0.85, 0.45+0.40*float64(linksDone)/float64(totalLinks)))
			}
		}
	}
	report(0.85)

	// Aligned leaf markers along a shared tip line at the right edge
	maxLeafX := 0.0
	first := true
	for i := range t.Nodes {
		if !t.IsLeaf(i) {
			continue
		}
		if x := b.graph.Points[nodePID[i]].X; first || x > maxLeafX {
			maxLeafX = x
			first = false
		}
	}
	xTipline := maxLeafX + params.TipPad
	for i := range t.Nodes {
		if !t.IsLeaf(i) {
			continue
		}
		leaf := b.graph.Points[nodePID[i]]
		pid := b.addPoint(KindLeafMarker, xTipline, leaf.Y, leaf.Label, ColorLeaf, SizeLeafMarker)
		b.addLink(pid, leaf.ID)
	}
	report(0.95)

	u.Debugf("layout: points=%d links=%d tipline=%.1f", len(b.graph.Points), len(b.graph.Links), xTipline)
	report(1.0)
	return b.graph, nil
}

// builder accumulates points and links with bend coalescing and directed
// link dedup. First emission wins on both.
type builder struct {
	graph     *Graph
	bendCache map[coordKey]int
	linkCache map[[2]int]struct{}
}

func (b *builder) addPoint(kind string, x, yv float64, label, color string, size float64) int {
	pid := len(b.graph.Points)
	b.graph.Points = append(b.graph.Points, Point{
		ID:    pid,
		X:     q(x),
		Y:     q(yv),
		Size:  size * NodeSizeScale,
		Color: color,
		Label: label,
		Kind:  kind,
	})
	return pid
}

// addBend returns an existing bend id when one already sits at the same
// quantized coordinates. Only bends coalesce: leaves, markers and internals
// stay distinct even at coincident positions.
func (b *builder) addBend(x, yv float64) int {
	key := coordKey{q(x), q(yv)}
	if pid, ok := b.bendCache[key]; ok {
		return pid
	}
	pid := b.addPoint(KindBend, x, yv, "", ColorBend, SizeBend)
	b.bendCache[key] = pid
	return pid
}

func (b *builder) addLink(source, target int) {
	key := [2]int{source, target}
	if _, ok := b.linkCache[key]; ok {
		return
	}
	b.linkCache[key] = struct{}{}
	b.graph.Links = append(b.graph.Links, Link{Source: source, Target: target, Color: ColorLink})
}
