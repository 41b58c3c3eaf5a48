package tree

import (
	"errors"
	"sort"
)

// NoParent marks a node without a parent (a root before unification).
const NoParent = -1

// Node is a single logical tree node. Nodes live in a flat arena owned by
// Tree; Parent and Children hold arena indices, never pointers. Each node
// owns its own Children slice.
type Node struct {
	ID       string  // synthetic id assigned at parse time ("n1", "root0")
	Name     string  // label, quotes stripped; empty for unnamed internals
	Parent   int     // arena index of the parent, or NoParent
	Length   float64 // branch length from the parent to this node
	Children []int   // arena indices in parse order until reordered
}

// Tree is an arena of logical nodes produced by the parser and consumed by
// the layout engine.
type Tree struct {
	Nodes []Node
}

// ErrNoRoot is returned when the arena holds no parentless node.
var ErrNoRoot = errors.New("tree: no root detected")

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.Nodes) }

// Root returns the arena index of the unique parentless node.
func (t *Tree) Root() (int, error) {
	for i := range t.Nodes {
		if t.Nodes[i].Parent == NoParent {
			return i, nil
		}
	}
	return NoParent, ErrNoRoot
}

// IsLeaf reports whether node u has no children.
func (t *Tree) IsLeaf(u int) bool { return len(t.Nodes[u].Children) == 0 }

// Leaves collects the leaves of the subtree rooted at u in left-to-right
// order. The traversal is iterative with an explicit stack: tree depth can
// approach the node count and must never hit the goroutine stack.
func (t *Tree) Leaves(u int) []int {
	if t.IsLeaf(u) {
		return []int{u}
	}

	var acc []int
	stack := make([]int, 0, 64)
	stack = append(stack, u)
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := t.Nodes[curr].Children
		if len(children) == 0 {
			acc = append(acc, curr)
			continue
		}
		// Push in reverse so the leftmost child is processed first
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return acc
}

// CumDist computes the cumulative branch-length distance from the root for
// every node: dist(child) = dist(parent) + max(0, length(child)).
// Negative branch lengths are clamped to zero on read.
func (t *Tree) CumDist(root int) []float64 {
	dist := make([]float64, len(t.Nodes))
	stack := make([]int, 0, 64)
	stack = append(stack, root)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range t.Nodes[u].Children {
			l := t.Nodes[c].Length
			if l < 0 {
				l = 0
			}
			dist[c] = dist[u] + l
			stack = append(stack, c)
		}
	}
	return dist
}

// PostOrder returns the nodes of the subtree at root in post-order
// (children before parents), computed iteratively.
func (t *Tree) PostOrder(root int) []int {
	order := make([]int, 0, len(t.Nodes))
	stack := make([]int, 0, 64)
	stack = append(stack, root)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, u)
		stack = append(stack, t.Nodes[u].Children...)
	}
	// Reverse of a parents-first order is a valid post-order
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// SortChildren reorders every node's children by the lexicographically
// smallest leaf label reachable through each child, ties broken by the
// original order. Unnamed leaves fall back to their synthetic id.
//
// The minimum label per subtree is precomputed in one post-order pass;
// sorting then compares plain strings. Re-collecting leaves inside the
// comparator would be quadratic on pathological trees.
func (t *Tree) SortChildren(root int) {
	minLabel := make([]string, len(t.Nodes))
	for _, u := range t.PostOrder(root) {
		node := &t.Nodes[u]
		if len(node.Children) == 0 {
			if node.Name != "" {
				minLabel[u] = node.Name
			} else {
				minLabel[u] = node.ID
			}
			continue
		}
		min := minLabel[node.Children[0]]
		for _, c := range node.Children[1:] {
			if minLabel[c] < min {
				min = minLabel[c]
			}
		}
		minLabel[u] = min
	}

	for u := range t.Nodes {
		children := t.Nodes[u].Children
		if len(children) > 1 {
			sort.SliceStable(children, func(i, j int) bool {
				return minLabel[children[i]] < minLabel[children[j]]
			})
		}
	}
}

// AssignY assigns y-coordinates: leaves (in left-to-right order after
// SortChildren) are spaced leafStep apart starting at zero, and every
// internal node sits at the mean y of its immediate children.
func (t *Tree) AssignY(root int, leafStep float64) []float64 {
	t.SortChildren(root)

	y := make([]float64, len(t.Nodes))
	for i, lf := range t.Leaves(root) {
		y[lf] = float64(i) * leafStep
	}
	for _, u := range t.PostOrder(root) {
		children := t.Nodes[u].Children
		if len(children) == 0 {
			continue
		}
		sum := 0.0
		for _, c := range children {
			sum += y[c]
		}
		y[u] = sum / float64(len(children))
	}
	return y
}
