package parser

import (
	"strconv"

	u "github.com/araddon/gou"

	"github.com/gganty/Gtol/pkgs/lexer"
	"github.com/gganty/Gtol/pkgs/tree"
)

// SyntheticRootID is the id of the root fabricated over multi-rooted input.
const SyntheticRootID = "root0"

// ProgressFunc receives fractional completion estimates in [0, 1].
type ProgressFunc func(fraction float64)

// Option configures a parse
type Option func(*config)

type config struct {
	limit     int
	progress  ProgressFunc
	firstTree bool
}

// WithLimit sets a soft node-count cutoff: once the arena reaches limit
// nodes, parsing halts and the partial tree is finalized. Zero means no
// limit.
func WithLimit(limit int) Option {
	return func(c *config) { c.limit = limit }
}

// WithProgress installs a callback for coarse completion estimates.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) { c.progress = fn }
}

// WithFirstTreeOnly stops at the first ';' instead of unifying a multi-tree
// document into one forest under a synthetic root.
func WithFirstTreeOnly() Option {
	return func(c *config) { c.firstTree = true }
}

// Parse consumes Newick text and builds the logical tree. Multi-rooted
// input (several parenthesis groups at top level, or several ';'-separated
// trees) is unified under a synthetic "root0" whose children are the
// original roots in parse order.
func Parse(input string, opts ...Option) (*tree.Tree, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	lex := lexer.NewFromString(input)

	t := &tree.Tree{}

	// Parser state: a stack of parent indices (one entry per open group),
	// the current parent cursor, and the most recently created or closed
	// node. The pending length slot buffers a length seen while no node is
	// current, until the enclosing group closes. A name in that position
	// starts a new leaf, so the pending name slot is never filled.
	stack := make([]int, 0, 64)
	currentParent := tree.NoParent
	last := tree.NoParent
	pendingName := ""
	havePendingName := false
	pendingLen := 0.0
	havePendingLen := false

	newNode := func() int {
		idx := len(t.Nodes)
		t.Nodes = append(t.Nodes, tree.Node{
			ID:     "n" + strconv.Itoa(idx+1),
			Parent: tree.NoParent,
		})
		return idx
	}

	// Progress is estimated from token count against a rough denominator
	// derived from the input length, reported at most once per 1% change.
	denominator := float64(lex.Len()) / 10
	if denominator < 1 {
		denominator = 1
	}
	tokensProcessed := 0
	lastReport := 0.0

scan:
	for {
		if cfg.limit > 0 && len(t.Nodes) >= cfg.limit {
			u.Warnf("parse: hit limit of %d nodes, stopping", cfg.limit)
			break
		}

		tok := lex.NextToken()
		tokensProcessed++
		if cfg.progress != nil && tokensProcessed%1000 == 0 {
			estimated := float64(tokensProcessed) / denominator
			if estimated > 1 {
				estimated = 1
			}
			if estimated-lastReport >= 0.01 {
				cfg.progress(estimated)
				lastReport = estimated
			}
		}

		switch tok.Type {
		case lexer.EOF:
			if currentParent != tree.NoParent {
				return nil, NewDetailedParseError(tok.Line, tok.Column,
					contextLine(input, tok.Line),
					"unexpected end of input: %d unclosed '('", len(stack))
			}
			break scan

		case lexer.ILLEGAL:
			return nil, NewDetailedParseError(tok.Line, tok.Column,
				contextLine(input, tok.Line),
				"unexpected token %q", tok.Value)

		case lexer.LPAREN:
			idx := newNode()
			if currentParent != tree.NoParent {
				t.Nodes[currentParent].Children = append(t.Nodes[currentParent].Children, idx)
				t.Nodes[idx].Parent = currentParent
			}
			stack = append(stack, currentParent)
			currentParent = idx
			last = tree.NoParent

		case lexer.COMMA:
			last = tree.NoParent
			havePendingName = false
			havePendingLen = false

		case lexer.RPAREN:
			if currentParent == tree.NoParent {
				return nil, NewDetailedParseError(tok.Line, tok.Column,
					contextLine(input, tok.Line),
					"unbalanced ')'")
			}
			if havePendingName {
				t.Nodes[currentParent].Name = pendingName
				havePendingName = false
			}
			if havePendingLen {
				t.Nodes[currentParent].Length = pendingLen
				havePendingLen = false
			}
			closed := currentParent
			currentParent = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			last = closed

		case lexer.SEMICOLON:
			if cfg.firstTree {
				break scan
			}
			// Tree separator: reset cursors, keep accumulating roots
			stack = stack[:0]
			currentParent = tree.NoParent
			last = tree.NoParent
			havePendingName = false
			havePendingLen = false

		case lexer.LENGTH:
			l, err := strconv.ParseFloat(tok.Value, 64)
			if err != nil {
				// Recover locally: an unparseable length becomes zero
				u.Debugf("parse: bad branch length %q at %s, using 0", tok.Value, tok.Position())
				l = 0
			}
			if last == tree.NoParent {
				pendingLen = l
				havePendingLen = true
			} else {
				t.Nodes[last].Length = l
			}

		case lexer.NAME:
			if last != tree.NoParent {
				// Labels the node just closed (or re-labels a leaf)
				t.Nodes[last].Name = tok.Value
			} else {
				idx := newNode()
				t.Nodes[idx].Name = tok.Value
				t.Nodes[idx].Parent = currentParent
				if currentParent != tree.NoParent {
					t.Nodes[currentParent].Children = append(t.Nodes[currentParent].Children, idx)
				}
				last = idx
			}
			havePendingName = false
			havePendingLen = false
		}
	}

	if len(t.Nodes) == 0 {
		return nil, ErrEmptyTree
	}

	root, err := unifyRoots(t)
	if err != nil {
		return nil, err
	}

	if cfg.progress != nil {
		cfg.progress(1.0)
	}
	u.Infof("parse: nodes=%d root=%s", len(t.Nodes), t.Nodes[root].ID)
	return t, nil
}

// unifyRoots finds the root set and, when more than one root exists,
// fabricates a synthetic root above them in parse order.
func unifyRoots(t *tree.Tree) (int, error) {
	var roots []int
	for i := range t.Nodes {
		if t.Nodes[i].Parent == tree.NoParent {
			roots = append(roots, i)
		}
	}
	if len(roots) == 0 {
		// Every node has a parent: the input closed a cycle, which a
		// parenthesis grammar cannot produce, so treat it as empty.
		return tree.NoParent, ErrEmptyTree
	}
	if len(roots) == 1 {
		return roots[0], nil
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, tree.Node{
		ID:       SyntheticRootID,
		Name:     "root",
		Parent:   tree.NoParent,
		Length:   0,
		Children: roots,
	})
	for _, r := range roots {
		t.Nodes[r].Parent = idx
	}
	return idx, nil
}
