package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gganty/Gtol/pkgs/tree"
)

// summarize renders a parsed tree as "id/name:length(parent)" rows for
// compact comparison
func summarize(t *tree.Tree) []string {
	rows := make([]string, 0, len(t.Nodes))
	for i := range t.Nodes {
		n := t.Nodes[i]
		parent := "-"
		if n.Parent != tree.NoParent {
			parent = t.Nodes[n.Parent].ID
		}
		rows = append(rows, n.ID+"/"+n.Name+":"+trimFloat(n.Length)+"("+parent+")")
	}
	return rows
}

func trimFloat(f float64) string {
	switch f {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "?"
	}
}

func TestParseTwoLeafTree(t *testing.T) {
	tr, err := Parse("(A:1,B:2);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []string{
		"n1/:0(-)",
		"n2/A:1(n1)",
		"n3/B:2(n1)",
	}
	if diff := cmp.Diff(want, summarize(tr)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	root, err := tr.Root()
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	if root != 0 {
		t.Errorf("root = %d, want 0", root)
	}
	if diff := cmp.Diff([]int{1, 2}, tr.Nodes[root].Children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInternalLabelAndLength(t *testing.T) {
	tr, err := Parse("((A:1,B:1)AB:3,C:2);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var ab *tree.Node
	for i := range tr.Nodes {
		if tr.Nodes[i].Name == "AB" {
			ab = &tr.Nodes[i]
		}
	}
	if ab == nil {
		t.Fatal("internal node AB not found")
	}
	if ab.Length != 3 {
		t.Errorf("AB length = %v, want 3", ab.Length)
	}
	if len(ab.Children) != 2 {
		t.Errorf("AB children = %d, want 2", len(ab.Children))
	}
}

func TestParsePolytomy(t *testing.T) {
	tr, err := Parse("(A:1,B:1,C:1,D:1);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tr.Len() != 5 {
		t.Fatalf("node count = %d, want 5", tr.Len())
	}
	root, _ := tr.Root()
	if len(tr.Nodes[root].Children) != 4 {
		t.Errorf("root children = %d, want 4", len(tr.Nodes[root].Children))
	}
}

func TestParseForestUnification(t *testing.T) {
	tr, err := Parse("(A:1,B:1);(C:1,D:1);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	root, err := tr.Root()
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	rootNode := tr.Nodes[root]
	if rootNode.ID != SyntheticRootID {
		t.Errorf("root id = %q, want %q", rootNode.ID, SyntheticRootID)
	}
	if rootNode.Name != "root" {
		t.Errorf("root name = %q, want \"root\"", rootNode.Name)
	}
	if rootNode.Length != 0 {
		t.Errorf("root length = %v, want 0", rootNode.Length)
	}
	if len(rootNode.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(rootNode.Children))
	}

	// Exactly one parentless node after unification
	parentless := 0
	for i := range tr.Nodes {
		if tr.Nodes[i].Parent == tree.NoParent {
			parentless++
		}
	}
	if parentless != 1 {
		t.Errorf("parentless nodes = %d, want 1", parentless)
	}

	leaves := tr.Leaves(root)
	if len(leaves) != 4 {
		t.Errorf("leaves = %d, want 4", len(leaves))
	}
}

func TestParseFirstTreeOnly(t *testing.T) {
	tr, err := Parse("(A:1,B:1);(C:1,D:1);", WithFirstTreeOnly())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tr.Len() != 3 {
		t.Errorf("node count = %d, want 3", tr.Len())
	}
}

func TestParseTopLevelGroupsWithoutSeparator(t *testing.T) {
	tr, err := Parse("(A,B)(C,D);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	root, _ := tr.Root()
	if tr.Nodes[root].ID != SyntheticRootID {
		t.Errorf("root id = %q, want %q", tr.Nodes[root].ID, SyntheticRootID)
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", ";", ";;;"} {
		if _, err := Parse(input); !errors.Is(err, ErrEmptyTree) {
			t.Errorf("Parse(%q) error = %v, want ErrEmptyTree", input, err)
		}
	}
}

func TestParseUnbalanced(t *testing.T) {
	_, err := Parse("(A,B")
	if err == nil {
		t.Fatal("expected error for unbalanced input")
	}
	if !strings.Contains(err.Error(), "MalformedInput") {
		t.Errorf("error %q does not carry the MalformedInput kind", err.Error())
	}

	if _, err := Parse("(A,B))"); err == nil {
		t.Error("expected error for extra ')'")
	}
}

func TestParseMalformedLengthToken(t *testing.T) {
	_, err := Parse("(A:xyz,B);")
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ParseError", err)
	}
	if !strings.Contains(err.Error(), "MalformedInput") {
		t.Errorf("error %q does not carry the MalformedInput kind", err.Error())
	}
}

func TestParseQuotedLabels(t *testing.T) {
	tr, err := Parse("('Homo sapiens':1,'Pan\ttroglodytes':1);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var names []string
	for i := range tr.Nodes {
		if tr.IsLeaf(i) {
			names = append(names, tr.Nodes[i].Name)
		}
	}
	want := []string{"Homo sapiens", "Pan\ttroglodytes"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBufferedLengthAttachesToEnclosingGroup(t *testing.T) {
	// A length with no current node buffers until the group closes
	tr, err := Parse("(A,:1);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	root, _ := tr.Root()
	if tr.Nodes[root].Length != 1 {
		t.Errorf("root length = %v, want 1 (buffered)", tr.Nodes[root].Length)
	}
}

func TestParseLengthAfterGroupClose(t *testing.T) {
	tr, err := Parse("((A,B):2,C);")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var inner *tree.Node
	for i := range tr.Nodes {
		if len(tr.Nodes[i].Children) == 2 && tr.Nodes[i].Parent != tree.NoParent {
			inner = &tr.Nodes[i]
		}
	}
	if inner == nil {
		t.Fatal("inner group not found")
	}
	if inner.Length != 2 {
		t.Errorf("inner length = %v, want 2", inner.Length)
	}
}

func TestParseLimit(t *testing.T) {
	tr, err := Parse("(A,B,C,D,E,F,G,H);", WithLimit(4))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tr.Len() != 4 {
		t.Errorf("node count = %d, want 4 (soft cutoff)", tr.Len())
	}
	if _, err := tr.Root(); err != nil {
		t.Errorf("partial tree has no root: %v", err)
	}
}

func TestParseProgressReported(t *testing.T) {
	// Enough tokens to cross the 1000-token reporting interval
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < 2000; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("x:1")
	}
	sb.WriteString(");")

	var reports []float64
	_, err := Parse(sb.String(), WithProgress(func(p float64) {
		reports = append(reports, p)
	}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("no progress reported")
	}
	last := reports[len(reports)-1]
	if last != 1.0 {
		t.Errorf("final progress = %v, want 1.0", last)
	}
	for _, p := range reports {
		if p < 0 || p > 1 {
			t.Errorf("progress %v out of [0,1]", p)
		}
	}
}

func TestParentChildConsistency(t *testing.T) {
	inputs := []string{
		"(A:1,B:2);",
		"((A,B),(C,(D,E)));",
		"(A,B,C,D);",
		"(A,B);(C,D);",
	}
	for _, input := range inputs {
		tr, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", input, err)
		}
		for i := range tr.Nodes {
			for _, c := range tr.Nodes[i].Children {
				if tr.Nodes[c].Parent != i {
					t.Errorf("%q: node %d child %d has parent %d", input, i, c, tr.Nodes[c].Parent)
				}
			}
			if p := tr.Nodes[i].Parent; p != tree.NoParent {
				found := false
				for _, c := range tr.Nodes[p].Children {
					if c == i {
						found = true
					}
				}
				if !found {
					t.Errorf("%q: node %d missing from parent %d's children", input, i, p)
				}
			}
		}
	}
}
