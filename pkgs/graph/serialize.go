// Package graph rewrites visual point/link tables into a dense
// integer-indexed payload and streams it as gzip-compressed JSON in
// bounded memory.
package graph

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"runtime"

	"github.com/gganty/Gtol/pkgs/layout"
)

// BatchSize is the number of records serialized per write. Batching keeps
// peak memory flat regardless of table size.
const BatchSize = 50000

// BrokenID is the sentinel written for link endpoints whose id failed
// lookup. Broken links are retained, not dropped.
const BrokenID = -1

// Node is one serialized point record. Field order is part of the wire
// contract with the GPU renderer.
type Node struct {
	ID    int     `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
	Label string  `json:"label"`
	Kind  string  `json:"kind"`
}

// Link is one serialized edge record.
type Link struct {
	Source int    `json:"source"`
	Target int    `json:"target"`
	Color  string `json:"color"`
}

// Dataset holds the two tables in their final integer-indexed form.
type Dataset struct {
	Nodes []Node
	Links []Link
}

// RawNode and RawLink carry producer-assigned string ids. External tools
// emit arbitrary keys; the layout engine emits decimal integers.
type RawNode struct {
	ID    string
	X     float64
	Y     float64
	Size  float64
	Color string
	Label string
	Kind  string
}

type RawLink struct {
	Source string
	Target string
	Color  string
}

// Remap rewrites string ids to a dense integer namespace sequential from
// zero. Link endpoints that fail lookup become BrokenID.
func Remap(nodes []RawNode, links []RawLink) *Dataset {
	idMap := make(map[string]int, len(nodes))
	out := &Dataset{
		Nodes: make([]Node, len(nodes)),
		Links: make([]Link, len(links)),
	}
	for i, n := range nodes {
		idMap[n.ID] = i
		out.Nodes[i] = Node{
			ID:    i,
			X:     n.X,
			Y:     n.Y,
			Size:  n.Size,
			Color: n.Color,
			Label: n.Label,
			Kind:  n.Kind,
		}
	}
	for i, l := range links {
		src, ok := idMap[l.Source]
		if !ok {
			src = BrokenID
		}
		tgt, ok := idMap[l.Target]
		if !ok {
			tgt = BrokenID
		}
		out.Links[i] = Link{Source: src, Target: tgt, Color: l.Color}
	}
	return out
}

// FromLayout remaps a layout graph. The layout engine already produces a
// dense id prefix, but the remap is kept defensive: any link endpoint that
// does not name an emitted point becomes BrokenID.
func FromLayout(g *layout.Graph) *Dataset {
	idMap := make(map[int]int, len(g.Points))
	out := &Dataset{
		Nodes: make([]Node, len(g.Points)),
		Links: make([]Link, len(g.Links)),
	}
	for i, p := range g.Points {
		idMap[p.ID] = i
		out.Nodes[i] = Node{
			ID:    i,
			X:     p.X,
			Y:     p.Y,
			Size:  p.Size,
			Color: p.Color,
			Label: p.Label,
			Kind:  p.Kind,
		}
	}
	for i, l := range g.Links {
		src, ok := idMap[l.Source]
		if !ok {
			src = BrokenID
		}
		tgt, ok := idMap[l.Target]
		if !ok {
			tgt = BrokenID
		}
		out.Links[i] = Link{Source: src, Target: tgt, Color: l.Color}
	}
	return out
}

// ProgressFunc receives serialization progress: 0-50% while nodes stream,
// 50-100% while links stream, stage "compressing" throughout.
type ProgressFunc func(stage string, progress float64)

// StageCompressing is the stage name posted while the payload streams.
const StageCompressing = "compressing"

// WriteGzip streams the dataset as gzip-compressed JSON with the exact
// shape {"nodes":[...],"links":[...]}. Records are marshaled in fixed-size
// batches so the full JSON text never materializes; the scheduler is
// yielded between batches to keep event-loop latency bounded.
func (d *Dataset) WriteGzip(w io.Writer, progress ProgressFunc) error {
	report := func(p float64) {
		if progress != nil {
			progress(StageCompressing, p)
		}
	}
	report(0)

	gz := gzip.NewWriter(w)
	bw := bufio.NewWriterSize(gz, 1<<16)

	if _, err := bw.WriteString(`{"nodes":[`); err != nil {
		return err
	}
	if err := writeBatches(bw, len(d.Nodes), func(lo, hi int) ([]byte, error) {
		return marshalBatch(d.Nodes[lo:hi])
	}, func(done int) {
		report(50 * float64(done) / float64(max(1, len(d.Nodes))))
	}); err != nil {
		return err
	}

	if _, err := bw.WriteString(`],"links":[`); err != nil {
		return err
	}
	if err := writeBatches(bw, len(d.Links), func(lo, hi int) ([]byte, error) {
		return marshalBatch(d.Links[lo:hi])
	}, func(done int) {
		report(50 + 50*float64(done)/float64(max(1, len(d.Links))))
	}); err != nil {
		return err
	}

	if _, err := bw.WriteString(`]}`); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return gz.Close()
}

// marshalBatch serializes a record slice and strips the enclosing array
// brackets so batches can be joined with commas.
func marshalBatch[T any](records []T) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return data[1 : len(data)-1], nil
}

// writeBatches emits total records in BatchSize slices, comma-separated,
// never with a trailing comma.
func writeBatches(w *bufio.Writer, total int, marshal func(lo, hi int) ([]byte, error), onBatch func(done int)) error {
	for lo := 0; lo < total; lo += BatchSize {
		hi := lo + BatchSize
		if hi > total {
			hi = total
		}
		inner, err := marshal(lo, hi)
		if err != nil {
			return err
		}
		if lo > 0 && len(inner) > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.Write(inner); err != nil {
			return err
		}
		onBatch(hi)
		runtime.Gosched()
	}
	return nil
}
