package syntax

import (
	"io"

	"gitast/internal/tree"
)

// PrintOptions tunes a single Print call.
type PrintOptions struct {
	// SkipLeading drops the layout in front of the first token.
	SkipLeading bool

	// Hole marks subtrees that are not printed. For each of them the layout
	// in front of the subtree is written and Fill is called instead.
	Hole func(tree.NodeID) bool
	Fill func(w io.Writer, id tree.NodeID) error
}

// LayoutPrinter prints a snapshot by writing every token's layout followed by
// its content in document order. Snapshots produced by Registry.Parse print
// back to the exact source they were parsed from.
type LayoutPrinter struct{}

// Print writes the subtree rooted at id to w. The trailer is written only
// when id is the root.
func (LayoutPrinter) Print(w io.Writer, s *tree.Snapshot, id tree.NodeID, opts PrintOptions) error {
	ew := &errWriter{w: w}
	first := true
	end := id + tree.NodeID(s.Size(id))
	for n := id; n < end && ew.err == nil; {
		if opts.Hole != nil && opts.Hole(n) {
			if !(first && opts.SkipLeading) {
				ew.WriteString(s.Layout(s.FirstLeaf(n)))
			}
			first = false
			if opts.Fill != nil {
				if err := opts.Fill(w, n); err != nil {
					return err
				}
			}
			n += tree.NodeID(s.Size(n))
			continue
		}
		if s.IsLeaf(n) {
			if !(first && opts.SkipLeading) {
				ew.WriteString(s.Layout(n))
			}
			first = false
			ew.WriteString(s.Content(n))
		}
		n++
	}
	if id == s.Root() {
		ew.WriteString(s.Trailer)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) WriteString(s string) {
	if e.err != nil || s == "" {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}
