// Package render turns engine results into text for people: merged files
// with conflict markers, edit scripts and plain unified diffs.
package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"

	"gitast/internal/merge"
	"gitast/internal/syntax"
	"gitast/internal/tree"
)

// DefaultMarkerSize is the marker length git uses when none is configured.
const DefaultMarkerSize = 7

// Printer renders a subtree of a snapshot.
type Printer interface {
	Print(w io.Writer, s *tree.Snapshot, id tree.NodeID, opts syntax.PrintOptions) error
}

// segment is either literal merged text or a conflict hole.
type segment struct {
	text     string
	conflict int
}

// segmenter collects the output of one Print call, splitting it at holes.
type segmenter struct {
	segs []segment
}

func (s *segmenter) Write(p []byte) (int, error) {
	if n := len(s.segs); n > 0 && s.segs[n-1].conflict < 0 {
		s.segs[n-1].text += string(p)
	} else {
		s.segs = append(s.segs, segment{text: string(p), conflict: -1})
	}
	return len(p), nil
}

func (s *segmenter) hole(i int) {
	s.segs = append(s.segs, segment{conflict: i})
}

// Conflicts writes the merged file. Every conflict is widened to the lines
// it touches in the merged text and written as a marker block holding the
// ours and theirs versions of those lines; conflicts sharing a line end up
// in one block.
func Conflicts(w io.Writer, p Printer, res *merge.Result, markerSize int) error {
	if markerSize <= 0 {
		markerSize = DefaultMarkerSize
	}
	if res.Clean() {
		return p.Print(w, res.Tree, res.Tree.Root(), syntax.PrintOptions{})
	}

	byNode := lo.SliceToMap(lo.Range(len(res.Conflicts)), func(i int) (tree.NodeID, int) {
		return res.Conflicts[i].Node, i
	})
	if _, ok := byNode[res.Tree.Root()]; ok {
		return wholeFile(w, p, res, markerSize)
	}

	seg := &segmenter{}
	err := p.Print(seg, res.Tree, res.Tree.Root(), syntax.PrintOptions{
		Hole: func(id tree.NodeID) bool {
			_, ok := byNode[id]
			return ok
		},
		Fill: func(_ io.Writer, id tree.NodeID) error {
			seg.hole(byNode[id])
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to print merged tree: %w", err)
	}

	var out bytes.Buffer
	segs := seg.segs
	for i := 0; i < len(segs); {
		if segs[i].conflict < 0 {
			out.WriteString(segs[i].text)
			i++
			continue
		}

		// Pull the start of the current line back out of the output.
		prefix := ""
		if cut := bytes.LastIndexByte(out.Bytes(), '\n') + 1; cut < out.Len() {
			prefix = string(out.Bytes()[cut:])
			out.Truncate(cut)
		}
		var ours, theirs strings.Builder
		ours.WriteString(prefix)
		theirs.WriteString(prefix)

		for i < len(segs) {
			if c := segs[i].conflict; c >= 0 {
				o, t, err := sides(p, res, res.Conflicts[c])
				if err != nil {
					return err
				}
				ours.WriteString(o)
				theirs.WriteString(t)
				i++
				continue
			}
			text := segs[i].text
			if nl := strings.IndexByte(text, '\n'); nl >= 0 {
				ours.WriteString(text[:nl+1])
				theirs.WriteString(text[:nl+1])
				segs[i].text = text[nl+1:]
				break
			}
			ours.WriteString(text)
			theirs.WriteString(text)
			i++
		}
		writeBlock(&out, ours.String(), theirs.String(), markerSize)
	}

	_, err = w.Write(out.Bytes())
	return err
}

// sides prints the ours and theirs versions of a conflict without their
// leading layout. A side that deleted the node prints as nothing.
func sides(p Printer, res *merge.Result, c merge.Conflict) (string, string, error) {
	ours, err := side(p, res.Ours, c.Ours)
	if err != nil {
		return "", "", err
	}
	theirs, err := side(p, res.Theirs, c.Theirs)
	if err != nil {
		return "", "", err
	}
	return ours, theirs, nil
}

func side(p Printer, s *tree.Snapshot, id tree.NodeID) (string, error) {
	if id == tree.NoNode {
		return "", nil
	}
	var buf bytes.Buffer
	if err := p.Print(&buf, s, id, syntax.PrintOptions{SkipLeading: true}); err != nil {
		return "", fmt.Errorf("failed to print conflict side: %w", err)
	}
	return buf.String(), nil
}

func wholeFile(w io.Writer, p Printer, res *merge.Result, markerSize int) error {
	var ours, theirs bytes.Buffer
	if err := p.Print(&ours, res.Ours, res.Ours.Root(), syntax.PrintOptions{}); err != nil {
		return fmt.Errorf("failed to print ours: %w", err)
	}
	if err := p.Print(&theirs, res.Theirs, res.Theirs.Root(), syntax.PrintOptions{}); err != nil {
		return fmt.Errorf("failed to print theirs: %w", err)
	}
	var out bytes.Buffer
	writeBlock(&out, ours.String(), theirs.String(), markerSize)
	_, err := w.Write(out.Bytes())
	return err
}

func writeBlock(out *bytes.Buffer, ours, theirs string, size int) {
	out.WriteString(strings.Repeat("<", size) + " HEAD\n")
	out.WriteString(blockSide(ours))
	out.WriteString(strings.Repeat("=", size) + "\n")
	out.WriteString(blockSide(theirs))
	out.WriteString(strings.Repeat(">", size) + " BRANCH\n")
}

// blockSide drops sides that are only whitespace, which is what remains of
// a line whose content was deleted, and terminates the rest with a newline.
func blockSide(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
