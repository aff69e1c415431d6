package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"gitast/internal/tree"
)

// Parse converts src into a snapshot using the grammar selected by pathname.
// Every token of the concrete syntax tree is kept and the whitespace in front
// of it is recorded as its layout, so printing the snapshot gives back src.
func (r *Registry) Parse(ctx context.Context, pathname string, src []byte) (*tree.Snapshot, error) {
	lang, err := r.Detect(pathname)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang.grammar())
	cst, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", pathname, err)
	}

	root := cst.RootNode()
	if root.HasError() {
		return nil, locateError(pathname, root)
	}

	c := &converter{src: src, literal: lang.literal, b: tree.NewBuilder(lang.Name)}
	c.walk(root, tree.NoNode)
	c.b.SetTrailer(string(src[c.prev:]))
	return c.b.Build()
}

type converter struct {
	src     []byte
	literal func(string) bool
	b       *tree.Builder
	prev    uint32 // end of the last emitted token
}

func (c *converter) walk(n *sitter.Node, parent tree.NodeID) {
	if n.ChildCount() == 0 || c.collapse(n) {
		c.token(n, parent)
		return
	}
	id := c.b.Add(parent, n.Type(), "", "")
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.StartByte() == child.EndByte() && child.ChildCount() == 0 {
			continue
		}
		c.walk(child, id)
	}
}

func (c *converter) token(n *sitter.Node, parent tree.NodeID) {
	start, end := n.StartByte(), n.EndByte()
	if start < c.prev {
		start = c.prev
	}
	c.b.Add(parent, n.Type(), string(c.src[start:end]), string(c.src[c.prev:start]))
	c.prev = end
}

// collapse reports whether n has to be kept as a single token: literals, and
// nodes whose children leave non-whitespace text uncovered.
func (c *converter) collapse(n *sitter.Node) bool {
	if c.literal != nil && c.literal(n.Type()) {
		return true
	}
	at := n.StartByte()
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if strings.TrimSpace(string(c.src[at:child.StartByte()])) != "" {
			return true
		}
		if child.EndByte() > at {
			at = child.EndByte()
		}
	}
	return strings.TrimSpace(string(c.src[at:n.EndByte()])) != ""
}

// locateError finds the first error or missing node in document order.
func locateError(pathname string, root *sitter.Node) *ParseError {
	var found *sitter.Node
	var visit func(n *sitter.Node) bool
	visit = func(n *sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			found = n
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if (child.HasError() || child.IsMissing()) && visit(child) {
				return true
			}
		}
		return false
	}
	visit(root)
	if found == nil {
		found = root
	}

	kind := "ERROR"
	if found.IsMissing() {
		kind = "missing " + found.Type()
	} else if found.ChildCount() > 0 {
		kind = found.Child(0).Type()
	}
	p := found.StartPoint()
	return &ParseError{Path: pathname, Line: int(p.Row) + 1, Column: int(p.Column) + 1, Kind: kind}
}
