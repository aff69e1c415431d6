package tree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ErrNoRoot is returned by Build when no node without a parent was added.
var ErrNoRoot = errors.New("tree has no root")

type draft struct {
	kind, content, layout string
	parent                NodeID
	children              []NodeID
}

// Builder assembles a Snapshot. Ids returned by Add are only meaningful to
// the builder; Build renumbers nodes into pre-order.
type Builder struct {
	lang    string
	trailer string
	drafts  []draft
}

// NewBuilder starts a snapshot for the given language.
func NewBuilder(lang string) *Builder {
	return &Builder{lang: lang}
}

// Add appends a node as the last child of parent and returns its builder id.
// Pass NoNode as parent for the root.
func (b *Builder) Add(parent NodeID, kind, content, layout string) NodeID {
	id := NodeID(len(b.drafts))
	b.drafts = append(b.drafts, draft{kind: kind, content: content, layout: layout, parent: parent})
	if parent != NoNode {
		b.drafts[parent].children = append(b.drafts[parent].children, id)
	}
	return id
}

// SetTrailer records the text that follows the last token.
func (b *Builder) SetTrailer(s string) { b.trailer = s }

// AddSubtree copies the subtree id of src under parent, layout included, and
// returns the builder id of the copy.
func (b *Builder) AddSubtree(parent NodeID, src *Snapshot, id NodeID) NodeID {
	n := src.nodes[id]
	top := b.Add(parent, n.Kind, n.Content, n.Layout)
	for _, c := range n.Children {
		b.AddSubtree(top, src, c)
	}
	return top
}

// Build validates the drafts and produces the immutable snapshot.
func (b *Builder) Build() (*Snapshot, error) {
	root := NoNode
	for i, d := range b.drafts {
		if d.parent != NoNode {
			continue
		}
		if root != NoNode {
			return nil, fmt.Errorf("tree has more than one root (nodes %d and %d)", root, i)
		}
		root = NodeID(i)
	}
	if root == NoNode {
		return nil, ErrNoRoot
	}

	s := &Snapshot{Lang: b.lang, Trailer: b.trailer, nodes: make([]Node, 0, len(b.drafts))}
	var place func(old, parent NodeID, pos int) NodeID
	place = func(old, parent NodeID, pos int) NodeID {
		d := b.drafts[old]
		id := NodeID(len(s.nodes))
		s.nodes = append(s.nodes, Node{
			Kind:    d.kind,
			Content: d.content,
			Layout:  d.layout,
			Parent:  parent,
			Pos:     pos,
		})
		var children []NodeID
		if len(d.children) > 0 {
			children = make([]NodeID, len(d.children))
		}
		for i, c := range d.children {
			children[i] = place(c, id, i)
		}
		s.nodes[id].Children = children
		return id
	}
	place(root, NoNode, 0)
	if len(s.nodes) != len(b.drafts) {
		return nil, fmt.Errorf("tree has %d unreachable nodes", len(b.drafts)-len(s.nodes))
	}

	var buf [binary.MaxVarintLen64]byte
	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := &s.nodes[i]
		d := xxhash.New()
		_, _ = d.WriteString(n.Kind)
		_, _ = d.Write(buf[:binary.PutUvarint(buf[:], uint64(len(n.Content)))])
		_, _ = d.WriteString(n.Content)
		n.Size, n.Height = 1, 1
		for _, c := range n.Children {
			child := s.nodes[c]
			binary.LittleEndian.PutUint64(buf[:8], child.Hash)
			_, _ = d.Write(buf[:8])
			n.Size += child.Size
			n.Height = max(n.Height, child.Height+1)
		}
		n.Hash = d.Sum64()
	}
	return s, nil
}
