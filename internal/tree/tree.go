// Package tree holds the immutable syntax tree snapshots that every other
// part of git-ast operates on.
//
// A Snapshot is an arena: nodes are addressed by NodeID, which is the node's
// index in pre-order. Because of that numbering the descendants of n are
// exactly the ids in the half-open range (n, n+Size(n)), which the diff and
// merge engines rely on for constant-time ancestry checks.
package tree

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside one snapshot.
type NodeID int32

// NoNode marks the absence of a node (the root's parent, a deleted side).
const NoNode NodeID = -1

// Node is one record in the arena.
type Node struct {
	Kind     string
	Content  string // token text; empty for interior nodes
	Layout   string // whitespace preceding the token, not part of the hash
	Parent   NodeID
	Pos      int // index among the parent's children
	Children []NodeID
	Hash     uint64
	Size     int // nodes in the subtree, including this one
	Height   int // 1 for tokens
}

// Snapshot is one version of one file.
type Snapshot struct {
	Lang    string
	Trailer string // text after the last token
	nodes   []Node
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Root returns the root id, or NoNode for a snapshot without nodes.
func (s *Snapshot) Root() NodeID {
	if len(s.nodes) == 0 {
		return NoNode
	}
	return 0
}

// Node returns a copy of the record for id. The Children slice is shared
// with the snapshot and must not be modified.
func (s *Snapshot) Node(id NodeID) Node { return s.nodes[id] }

func (s *Snapshot) Kind(id NodeID) string       { return s.nodes[id].Kind }
func (s *Snapshot) Content(id NodeID) string    { return s.nodes[id].Content }
func (s *Snapshot) Layout(id NodeID) string     { return s.nodes[id].Layout }
func (s *Snapshot) Parent(id NodeID) NodeID     { return s.nodes[id].Parent }
func (s *Snapshot) Pos(id NodeID) int           { return s.nodes[id].Pos }
func (s *Snapshot) Children(id NodeID) []NodeID { return s.nodes[id].Children }
func (s *Snapshot) Hash(id NodeID) uint64       { return s.nodes[id].Hash }
func (s *Snapshot) Size(id NodeID) int          { return s.nodes[id].Size }
func (s *Snapshot) Height(id NodeID) int        { return s.nodes[id].Height }

// IsLeaf reports whether id is a token.
func (s *Snapshot) IsLeaf(id NodeID) bool { return len(s.nodes[id].Children) == 0 }

// Valid reports whether id addresses a node of s.
func (s *Snapshot) Valid(id NodeID) bool { return id >= 0 && int(id) < len(s.nodes) }

// IsDescendant reports whether id lies strictly inside the subtree of anc.
func (s *Snapshot) IsDescendant(anc, id NodeID) bool {
	return id > anc && int(id) < int(anc)+s.nodes[anc].Size
}

// Contains reports whether id is anc or one of its descendants.
func (s *Snapshot) Contains(anc, id NodeID) bool {
	return id == anc || s.IsDescendant(anc, id)
}

// FirstLeaf returns the first token of the subtree rooted at id.
func (s *Snapshot) FirstLeaf(id NodeID) NodeID {
	for !s.IsLeaf(id) {
		id = s.nodes[id].Children[0]
	}
	return id
}

// Ancestors returns the ancestors of id from its parent up to the root.
func (s *Snapshot) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	for p := s.nodes[id].Parent; p != NoNode; p = s.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Path describes id by the kinds on the way down from the root, e.g.
// "source_file/function_declaration[1]/identifier".
func (s *Snapshot) Path(id NodeID) string {
	var parts []string
	for n := id; n != NoNode; n = s.nodes[n].Parent {
		part := s.nodes[n].Kind
		if p := s.nodes[n].Parent; p != NoNode && len(s.nodes[p].Children) > 1 {
			part = fmt.Sprintf("%s[%d]", part, s.nodes[n].Pos)
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Text returns the token contents of the subtree joined with their layout,
// skipping the layout in front of the first token.
func (s *Snapshot) Text(id NodeID) string {
	var sb strings.Builder
	first := true
	end := NodeID(int(id) + s.nodes[id].Size)
	for n := id; n < end; n++ {
		if !s.IsLeaf(n) {
			continue
		}
		if !first {
			sb.WriteString(s.nodes[n].Layout)
		}
		first = false
		sb.WriteString(s.nodes[n].Content)
	}
	return sb.String()
}

// PostOrder returns all ids with children before their parents.
func (s *Snapshot) PostOrder() []NodeID {
	out := make([]NodeID, 0, len(s.nodes))
	if len(s.nodes) == 0 {
		return out
	}
	var visit func(NodeID)
	visit = func(n NodeID) {
		for _, c := range s.nodes[n].Children {
			visit(c)
		}
		out = append(out, n)
	}
	visit(0)
	return out
}

// Isomorphic reports whether the subtree x of a and the subtree y of b are
// identical in kind, content and shape. Layout is ignored.
func Isomorphic(a *Snapshot, x NodeID, b *Snapshot, y NodeID) bool {
	na, nb := a.nodes[x], b.nodes[y]
	if na.Hash != nb.Hash || na.Size != nb.Size {
		return false
	}
	for i := 0; i < na.Size; i++ {
		pa, pb := a.nodes[int(x)+i], b.nodes[int(y)+i]
		if pa.Kind != pb.Kind || pa.Content != pb.Content || len(pa.Children) != len(pb.Children) {
			return false
		}
	}
	return true
}
