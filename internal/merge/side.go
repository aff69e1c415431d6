package merge

import (
	"gitast/internal/diff"
	"gitast/internal/tree"
)

type origin int8

const (
	fromBase origin = iota
	fromOurs
	fromTheirs
)

// key names a node of the merged tree by where it comes from.
type key struct {
	side origin
	id   tree.NodeID
}

var noKey = key{side: fromBase, id: tree.NoNode}

// placement is a parent and the sibling a node follows; noKey as anchor
// means first child.
type placement struct {
	parent, anchor key
}

// side is one of the two edited versions seen through its diff from base.
type side struct {
	origin origin
	snap   *tree.Snapshot
	script *diff.Script
	moved  map[tree.NodeID]bool // base nodes with a Move action
	alias  map[tree.NodeID]key  // inserted nodes folded into the other side
}

func newSide(o origin, base, snap *tree.Snapshot, opts diff.Options) *side {
	s := &side{
		origin: o,
		snap:   snap,
		script: diff.Compute(base, snap, opts),
		moved:  make(map[tree.NodeID]bool),
		alias:  make(map[tree.NodeID]key),
	}
	for _, a := range s.script.Actions {
		if a.Op == diff.Move {
			s.moved[a.Src] = true
		}
	}
	return s
}

// counterpart returns the node base node b became on this side.
func (s *side) counterpart(b tree.NodeID) tree.NodeID { return s.script.Mapping.Dst(b) }

func (s *side) deleted(b tree.NodeID) bool { return s.counterpart(b) == tree.NoNode }

func (s *side) inserted(x tree.NodeID) bool { return s.script.Mapping.Src(x) == tree.NoNode }

// key translates node x of this side into the merged tree.
func (s *side) key(x tree.NodeID) key {
	if x == tree.NoNode {
		return noKey
	}
	if b := s.script.Mapping.Src(x); b != tree.NoNode {
		return key{side: fromBase, id: b}
	}
	if k, ok := s.alias[x]; ok {
		return k
	}
	return key{side: s.origin, id: x}
}

func (s *side) place(x tree.NodeID) placement {
	p := s.snap.Parent(x)
	if p == tree.NoNode {
		return placement{parent: noKey, anchor: noKey}
	}
	anchor := noKey
	if pos := s.snap.Pos(x); pos > 0 {
		anchor = s.key(s.snap.Children(p)[pos-1])
	}
	return placement{parent: s.key(p), anchor: anchor}
}

// placesUnder reports whether this side puts a node under base node b that
// base does not have there.
func (s *side) placesUnder(b tree.NodeID) bool {
	x := s.counterpart(b)
	if x == tree.NoNode {
		return false
	}
	for _, c := range s.snap.Children(x) {
		src := s.script.Mapping.Src(c)
		if src == tree.NoNode || s.moved[src] {
			return true
		}
	}
	return false
}

// edits reports whether this side changed base node b in place.
func (s *side) edits(base *tree.Snapshot, b tree.NodeID) bool {
	x := s.counterpart(b)
	if x == tree.NoNode {
		return false
	}
	return s.moved[b] || s.snap.Content(x) != base.Content(b) || s.placesUnder(b)
}

// insertRoot reports whether x starts a subtree that exists only on this
// side.
func (s *side) insertRoot(x tree.NodeID) bool {
	if !s.inserted(x) {
		return false
	}
	if p := s.snap.Parent(x); p != tree.NoNode && s.inserted(p) {
		return false
	}
	for i := 0; i < s.snap.Size(x); i++ {
		if !s.inserted(x + tree.NodeID(i)) {
			return false
		}
	}
	return true
}

// runs groups the subtrees that exist only on this side into maximal runs
// of adjacent siblings, in document order.
func (s *side) runs() [][]tree.NodeID {
	var out [][]tree.NodeID
	for x := tree.NodeID(0); int(x) < s.snap.Len(); x++ {
		if !s.insertRoot(x) {
			continue
		}
		p := s.snap.Parent(x)
		if p == tree.NoNode {
			out = append(out, []tree.NodeID{x})
			continue
		}
		siblings, pos := s.snap.Children(p), s.snap.Pos(x)
		if pos > 0 && s.insertRoot(siblings[pos-1]) {
			continue
		}
		run := []tree.NodeID{x}
		for i := pos + 1; i < len(siblings) && s.insertRoot(siblings[i]); i++ {
			run = append(run, siblings[i])
		}
		out = append(out, run)
	}
	return out
}
