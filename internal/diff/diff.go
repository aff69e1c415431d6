// Package diff computes structural edit scripts between two snapshots.
//
// Matching follows the GumTree approach: identical subtrees are paired top
// down, containers are then paired bottom up by the share of matched
// descendants, and the children of every container pair are aligned to pick
// up renamed tokens. The edit script is derived from the final mapping.
package diff

import (
	"fmt"

	"gitast/internal/tree"
)

type Options struct {
	MinSubtreeSize      int
	SimilarityThreshold float64
}

func DefaultOptions() Options {
	return Options{MinSubtreeSize: 2, SimilarityThreshold: 0.5}
}

type Op int

const (
	Insert Op = iota
	Delete
	Move
	Update
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Move:
		return "move"
	case Update:
		return "update"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Action is one edit. Src is the affected node of the old snapshot and Dst
// the node of the new snapshot it becomes; Insert has no Src and Delete no
// Dst. Parent and Position give the place of Dst in the new snapshot.
type Action struct {
	Op       Op
	Src      tree.NodeID
	Dst      tree.NodeID
	Parent   tree.NodeID
	Position int
	Content  string
}

type Script struct {
	Src, Dst *tree.Snapshot
	Mapping  *Mapping
	Actions  []Action
}

// Empty reports whether the snapshots are structurally equal.
func (s *Script) Empty() bool { return len(s.Actions) == 0 }

// Compute returns the edit script transforming src into dst. The result
// depends only on the two snapshots and the options.
func Compute(src, dst *tree.Snapshot, opts Options) *Script {
	if opts.MinSubtreeSize < 1 {
		opts.MinSubtreeSize = 1
	}
	mt := &matcher{src: src, dst: dst, opts: opts, m: newMapping(src, dst)}
	if src.Len() > 0 && dst.Len() > 0 {
		mt.topDown()
		mt.bottomUp()
	}
	return &Script{Src: src, Dst: dst, Mapping: mt.m, Actions: generate(src, dst, mt.m)}
}

func generate(src, dst *tree.Snapshot, m *Mapping) []Action {
	var actions []Action

	// Children that stay under the same parent but leave the longest
	// common order of their siblings are moves.
	reordered := make(map[tree.NodeID]bool)
	for d := tree.NodeID(0); int(d) < dst.Len(); d++ {
		s := m.Src(d)
		if s == tree.NoNode || dst.IsLeaf(d) {
			continue
		}
		var dc, sc []tree.NodeID
		for _, c := range dst.Children(d) {
			if x := m.Src(c); x != tree.NoNode && src.Parent(x) == s {
				dc = append(dc, c)
			}
		}
		for _, c := range src.Children(s) {
			if y := m.Dst(c); y != tree.NoNode && dst.Parent(y) == d {
				sc = append(sc, c)
			}
		}
		kept := make(map[tree.NodeID]bool)
		for _, p := range lcs(len(sc), len(dc), func(i, j int) bool { return m.Dst(sc[i]) == dc[j] }) {
			kept[dc[p[1]]] = true
		}
		for _, c := range dc {
			if !kept[c] {
				reordered[c] = true
			}
		}
	}

	for d := tree.NodeID(0); int(d) < dst.Len(); d++ {
		parent, pos := dst.Parent(d), dst.Pos(d)
		s := m.Src(d)
		if s == tree.NoNode {
			actions = append(actions, Action{Op: Insert, Src: tree.NoNode, Dst: d, Parent: parent, Position: pos, Content: dst.Content(d)})
			continue
		}
		if src.Content(s) != dst.Content(d) {
			actions = append(actions, Action{Op: Update, Src: s, Dst: d, Parent: parent, Position: pos, Content: dst.Content(d)})
		}
		moved := reordered[d]
		if parent != tree.NoNode && m.Src(parent) != src.Parent(s) {
			moved = true
		}
		if moved {
			actions = append(actions, Action{Op: Move, Src: s, Dst: d, Parent: parent, Position: pos})
		}
	}

	for _, s := range src.PostOrder() {
		if m.Dst(s) == tree.NoNode {
			actions = append(actions, Action{Op: Delete, Src: s, Dst: tree.NoNode, Parent: tree.NoNode, Position: -1})
		}
	}
	return actions
}
