// Package merge reconciles two edit scripts against a common base into one
// merged snapshot, recording the places where the sides disagree.
package merge

import (
	"fmt"

	"gitast/internal/diff"
	"gitast/internal/tree"
)

type ConflictKind int

const (
	ContentConflict ConflictKind = iota
	MoveConflict
	DeleteEditConflict
)

func (k ConflictKind) String() string {
	switch k {
	case ContentConflict:
		return "content"
	case MoveConflict:
		return "move"
	case DeleteEditConflict:
		return "delete/edit"
	}
	return fmt.Sprintf("conflict(%d)", int(k))
}

// Conflict is one disagreement. Base, Ours and Theirs address the node in
// the respective input snapshot (NoNode on a side that deleted it) and Node
// the subtree of the merged snapshot that stands in for it.
type Conflict struct {
	Kind        ConflictKind
	Base        tree.NodeID
	Ours        tree.NodeID
	Theirs      tree.NodeID
	Node        tree.NodeID
	Description string
}

type Result struct {
	Tree      *tree.Snapshot
	Conflicts []Conflict

	Base, Ours, Theirs *tree.Snapshot
}

// Clean reports whether the merge needs no manual resolution.
func (r *Result) Clean() bool { return len(r.Conflicts) == 0 }

type Options struct {
	Diff diff.Options
}

func DefaultOptions() Options {
	return Options{Diff: diff.DefaultOptions()}
}
