package merge

import (
	"fmt"
	"sort"

	"gitast/internal/tree"
)

type entry struct {
	kind    string
	content string
	layout  string
	at      placement
	by      origin // fromBase keeps the base placement
}

type merger struct {
	base         *tree.Snapshot
	ours, theirs *side

	delOurs, delTheirs []bool
	regions            []tree.NodeID // roots of delete/edit conflicts

	nodes     map[key]*entry
	order     []key
	children  map[key][]key
	trailer   string
	conflicts []Conflict
}

// Merge applies the changes ours and theirs made to base. Changes to
// different nodes are combined; disagreements about the same node become
// conflicts, with ours winning inside the merged tree.
func Merge(base, ours, theirs *tree.Snapshot, opts Options) (*Result, error) {
	res := &Result{Base: base, Ours: ours, Theirs: theirs}
	if base.Len() == 0 || ours.Len() == 0 || theirs.Len() == 0 {
		return nil, fmt.Errorf("failed to merge: %w", tree.ErrNoRoot)
	}

	m := &merger{
		base:   base,
		ours:   newSide(fromOurs, base, ours, opts.Diff),
		theirs: newSide(fromTheirs, base, theirs, opts.Diff),
		nodes:  make(map[key]*entry),
	}
	if m.ours.deleted(base.Root()) || m.theirs.deleted(base.Root()) {
		return m.wholeFile(res), nil
	}

	m.classifyDeletes()
	m.dedupeInserts()
	m.resolve()
	m.arrange()
	m.space()
	snap, nodeOf, err := m.build()
	if err != nil {
		return nil, fmt.Errorf("failed to build merged tree: %w", err)
	}
	res.Tree = snap
	res.Conflicts = m.finish(nodeOf)
	return res, nil
}

// wholeFile handles sides whose root no longer matches the base root.
func (m *merger) wholeFile(res *Result) *Result {
	ours, theirs := res.Ours, res.Theirs
	switch {
	case tree.Isomorphic(ours, ours.Root(), theirs, theirs.Root()), m.theirs.script.Empty():
		res.Tree = ours
	case m.ours.script.Empty():
		res.Tree = theirs
	default:
		res.Tree = ours
		res.Conflicts = []Conflict{{
			Kind:        ContentConflict,
			Base:        res.Base.Root(),
			Ours:        ours.Root(),
			Theirs:      theirs.Root(),
			Node:        ours.Root(),
			Description: "both sides replaced the whole file",
		}}
	}
	return res
}

func (m *merger) classifyDeletes() {
	n := m.base.Len()
	m.delOurs, m.delTheirs = make([]bool, n), make([]bool, n)
	for b := tree.NodeID(0); int(b) < n; b++ {
		m.delOurs[b] = m.ours.deleted(b)
		m.delTheirs[b] = m.theirs.deleted(b)
	}
	m.deleteEdit(m.delOurs, m.delTheirs, m.theirs)
	m.deleteEdit(m.delTheirs, m.delOurs, m.ours)
}

// deleteEdit finds nodes one side deleted while the editor changed them,
// and keeps the whole deleted region with the editor's changes applied.
func (m *merger) deleteEdit(del, other []bool, editor *side) {
	for b := tree.NodeID(0); int(b) < m.base.Len(); b++ {
		if !del[b] || other[b] || !editor.edits(m.base, b) {
			continue
		}
		r := b
		for p := m.base.Parent(r); p != tree.NoNode && del[p] && !other[p]; p = m.base.Parent(p) {
			r = p
		}
		end := r + tree.NodeID(m.base.Size(r))
		for x := r; x < end; x++ {
			if !other[x] {
				del[x] = false
			}
		}

		c := Conflict{Kind: DeleteEditConflict, Base: r, Ours: tree.NoNode, Theirs: tree.NoNode}
		deleter, editorName := "ours", "theirs"
		if editor == m.ours {
			deleter, editorName = "theirs", "ours"
			c.Ours = m.ours.counterpart(r)
		} else {
			c.Theirs = m.theirs.counterpart(r)
		}
		c.Description = fmt.Sprintf("%s deleted in %s and modified in %s", m.base.Kind(r), deleter, editorName)
		m.conflicts = append(m.conflicts, c)
		m.regions = append(m.regions, r)
	}
}

// dedupeInserts folds runs of subtrees both sides inserted identically at
// the same place into the ours copy. A run only folds as a whole, so a
// shared separator next to different code stays on both sides.
func (m *merger) dedupeInserts() {
	ours := m.ours.runs()
	used := make([]bool, len(ours))
	for _, run := range m.theirs.runs() {
		want := m.theirs.place(run[0])
		for i, cand := range ours {
			if used[i] || m.ours.place(cand[0]) != want || !sameRun(m.theirs.snap, run, m.ours.snap, cand) {
				continue
			}
			used[i] = true
			for j, x := range run {
				for d := 0; d < m.theirs.snap.Size(x); d++ {
					m.theirs.alias[x+tree.NodeID(d)] = key{side: fromOurs, id: cand[j] + tree.NodeID(d)}
				}
			}
			break
		}
	}
}

func sameRun(a *tree.Snapshot, xs []tree.NodeID, b *tree.Snapshot, ys []tree.NodeID) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i := range xs {
		if !tree.Isomorphic(a, xs[i], b, ys[i]) {
			return false
		}
	}
	return true
}

// resolve decides content and placement of every surviving node.
func (m *merger) resolve() {
	base := m.base
	for b := tree.NodeID(0); int(b) < base.Len(); b++ {
		if m.delOurs[b] || m.delTheirs[b] {
			continue
		}
		o, t := m.ours.counterpart(b), m.theirs.counterpart(b)
		e := &entry{kind: base.Kind(b), at: m.basePlacement(b), by: fromBase}

		bc, oc, tc := base.Content(b), base.Content(b), base.Content(b)
		if o != tree.NoNode {
			oc = m.ours.snap.Content(o)
		}
		if t != tree.NoNode {
			tc = m.theirs.snap.Content(t)
		}
		if oc != bc && tc != bc && oc != tc {
			m.conflicts = append(m.conflicts, Conflict{
				Kind: ContentConflict, Base: b, Ours: o, Theirs: t,
				Description: fmt.Sprintf("%s %q changed to %q in ours and %q in theirs", base.Kind(b), bc, oc, tc),
			})
		}
		e.content = pick(bc, oc, tc)

		movOurs := o != tree.NoNode && m.ours.moved[b]
		movTheirs := t != tree.NoNode && m.theirs.moved[b]
		switch {
		case movOurs && movTheirs:
			if po, pt := m.ours.place(o), m.theirs.place(t); po == pt {
				e.at, e.by = po, fromOurs
			} else {
				m.conflicts = append(m.conflicts, Conflict{
					Kind: MoveConflict, Base: b, Ours: o, Theirs: t,
					Description: fmt.Sprintf("%s moved to different places", base.Kind(b)),
				})
			}
		case movOurs:
			e.at, e.by = m.ours.place(o), fromOurs
		case movTheirs:
			e.at, e.by = m.theirs.place(t), fromTheirs
		}
		m.add(key{side: fromBase, id: b}, e)
	}

	for _, s := range []*side{m.ours, m.theirs} {
		for x := tree.NodeID(0); int(x) < s.snap.Len(); x++ {
			if !s.inserted(x) || s.key(x).side != s.origin {
				continue
			}
			m.add(key{side: s.origin, id: x}, &entry{
				kind:    s.snap.Kind(x),
				content: s.snap.Content(x),
				at:      s.place(x),
				by:      s.origin,
			})
		}
	}
}

func (m *merger) add(k key, e *entry) {
	m.nodes[k] = e
	m.order = append(m.order, k)
}

func (m *merger) basePlacement(b tree.NodeID) placement {
	p := m.base.Parent(b)
	if p == tree.NoNode {
		return placement{parent: noKey, anchor: noKey}
	}
	anchor := noKey
	if pos := m.base.Pos(b); pos > 0 {
		anchor = key{side: fromBase, id: m.base.Children(p)[pos-1]}
	}
	return placement{parent: key{side: fromBase, id: p}, anchor: anchor}
}

// pick prefers the ours value when ours changed it.
func pick(base, ours, theirs string) string {
	if ours != base {
		return ours
	}
	return theirs
}

func (m *merger) finish(nodeOf map[key]tree.NodeID) []Conflict {
	var out []Conflict
	for _, c := range m.conflicts {
		nested := false
		for _, r := range m.regions {
			if m.base.IsDescendant(r, c.Base) {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		id, ok := nodeOf[key{side: fromBase, id: c.Base}]
		if !ok {
			continue
		}
		c.Node = id
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node < out[j].Node })

	// One conflict per merged node; a node both edited and moved apart
	// reports both reasons.
	var folded []Conflict
	for _, c := range out {
		if n := len(folded); n > 0 && folded[n-1].Node == c.Node {
			folded[n-1].Description += "; " + c.Description
			continue
		}
		folded = append(folded, c)
	}
	return folded
}
