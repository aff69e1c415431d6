package merge

import (
	"fmt"

	"gitast/internal/tree"
)

var rootKey = key{side: fromBase, id: 0}

// arrange orders the children of every merged node. Nodes that cannot be
// reached from the root, because of a move cycle or a parent that is gone,
// are put back where base had them until the tree is whole.
func (m *merger) arrange() {
	for {
		m.children = m.layout()
		stray := m.unreachable()
		if len(stray) == 0 {
			return
		}
		if !m.repair(stray) {
			for _, k := range stray {
				delete(m.nodes, k)
			}
			m.order = m.live()
		}
	}
}

func (m *merger) layout() map[key][]key {
	children := make(map[key][]key)
	for _, k := range m.order {
		if e := m.nodes[k]; e.by == fromBase && k != rootKey {
			children[e.at.parent] = append(children[e.at.parent], k)
		}
	}
	for _, s := range []*side{m.ours, m.theirs} {
		for x := tree.NodeID(0); int(x) < s.snap.Len(); x++ {
			k := s.key(x)
			e, ok := m.nodes[k]
			if !ok || e.by != s.origin {
				continue
			}
			list := children[e.at.parent]
			i := m.after(list, s, x)
			if s == m.theirs {
				for i < len(list) && m.nodes[list[i]].by == fromOurs {
					i++
				}
			}
			list = append(list, noKey)
			copy(list[i+1:], list[i:])
			list[i] = k
			children[e.at.parent] = list
		}
	}
	return children
}

// after returns the index following the nearest left sibling of x that is
// already in list.
func (m *merger) after(list []key, s *side, x tree.NodeID) int {
	p := s.snap.Parent(x)
	if p == tree.NoNode {
		return 0
	}
	siblings := s.snap.Children(p)
	for pos := s.snap.Pos(x) - 1; pos >= 0; pos-- {
		want := s.key(siblings[pos])
		for i, k := range list {
			if k == want {
				return i + 1
			}
		}
	}
	return 0
}

func (m *merger) unreachable() []key {
	seen := make(map[key]bool)
	var visit func(k key)
	visit = func(k key) {
		if seen[k] {
			return
		}
		seen[k] = true
		for _, c := range m.children[k] {
			visit(c)
		}
	}
	visit(rootKey)

	var stray []key
	for _, k := range m.order {
		if !seen[k] {
			stray = append(stray, k)
		}
	}
	return stray
}

// repair fixes the first stray node it can and reports whether it did.
func (m *merger) repair(stray []key) bool {
	for _, k := range stray {
		e := m.nodes[k]
		if k.side == fromBase && e.by != fromBase {
			e.at, e.by = m.basePlacement(k.id), fromBase
			m.conflicts = append(m.conflicts, Conflict{
				Kind: MoveConflict, Base: k.id,
				Ours: m.ours.counterpart(k.id), Theirs: m.theirs.counterpart(k.id),
				Description: fmt.Sprintf("%s cannot be moved into its own subtree", m.base.Kind(k.id)),
			})
			return true
		}
	}
	for _, k := range stray {
		e := m.nodes[k]
		if _, ok := m.nodes[e.at.parent]; ok {
			continue
		}
		// The parent is gone: hang the node under its closest surviving
		// base ancestor.
		parent := rootKey
		if k.side == fromBase {
			for p := m.base.Parent(k.id); p != tree.NoNode; p = m.base.Parent(p) {
				if _, ok := m.nodes[key{side: fromBase, id: p}]; ok {
					parent = key{side: fromBase, id: p}
					break
				}
			}
			m.conflicts = append(m.conflicts, Conflict{
				Kind: DeleteEditConflict, Base: k.id,
				Ours: m.ours.counterpart(k.id), Theirs: m.theirs.counterpart(k.id),
				Description: fmt.Sprintf("%s lost its parent", m.base.Kind(k.id)),
			})
		}
		e.at, e.by = placement{parent: parent, anchor: noKey}, fromBase
		if k.side != fromBase {
			// Inserted nodes have no base order; keep them with their side.
			e.by = k.side
		}
		return true
	}
	return false
}

func (m *merger) live() []key {
	var out []key
	for _, k := range m.order {
		if _, ok := m.nodes[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (m *merger) build() (*tree.Snapshot, map[key]tree.NodeID, error) {
	bl := tree.NewBuilder(m.base.Lang)
	nodeOf := make(map[key]tree.NodeID, len(m.nodes))
	var add func(k key, parent tree.NodeID)
	add = func(k key, parent tree.NodeID) {
		e := m.nodes[k]
		id := bl.Add(parent, e.kind, e.content, e.layout)
		nodeOf[k] = id
		for _, c := range m.children[k] {
			add(c, id)
		}
	}
	add(rootKey, tree.NoNode)
	bl.SetTrailer(m.trailer)

	snap, err := bl.Build()
	if err != nil {
		return nil, nil, err
	}
	return snap, nodeOf, nil
}
