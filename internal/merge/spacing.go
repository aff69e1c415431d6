package merge

import (
	"strings"

	"github.com/samber/lo"

	"gitast/internal/tree"
)

// gap is the whitespace a version has around one of its tokens.
type gap struct {
	prev   key    // token in front, noKey at the start of the file
	before string // layout of the token
	after  string // layout of the next token, or the trailer
}

// spacing indexes the tokens of one version by merged key.
type spacing struct {
	gaps    map[key]gap
	lead    string // layout of the first token
	last    key
	trailer string
}

func newSpacing(s *tree.Snapshot, keyOf func(tree.NodeID) key) *spacing {
	var leaves []tree.NodeID
	for n := tree.NodeID(0); int(n) < s.Len(); n++ {
		if s.IsLeaf(n) {
			leaves = append(leaves, n)
		}
	}
	sp := &spacing{gaps: make(map[key]gap, len(leaves)), last: noKey, trailer: s.Trailer}
	for i, n := range leaves {
		g := gap{prev: noKey, before: s.Layout(n), after: s.Trailer}
		if i > 0 {
			g.prev = keyOf(leaves[i-1])
		}
		if i+1 < len(leaves) {
			g.after = s.Layout(leaves[i+1])
		}
		sp.gaps[keyOf(n)] = g
	}
	if len(leaves) > 0 {
		sp.lead = s.Layout(leaves[0])
		sp.last = keyOf(leaves[len(leaves)-1])
	}
	return sp
}

// space sets the layout of every merged token and the merged trailer. A
// token keeps the whitespace of a version in which the same token sat in
// front of it, ours first when ours changed it. Tokens that became
// neighbours only through the merge get the widest separator either of
// them had on that boundary.
func (m *merger) space() {
	b := newSpacing(m.base, func(id tree.NodeID) key { return key{side: fromBase, id: id} })
	o := newSpacing(m.ours.snap, m.ours.key)
	t := newSpacing(m.theirs.snap, m.theirs.key)

	prev := noKey
	for _, k := range m.tokens() {
		m.nodes[k].layout = between(prev, k, b, o, t)
		prev = k
	}

	if trailer, ok := agreed(b.trailer, o.trailer, t.trailer, b.last == prev, o.last == prev, t.last == prev); ok {
		m.trailer = trailer
		return
	}
	m.trailer = pick(b.trailer, o.trailer, t.trailer)
}

// tokens lists the merged leaves in document order.
func (m *merger) tokens() []key {
	var out []key
	var walk func(k key)
	walk = func(k key) {
		kids := m.children[k]
		if len(kids) == 0 {
			out = append(out, k)
			return
		}
		for _, c := range kids {
			walk(c)
		}
	}
	walk(rootKey)
	return out
}

func between(prev, k key, b, o, t *spacing) string {
	bg, bok := b.gaps[k]
	og, ook := o.gaps[k]
	tg, tok := t.gaps[k]
	if s, ok := agreed(bg.before, og.before, tg.before, bok && bg.prev == prev, ook && og.prev == prev, tok && tg.prev == prev); ok {
		return s
	}
	if prev == noKey {
		return pick(b.lead, o.lead, t.lead)
	}

	var seps []string
	for _, sp := range []*spacing{o, t, b} {
		if g, ok := sp.gaps[k]; ok {
			seps = append(seps, g.before)
		}
	}
	for _, sp := range []*spacing{o, t, b} {
		if g, ok := sp.gaps[prev]; ok {
			seps = append(seps, g.after)
		}
	}
	return lo.MaxBy(seps, func(x, y string) bool {
		return strings.Count(x, "\n") > strings.Count(y, "\n")
	})
}

// agreed picks among the versions whose neighbourhood matches the merged
// tree, preferring ours when ours changed the value.
func agreed(base, ours, theirs string, inBase, inOurs, inTheirs bool) (string, bool) {
	switch {
	case inOurs && (!inTheirs || !inBase || ours != base):
		return ours, true
	case inTheirs:
		return theirs, true
	case inBase:
		return base, true
	}
	return "", false
}
