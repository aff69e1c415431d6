package diff

import "gitast/internal/tree"

// Mapping is a partial one-to-one correspondence between the nodes of two
// snapshots.
type Mapping struct {
	src2dst []tree.NodeID
	dst2src []tree.NodeID
	score   []float64 // by src node
}

func newMapping(src, dst *tree.Snapshot) *Mapping {
	m := &Mapping{
		src2dst: make([]tree.NodeID, src.Len()),
		dst2src: make([]tree.NodeID, dst.Len()),
		score:   make([]float64, src.Len()),
	}
	for i := range m.src2dst {
		m.src2dst[i] = tree.NoNode
	}
	for i := range m.dst2src {
		m.dst2src[i] = tree.NoNode
	}
	return m
}

func (m *Mapping) add(s, d tree.NodeID, score float64) {
	m.src2dst[s] = d
	m.dst2src[d] = s
	m.score[s] = score
}

// Dst returns the counterpart of src node s, or NoNode.
func (m *Mapping) Dst(s tree.NodeID) tree.NodeID { return m.src2dst[s] }

// Src returns the counterpart of dst node d, or NoNode.
func (m *Mapping) Src(d tree.NodeID) tree.NodeID { return m.dst2src[d] }

// Score is the similarity recorded when s was matched: 1 for identical
// subtrees, the Dice coefficient for containers and the edit-distance
// similarity for recovered tokens.
func (m *Mapping) Score(s tree.NodeID) float64 { return m.score[s] }

// Len counts mapped pairs.
func (m *Mapping) Len() int {
	n := 0
	for _, d := range m.src2dst {
		if d != tree.NoNode {
			n++
		}
	}
	return n
}

// Pairs returns the mapped pairs in src document order.
func (m *Mapping) Pairs() [][2]tree.NodeID {
	var out [][2]tree.NodeID
	for s, d := range m.src2dst {
		if d != tree.NoNode {
			out = append(out, [2]tree.NodeID{tree.NodeID(s), d})
		}
	}
	return out
}
