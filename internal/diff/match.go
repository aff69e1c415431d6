package diff

import (
	"sort"

	"github.com/agext/levenshtein"

	"gitast/internal/tree"
)

type matcher struct {
	src, dst *tree.Snapshot
	opts     Options
	m        *Mapping
}

// topDown maps identical subtrees of at least MinSubtreeSize nodes, largest
// first and then in document order, each to the leftmost unmatched identical
// subtree of dst.
func (mt *matcher) topDown() {
	byHash := make(map[uint64][]tree.NodeID)
	for d := tree.NodeID(0); int(d) < mt.dst.Len(); d++ {
		if mt.dst.Size(d) >= mt.opts.MinSubtreeSize {
			byHash[mt.dst.Hash(d)] = append(byHash[mt.dst.Hash(d)], d)
		}
	}

	var cands []tree.NodeID
	for s := tree.NodeID(0); int(s) < mt.src.Len(); s++ {
		if mt.src.Size(s) >= mt.opts.MinSubtreeSize {
			cands = append(cands, s)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return mt.src.Size(cands[i]) > mt.src.Size(cands[j])
	})

	for _, s := range cands {
		if mt.m.Dst(s) != tree.NoNode {
			continue
		}
		for _, d := range byHash[mt.src.Hash(s)] {
			if mt.m.Src(d) == tree.NoNode && tree.Isomorphic(mt.src, s, mt.dst, d) {
				mt.mapSubtree(s, d)
				break
			}
		}
	}
}

func (mt *matcher) mapSubtree(s, d tree.NodeID) {
	for i := 0; i < mt.src.Size(s); i++ {
		mt.m.add(s+tree.NodeID(i), d+tree.NodeID(i), 1)
	}
}

// bottomUp matches containers whose descendants are already largely matched
// to the descendants of a dst container of the same kind.
func (mt *matcher) bottomUp() {
	for _, s := range mt.src.PostOrder() {
		if mt.m.Dst(s) != tree.NoNode || mt.src.IsLeaf(s) || s == mt.src.Root() {
			continue
		}
		if d, score := mt.bestCandidate(s); d != tree.NoNode {
			mt.m.add(s, d, score)
			mt.recover(s, d)
		}
	}

	sr, dr := mt.src.Root(), mt.dst.Root()
	if mt.m.Dst(sr) == tree.NoNode && mt.m.Src(dr) == tree.NoNode && mt.src.Kind(sr) == mt.dst.Kind(dr) {
		mt.m.add(sr, dr, mt.dice(sr, dr))
		mt.recover(sr, dr)
	}
}

func (mt *matcher) bestCandidate(s tree.NodeID) (tree.NodeID, float64) {
	common := make(map[tree.NodeID]int)
	end := s + tree.NodeID(mt.src.Size(s))
	for x := s + 1; x < end; x++ {
		d := mt.m.Dst(x)
		if d == tree.NoNode {
			continue
		}
		for a := mt.dst.Parent(d); a != tree.NoNode; a = mt.dst.Parent(a) {
			common[a]++
		}
	}

	best, bestScore, bestDist := tree.NoNode, 0.0, 0
	for a, n := range common {
		if mt.m.Src(a) != tree.NoNode || mt.dst.Kind(a) != mt.src.Kind(s) {
			continue
		}
		score := 2 * float64(n) / float64(mt.src.Size(s)-1+mt.dst.Size(a)-1)
		if score < mt.opts.SimilarityThreshold {
			continue
		}
		dist := mt.distance(s, a)
		if best == tree.NoNode || score > bestScore ||
			(score == bestScore && (dist < bestDist || (dist == bestDist && a < best))) {
			best, bestScore, bestDist = a, score, dist
		}
	}
	return best, bestScore
}

// distance compares where s and d sit inside their parents and how deep
// they are.
func (mt *matcher) distance(s, d tree.NodeID) int {
	return abs(mt.src.Pos(s)-mt.dst.Pos(d)) + abs(len(mt.src.Ancestors(s))-len(mt.dst.Ancestors(d)))
}

func (mt *matcher) dice(s, d tree.NodeID) float64 {
	total := mt.src.Size(s) - 1 + mt.dst.Size(d) - 1
	if total == 0 {
		return 1
	}
	n := 0
	end := s + tree.NodeID(mt.src.Size(s))
	for x := s + 1; x < end; x++ {
		if y := mt.m.Dst(x); y != tree.NoNode && mt.dst.IsDescendant(d, y) {
			n++
		}
	}
	return 2 * float64(n) / float64(total)
}

// recover aligns the unmatched children of a matched pair, first by
// identical subtrees and then by kind, descending into the new pairs.
func (mt *matcher) recover(s, d tree.NodeID) {
	unmatched := func() ([]tree.NodeID, []tree.NodeID) {
		var sc, dc []tree.NodeID
		for _, c := range mt.src.Children(s) {
			if mt.m.Dst(c) == tree.NoNode {
				sc = append(sc, c)
			}
		}
		for _, c := range mt.dst.Children(d) {
			if mt.m.Src(c) == tree.NoNode {
				dc = append(dc, c)
			}
		}
		return sc, dc
	}

	sc, dc := unmatched()
	for _, p := range lcs(len(sc), len(dc), func(i, j int) bool {
		return tree.Isomorphic(mt.src, sc[i], mt.dst, dc[j])
	}) {
		if mt.subtreeFree(sc[p[0]], dc[p[1]]) {
			mt.mapSubtree(sc[p[0]], dc[p[1]])
		}
	}

	sc, dc = unmatched()
	for _, p := range lcs(len(sc), len(dc), func(i, j int) bool {
		return mt.src.Kind(sc[i]) == mt.dst.Kind(dc[j])
	}) {
		a, b := sc[p[0]], dc[p[1]]
		if mt.src.IsLeaf(a) && mt.dst.IsLeaf(b) {
			mt.m.add(a, b, levenshtein.Similarity(mt.src.Content(a), mt.dst.Content(b), nil))
			continue
		}
		mt.m.add(a, b, mt.dice(a, b))
		mt.recover(a, b)
	}
}

// subtreeFree reports whether no node of either subtree is mapped yet.
func (mt *matcher) subtreeFree(s, d tree.NodeID) bool {
	for i := 0; i < mt.src.Size(s); i++ {
		if mt.m.Dst(s+tree.NodeID(i)) != tree.NoNode || mt.m.Src(d+tree.NodeID(i)) != tree.NoNode {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
