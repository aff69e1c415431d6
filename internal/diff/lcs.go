package diff

// maxLCSCells bounds the dynamic programming table; longer sequences are
// aligned greedily.
const maxLCSCells = 1 << 22

// lcs returns index pairs of a longest common subsequence of two sequences
// of lengths n and m under eq. Among equal-length solutions the leftmost
// pairing is preferred.
func lcs(n, m int, eq func(i, j int) bool) [][2]int {
	if n == 0 || m == 0 {
		return nil
	}
	if n*m > maxLCSCells {
		return greedy(n, m, eq)
	}

	// t[i][j] is the LCS length of the suffixes starting at i and j.
	t := make([][]int32, n+1)
	for i := range t {
		t[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case eq(i, j):
				t[i][j] = t[i+1][j+1] + 1
			case t[i+1][j] >= t[i][j+1]:
				t[i][j] = t[i+1][j]
			default:
				t[i][j] = t[i][j+1]
			}
		}
	}

	var out [][2]int
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case eq(i, j) && t[i][j] == t[i+1][j+1]+1:
			out = append(out, [2]int{i, j})
			i++
			j++
		case t[i+1][j] >= t[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}

func greedy(n, m int, eq func(i, j int) bool) [][2]int {
	var out [][2]int
	next := 0
	for i := 0; i < n && next < m; i++ {
		for j := next; j < m; j++ {
			if eq(i, j) {
				out = append(out, [2]int{i, j})
				next = j + 1
				break
			}
		}
	}
	return out
}
