package correction

// hungarianAssign solves the rectangular minimum-cost assignment problem
// for the (rows x cols) cost matrix using the classic O(n^3)
// Kuhn-Munkres algorithm with potentials. It returns, for each row, the
// column index it is matched to. Extra columns beyond len(rows) (when
// cols > rows) are padded internally and simply go unmatched; extra rows
// beyond len(cols) are handled symmetrically by the caller swapping
// which side is "rows" before calling.
//
// Follows the standard potentials formulation; it operates on square
// matrices padded with zero-cost dummy entries so this package never has
// to special-case the missing/extra cardinality mismatch.
func hungarianAssign(cost [][]int) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	size := n
	for _, row := range cost {
		if len(row) > size {
			size = len(row)
		}
	}

	// Pad to a square matrix; dummy cells cost 0 so they never distort
	// the optimal assignment among real entries.
	sq := make([][]int, size)
	for i := range sq {
		sq[i] = make([]int, size)
		if i < n {
			copy(sq[i], cost[i])
		}
	}

	const inf = 1 << 30
	u := make([]int, size+1)
	v := make([]int, size+1)
	p := make([]int, size+1)
	way := make([]int, size+1)

	for i := 1; i <= size; i++ {
		p[0] = i
		j0 := 0
		minv := make([]int, size+1)
		used := make([]bool, size+1)
		for j := range minv {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= size; j++ {
				if used[j] {
					continue
				}
				cur := sq[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= size; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	ans := make([]int, n)
	for i := range ans {
		ans[i] = -1
	}
	for j := 1; j <= size; j++ {
		if p[j] > 0 && p[j] <= n {
			ans[p[j]-1] = j - 1
		}
	}
	return ans
}
