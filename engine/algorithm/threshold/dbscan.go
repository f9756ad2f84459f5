package threshold

import "sort"

// dbscan1D is a 1-D density clustering pass over values, matching the
// contract the original estimator relies on: a core point has at least
// minSamples neighbors (itself included) within eps; connected cores form
// a cluster; non-core points within eps of a core join that cluster as
// border points; everything else is noise (label -1).
//
// No 1-D clustering library appears anywhere in the retrieved example
// pack, so this is implemented directly rather than reaching for an
// unseen dependency.
func dbscan1D(values []float64, eps float64, minSamples int) []int {
	n := len(values)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n == 0 || minSamples < 1 {
		return labels
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
	sorted := make([]float64, n)
	for i, oi := range order {
		sorted[i] = values[oi]
	}

	// neighborRange[i] = [lo, hi] inclusive window in sorted order within eps of i.
	lo, hi := 0, 0
	neighLo := make([]int, n)
	neighHi := make([]int, n)
	for i := 0; i < n; i++ {
		if lo < i {
			lo = i
		}
		for lo > 0 && sorted[i]-sorted[lo-1] <= eps {
			lo--
		}
		if hi < i {
			hi = i
		}
		for hi < n-1 && sorted[hi+1]-sorted[i] <= eps {
			hi++
		}
		neighLo[i] = lo
		neighHi[i] = hi
	}

	isCore := make([]bool, n)
	for i := 0; i < n; i++ {
		if neighHi[i]-neighLo[i]+1 >= minSamples {
			isCore[i] = true
		}
	}

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		if !isCore[i] {
			continue
		}
		for j := neighLo[i]; j <= neighHi[i]; j++ {
			if isCore[j] {
				uf.union(i, j)
			}
		}
	}

	sortedLabel := make([]int, n)
	for i := range sortedLabel {
		sortedLabel[i] = -1
	}
	nextLabel := 0
	rootLabel := map[int]int{}
	for i := 0; i < n; i++ {
		if !isCore[i] {
			continue
		}
		root := uf.find(i)
		lbl, ok := rootLabel[root]
		if !ok {
			lbl = nextLabel
			nextLabel++
			rootLabel[root] = lbl
		}
		sortedLabel[i] = lbl
	}
	// Border points: assign to the cluster of any core neighbor, in
	// natural (sorted) iteration order.
	for i := 0; i < n; i++ {
		if isCore[i] || sortedLabel[i] != -1 {
			continue
		}
		for j := neighLo[i]; j <= neighHi[i]; j++ {
			if isCore[j] {
				sortedLabel[i] = sortedLabel[j]
				break
			}
		}
	}

	for i, oi := range order {
		labels[oi] = sortedLabel[i]
	}
	return labels
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
