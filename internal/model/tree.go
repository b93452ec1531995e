package model

import (
	"math/rand/v2"
	"sort"
)

// minSamplesSplit is the smallest node that may still be split.
const minSamplesSplit = 2

type treeNode struct {
	feature   int
	threshold float64
	left      int // child indexes into Tree.nodes, -1 for leaves
	right     int
	value     float64
}

// Tree is a CART regression tree grown on squared-error splits until every
// leaf is pure or too small to split.
type Tree struct {
	nodes []treeNode
}

// fitTree grows a tree on the rows of x selected by idx. Repeated indexes
// act as integer sample weights (bootstrap draws).
func fitTree(x [][]float64, y []float64, idx []int) *Tree {
	t := &Tree{}
	t.grow(x, y, idx)
	return t
}

func (t *Tree) grow(x [][]float64, y []float64, idx []int) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{left: -1, right: -1, value: meanOf(y, idx)})

	if len(idx) < minSamplesSplit || pure(y, idx) {
		return id
	}

	feature, threshold, ok := bestSplit(x, y, idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(x, y, left)
	r := t.grow(x, y, right)
	t.nodes[id].feature = feature
	t.nodes[id].threshold = threshold
	t.nodes[id].left = l
	t.nodes[id].right = r
	return id
}

// Predict walks the tree for one (already scaled) feature row.
func (t *Tree) Predict(row []float64) float64 {
	n := 0
	for t.nodes[n].left >= 0 {
		if row[t.nodes[n].feature] <= t.nodes[n].threshold {
			n = t.nodes[n].left
		} else {
			n = t.nodes[n].right
		}
	}
	return t.nodes[n].value
}

// bestSplit scans every feature for the threshold minimizing the summed
// squared error of both children. Thresholds sit midway between adjacent
// distinct values.
func bestSplit(x [][]float64, y []float64, idx []int) (feature int, threshold float64, ok bool) {
	n := float64(len(idx))
	var totalSum, totalSq float64
	for _, i := range idx {
		totalSum += y[i]
		totalSq += y[i] * y[i]
	}
	best := totalSq - totalSum*totalSum/n

	sorted := make([]int, len(idx))
	for f := range x[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var leftSum, leftSq float64
		for k := 0; k < len(sorted)-1; k++ {
			v := y[sorted[k]]
			leftSum += v
			leftSq += v * v

			cur, next := x[sorted[k]][f], x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < best-1e-12 {
				best = sse
				feature = f
				threshold = cur + (next-cur)/2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func meanOf(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func pure(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}

// bootstrap draws n row indexes with replacement.
func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}
