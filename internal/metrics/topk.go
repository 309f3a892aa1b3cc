package metrics

import (
	"container/heap"
	"math"
	"sort"
)

// ErrorRates maps each requested k to the percentage of examples in a
// batch whose true label was not among the k highest scores.
type ErrorRates map[int]float64

// Ks returns the k values in ascending order.
func (e ErrorRates) Ks() []int {
	ks := make([]int, 0, len(e))
	for k := range e {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

// TopKError scores one batch. scores[i][c] is the score of class c for
// example i and labels[i] is its true class.
//
// Classes are ranked by descending score; equal scores rank the lower
// class index first and NaN ranks below every number. The result holds
// 100*(N-correct_k)/N for every requested k.
func TopKError(scores [][]float64, labels []int, ks ...int) (ErrorRates, error) {
	if len(ks) == 0 {
		return nil, invalidf("no k values requested")
	}
	n := len(scores)
	if n == 0 {
		return nil, invalidf("empty batch")
	}
	if len(labels) != n {
		return nil, invalidf("got %d labels for %d examples", len(labels), n)
	}
	numClasses := len(scores[0])
	if numClasses == 0 {
		return nil, invalidf("example 0 has no class scores")
	}
	maxK := 0
	for _, k := range ks {
		if k <= 0 {
			return nil, invalidf("k must be > 0 (got %d)", k)
		}
		if k > maxK {
			maxK = k
		}
	}
	if maxK > numClasses {
		return nil, invalidf("k=%d exceeds %d classes", maxK, numClasses)
	}

	// correct[r] counts examples whose label sits at rank r.
	correct := make([]int, maxK)
	h := make(rankHeap, 0, maxK)
	for i, row := range scores {
		if len(row) != numClasses {
			return nil, invalidf("example %d has %d scores, want %d", i, len(row), numClasses)
		}
		label := labels[i]
		if label < 0 || label >= numClasses {
			return nil, invalidf("example %d label %d outside [0, %d)", i, label, numClasses)
		}
		h = selectTop(h[:0], row, maxK)
		if r := rankOf(h, label); r >= 0 {
			correct[r]++
		}
	}

	out := make(ErrorRates, len(ks))
	for _, k := range ks {
		hits := 0
		for r := 0; r < k; r++ {
			hits += correct[r]
		}
		out[k] = 100 * float64(n-hits) / float64(n)
	}
	return out, nil
}

// TopK returns the indices of the k highest scores, best first, using the
// same ordering as TopKError. k is clamped to len(scores).
func TopK(scores []float64, k int) []int {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	if k > len(scores) {
		k = len(scores)
	}
	h := selectTop(make(rankHeap, 0, k), scores, k)
	out := make([]int, len(h))
	for i, e := range h {
		out[i] = e.idx
	}
	return out
}

type ranked struct {
	idx   int
	score float64
}

// outranks reports whether a sorts before b.
func outranks(a, b ranked) bool {
	aNaN, bNaN := math.IsNaN(a.score), math.IsNaN(b.score)
	switch {
	case aNaN && bNaN:
		return a.idx < b.idx
	case aNaN:
		return false
	case bNaN:
		return true
	case a.score != b.score:
		return a.score > b.score
	default:
		return a.idx < b.idx
	}
}

// rankHeap is a min-heap on rank: the root is the weakest kept entry.
type rankHeap []ranked

func (h rankHeap) Len() int            { return len(h) }
func (h rankHeap) Less(i, j int) bool  { return outranks(h[j], h[i]) }
func (h rankHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x interface{}) { *h = append(*h, x.(ranked)) }
func (h *rankHeap) Pop() interface{} {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}

// selectTop fills h with the k best entries of row and returns them
// ordered best first.
func selectTop(h rankHeap, row []float64, k int) rankHeap {
	for c, s := range row {
		e := ranked{idx: c, score: s}
		if len(h) < k {
			heap.Push(&h, e)
			continue
		}
		if outranks(e, h[0]) {
			h[0] = e
			heap.Fix(&h, 0)
		}
	}
	// Each Pop parks the weakest entry just past the shrinking heap, which
	// leaves the backing array ordered best first.
	n := len(h)
	for len(h) > 0 {
		heap.Pop(&h)
	}
	return h[:n]
}

func rankOf(h rankHeap, label int) int {
	for r, e := range h {
		if e.idx == label {
			return r
		}
	}
	return -1
}
