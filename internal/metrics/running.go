package metrics

import "fmt"

// Running keeps a weighted running mean of a scalar that is revealed one
// batch at a time. The zero value is ready to use.
//
// A Running is owned by a single loop and is not safe for concurrent use.
// Per-worker instances can be combined afterwards with Merge.
type Running struct {
	val   float64
	sum   float64
	count int64
}

// Reset clears all accumulated state.
func (r *Running) Reset() {
	*r = Running{}
}

// Update records value with the given weight, usually the batch size.
// A weight <= 0 is rejected and leaves the state unchanged.
func (r *Running) Update(value float64, weight int) error {
	if weight <= 0 {
		return invalidf("weight must be > 0 (got %d)", weight)
	}
	r.val = value
	r.sum += value * float64(weight)
	r.count += int64(weight)
	return nil
}

// Observe records value with weight 1.
func (r *Running) Observe(value float64) {
	r.val = value
	r.sum += value
	r.count++
}

// Merge folds other into r. The sums and counts add; the last value is
// taken from other when it has seen anything.
func (r *Running) Merge(other Running) {
	if other.count == 0 {
		return
	}
	r.val = other.val
	r.sum += other.sum
	r.count += other.count
}

// Value returns the most recently recorded value.
func (r *Running) Value() float64 { return r.val }

// Sum returns the weighted total of all recorded values.
func (r *Running) Sum() float64 { return r.sum }

// Count returns the total weight recorded so far.
func (r *Running) Count() int64 { return r.count }

// Avg returns Sum()/Count(), or 0 before the first update.
func (r *Running) Avg() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

func (r *Running) String() string {
	return fmt.Sprintf("%.4f (%.4f)", r.val, r.Avg())
}
