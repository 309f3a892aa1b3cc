package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// TopKMeter accumulates running top-k error rates over an evaluation pass.
// Each batch's rate is weighted by the batch size.
type TopKMeter struct {
	ks    []int
	rates map[int]*Running
}

// NewTopKMeter returns a meter tracking the given k values.
func NewTopKMeter(ks ...int) (*TopKMeter, error) {
	if len(ks) == 0 {
		return nil, invalidf("no k values requested")
	}
	m := &TopKMeter{rates: make(map[int]*Running, len(ks))}
	for _, k := range ks {
		if k <= 0 {
			return nil, invalidf("k must be > 0 (got %d)", k)
		}
		if _, ok := m.rates[k]; ok {
			continue
		}
		m.ks = append(m.ks, k)
		m.rates[k] = &Running{}
	}
	sort.Ints(m.ks)
	return m, nil
}

// Update scores one batch and folds the result into the running rates.
func (m *TopKMeter) Update(scores [][]float64, labels []int) (ErrorRates, error) {
	rates, err := TopKError(scores, labels, m.ks...)
	if err != nil {
		return nil, err
	}
	for k, rate := range rates {
		if err := m.rates[k].Update(rate, len(scores)); err != nil {
			return nil, err
		}
	}
	return rates, nil
}

// Avg returns the running error rate for k, or 0 when k is not tracked.
func (m *TopKMeter) Avg(k int) float64 {
	r, ok := m.rates[k]
	if !ok {
		return 0
	}
	return r.Avg()
}

// Averages returns the running error rate for every tracked k.
func (m *TopKMeter) Averages() ErrorRates {
	out := make(ErrorRates, len(m.ks))
	for _, k := range m.ks {
		out[k] = m.rates[k].Avg()
	}
	return out
}

// Ks returns the tracked k values in ascending order.
func (m *TopKMeter) Ks() []int {
	return append([]int(nil), m.ks...)
}

// Reset clears every tracked rate.
func (m *TopKMeter) Reset() {
	for _, r := range m.rates {
		r.Reset()
	}
}

func (m *TopKMeter) String() string {
	parts := make([]string, 0, len(m.ks))
	for _, k := range m.ks {
		parts = append(parts, fmt.Sprintf("top%d_err=%.2f", k, m.rates[k].Avg()))
	}
	return strings.Join(parts, " ")
}
