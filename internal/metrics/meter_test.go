package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKMeterWeightsByBatchSize(t *testing.T) {
	m, err := NewTopKMeter(5, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, m.Ks())

	// 3 examples, 1 miss at top-1.
	batchA := [][]float64{
		{9, 1, 0, 0, 0, 0},
		{9, 1, 0, 0, 0, 0},
		{9, 1, 0, 0, 0, 0},
	}
	rates, err := m.Update(batchA, []int{0, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 100.0/3, rates[1], 1e-9)

	// 1 example, missed at top-1 and top-5.
	batchB := [][]float64{{9, 8, 7, 6, 5, 4}}
	_, err = m.Update(batchB, []int{5})
	require.NoError(t, err)

	assert.InDelta(t, 50.0, m.Avg(1), 1e-9)
	assert.InDelta(t, 25.0, m.Avg(5), 1e-9)
	assert.Equal(t, 0.0, m.Avg(3))
	assert.Equal(t, "top1_err=50.00 top5_err=25.00", m.String())

	m.Reset()
	assert.Equal(t, ErrorRates{1: 0, 5: 0}, m.Averages())
}

func TestTopKMeterRejectsBadInput(t *testing.T) {
	_, err := NewTopKMeter()
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewTopKMeter(1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	m, err := NewTopKMeter(1, 5)
	require.NoError(t, err)
	_, err = m.Update([][]float64{{1, 2}}, []int{0})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0.0, m.Avg(1), "failed batch must not be recorded")
}
