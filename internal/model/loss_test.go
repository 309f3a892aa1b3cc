package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossEntropyUniform(t *testing.T) {
	scores := [][]float64{{0, 0, 0, 0}, {3, 3, 3, 3}}
	loss, grad, err := CrossEntropy(scores, []int{0, 3})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), loss, 1e-12)

	for i, row := range grad {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-12, "row %d", i)
	}
	assert.InDelta(t, (0.25-1)/2, grad[0][0], 1e-12)
	assert.InDelta(t, 0.25/2, grad[0][1], 1e-12)
}

func TestCrossEntropyErrors(t *testing.T) {
	_, _, err := CrossEntropy(nil, nil)
	require.Error(t, err)
	_, _, err = CrossEntropy([][]float64{{1, 2}}, []int{0, 1})
	require.Error(t, err)
	_, _, err = CrossEntropy([][]float64{{1, 2}}, []int{2})
	require.Error(t, err)
	_, _, err = CrossEntropy([][]float64{{math.NaN(), 1}}, []int{0})
	require.Error(t, err)
}
