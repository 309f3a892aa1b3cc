package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Linear is a softmax-regression classifier: scores = x·Wᵀ + b.
// In training mode inputs go through inverted dropout.
type Linear struct {
	numClasses int
	inputSize  int
	weight     *Param
	bias       *Param
	dropout    float64
	training   bool
	rng        *rand.Rand

	lastX *mat.Dense
}

// NewLinear constructs the model with small random weights.
func NewLinear(numClasses, inputSize int, dropout float64, seed int64) *Linear {
	if numClasses <= 0 {
		numClasses = 10
	}
	if inputSize <= 0 {
		inputSize = 64
	}
	if dropout < 0 || dropout >= 1 {
		dropout = 0
	}
	rng := rand.New(rand.NewSource(seed))
	weight := newParam("weight", numClasses*inputSize)
	for i := range weight.Value {
		weight.Value[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &Linear{
		numClasses: numClasses,
		inputSize:  inputSize,
		weight:     weight,
		bias:       newParam("bias", numClasses),
		dropout:    dropout,
		training:   true,
		rng:        rng,
	}
}

func (m *Linear) NumClasses() int           { return m.numClasses }
func (m *Linear) InputSize() int            { return m.inputSize }
func (m *Linear) Params() []*Param          { return []*Param{m.weight, m.bias} }
func (m *Linear) SetTraining(training bool) { m.training = training }

// Forward returns one row of numClasses scores per input row.
func (m *Linear) Forward(inputs [][]float64) ([][]float64, error) {
	n := len(inputs)
	if n == 0 {
		return nil, errors.New("model: empty batch")
	}
	x := mat.NewDense(n, m.inputSize, nil)
	keep := 1 - m.dropout
	for i, in := range inputs {
		if len(in) != m.inputSize {
			return nil, errors.Errorf("model: input %d has %d features, want %d", i, len(in), m.inputSize)
		}
		row := x.RawRowView(i)
		copy(row, in)
		if !m.training || m.dropout == 0 {
			continue
		}
		for j := range row {
			if m.rng.Float64() < m.dropout {
				row[j] = 0
			} else {
				row[j] /= keep
			}
		}
	}

	w := mat.NewDense(m.numClasses, m.inputSize, m.weight.Value)
	var logits mat.Dense
	logits.Mul(x, w.T())

	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, m.numClasses)
		copy(row, logits.RawRowView(i))
		for c, b := range m.bias.Value {
			row[c] += b
		}
		out[i] = row
	}
	m.lastX = x
	return out, nil
}

// Backward adds dLoss/dW and dLoss/db to the parameter gradients given
// dLoss/dScores for the last forwarded batch.
func (m *Linear) Backward(grad [][]float64) error {
	if m.lastX == nil {
		return errors.New("model: backward called before forward")
	}
	n, _ := m.lastX.Dims()
	if len(grad) != n {
		return errors.Errorf("model: got %d gradient rows for a batch of %d", len(grad), n)
	}
	g := mat.NewDense(n, m.numClasses, nil)
	for i, row := range grad {
		if len(row) != m.numClasses {
			return errors.Errorf("model: gradient row %d has %d entries, want %d", i, len(row), m.numClasses)
		}
		copy(g.RawRowView(i), row)
		for c, v := range row {
			m.bias.Grad[c] += v
		}
	}

	var dW mat.Dense
	dW.Mul(g.T(), m.lastX)
	acc := mat.NewDense(m.numClasses, m.inputSize, m.weight.Grad)
	acc.Add(acc, &dW)
	return nil
}
