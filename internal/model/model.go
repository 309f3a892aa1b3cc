// Package model holds the classifier, loss and optimizer the trainer drives.
// None of it tries to be a general framework: a batch is a slice of
// feature rows and scores come back as one row of logits per example.
package model

// Batch represents a minibatch of features and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int { return len(b.Inputs) }

// Param is a flat trainable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

func newParam(name string, size int) *Param {
	return &Param{
		Name:  name,
		Value: make([]float64, size),
		Grad:  make([]float64, size),
	}
}

// Classifier maps a batch of inputs to per-class scores.
//
// Backward accumulates parameter gradients for the inputs of the most
// recent Forward call. SetTraining switches between the randomized
// training behaviour and deterministic evaluation.
type Classifier interface {
	Forward(inputs [][]float64) ([][]float64, error)
	Backward(grad [][]float64) error
	Params() []*Param
	SetTraining(training bool)
	NumClasses() int
}

// Optimizer updates parameters in place from their gradients.
type Optimizer interface {
	ZeroGrad()
	Step()
}
