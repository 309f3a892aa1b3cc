package model

import (
	"math"

	"github.com/pkg/errors"
)

// CrossEntropy returns the mean softmax cross-entropy of scores against
// labels and its gradient with respect to scores.
func CrossEntropy(scores [][]float64, labels []int) (float64, [][]float64, error) {
	n := len(scores)
	if n == 0 {
		return 0, nil, errors.New("loss: empty batch")
	}
	if len(labels) != n {
		return 0, nil, errors.Errorf("loss: got %d labels for %d examples", len(labels), n)
	}
	total := 0.0
	grad := make([][]float64, n)
	inv := 1.0 / float64(n)
	for i, logits := range scores {
		label := labels[i]
		if label < 0 || label >= len(logits) {
			return 0, nil, errors.Errorf("loss: example %d label %d outside [0, %d)", i, label, len(logits))
		}
		probs := softmax(logits)
		total += -math.Log(math.Max(probs[label], 1e-9))

		probs[label] -= 1
		for c := range probs {
			probs[c] *= inv
		}
		grad[i] = probs
	}
	loss := total / float64(n)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, nil, errors.Errorf("loss: non-finite value %v", loss)
	}
	return loss, grad, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
