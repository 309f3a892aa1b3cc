package metrics

import "time"

// Window accumulates throughput and loss across the steps of one logging
// interval.
type Window struct {
	samples int
	data    time.Duration
	compute time.Duration
	steps   int
	loss    Running
}

// Record adds one training step. The loss is weighted by batchSize.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) error {
	if err := w.loss.Update(loss, batchSize); err != nil {
		return err
	}
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	return nil
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		Steps:    w.steps,
		LastLoss: w.loss.Value(),
		AvgLoss:  w.loss.Avg(),
	}
	total := w.data + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics for one interval.
type Snapshot struct {
	Steps        int
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	LastLoss     float64
	AvgLoss      float64
}
