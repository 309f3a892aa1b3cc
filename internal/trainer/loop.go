package trainer

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/pkg/errors"

	"classifier-forge/internal/dataset"
	"classifier-forge/internal/logging"
	"classifier-forge/internal/metrics"
	"classifier-forge/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Roots         map[string][]string
	EvalRoots     map[string][]string
	Epochs        int
	StepsPerEpoch int
	BatchSize     int
	NumWorkers    int
	NumClasses    int
	TopK          []int
	LearningRate  float64
	Momentum      float64
	WeightDecay   float64
	Dropout       float64
	LogEvery      int
	Seed          int64
}

// EpochSummary is what one train+validate cycle produced.
type EpochSummary struct {
	Epoch       int
	TrainLoss   float64
	EvalLoss    float64
	EvalErrors  metrics.ErrorRates
	EvalSamples int64
	Best        bool
}

// Result is returned by Run once every epoch has finished.
type Result struct {
	Epochs []EpochSummary
	// BestK is the smallest configured k; BestError is the lowest
	// validation error seen at that k and BestEpoch the epoch it came from.
	BestK     int
	BestError float64
	BestEpoch int
}

// Trainer drives a Classifier through alternating training and
// validation passes.
type Trainer struct {
	cfg   RunConfig
	model model.Classifier
	opt   model.Optimizer
}

// Run builds the default linear classifier and SGD optimizer and trains it.
func Run(ctx context.Context, cfg RunConfig) (Result, error) {
	mdl := model.NewLinear(cfg.NumClasses, featureSize, cfg.Dropout, cfg.Seed)
	opt := model.NewSGD(mdl.Params(), model.SGDConfig{
		LR:          cfg.LearningRate,
		Momentum:    cfg.Momentum,
		WeightDecay: cfg.WeightDecay,
	})
	t, err := New(cfg, mdl, opt)
	if err != nil {
		return Result{}, err
	}
	return t.Run(ctx)
}

// New validates cfg and returns a Trainer for mdl.
func New(cfg RunConfig, mdl model.Classifier, opt model.Optimizer) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.StepsPerEpoch <= 0 {
		return nil, errors.New("trainer: steps per epoch must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if len(cfg.EvalRoots) == 0 {
		return nil, errors.New("trainer: no evaluation shards")
	}
	if mdl == nil || opt == nil {
		return nil, errors.New("trainer: model and optimizer are required")
	}
	if cfg.NumClasses != mdl.NumClasses() {
		return nil, errors.Errorf("trainer: config has %d classes, model has %d", cfg.NumClasses, mdl.NumClasses())
	}
	meter, err := metrics.NewTopKMeter(cfg.TopK...)
	if err != nil {
		return nil, errors.Wrap(err, "trainer")
	}
	cfg.TopK = meter.Ks()
	if maxK := cfg.TopK[len(cfg.TopK)-1]; maxK > cfg.NumClasses {
		return nil, errors.Errorf("trainer: top-%d requested with %d classes", maxK, cfg.NumClasses)
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	return &Trainer{cfg: cfg, model: mdl, opt: opt}, nil
}

// Run executes every epoch. Any failure aborts the run and is returned;
// the partial result holds the epochs that completed.
func (t *Trainer) Run(ctx context.Context) (Result, error) {
	res := Result{BestK: t.cfg.TopK[0], BestError: -1}

	trainCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, samplerErr, err := dataset.StartSampler(trainCtx, dataset.SamplerOptions{
		Roots:      t.cfg.Roots,
		Seed:       t.cfg.Seed,
		NumWorkers: t.cfg.NumWorkers,
		NumClasses: t.cfg.NumClasses,
	})
	if err != nil {
		return res, err
	}
	train := newBatchSource(samples, samplerErr)

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		trainLoss, err := t.trainEpoch(ctx, epoch, train)
		if err != nil {
			return res, err
		}
		summary, err := t.validate(ctx, epoch)
		if err != nil {
			return res, err
		}
		summary.TrainLoss = trainLoss

		if cur := summary.EvalErrors[res.BestK]; res.BestError < 0 || cur < res.BestError {
			res.BestError = cur
			res.BestEpoch = epoch
			summary.Best = true
		}
		res.Epochs = append(res.Epochs, summary)
		logging.LogFields("epoch", logging.Fields{
			"epoch":      epoch,
			"train_loss": summary.TrainLoss,
			"eval_loss":  summary.EvalLoss,
			"best_err":   res.BestError,
			"best_epoch": res.BestEpoch,
		})
	}
	return res, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int, src *batchSource) (float64, error) {
	t.model.SetTraining(true)
	var loss metrics.Running
	var window metrics.Window

	for step := 1; step <= t.cfg.StepsPerEpoch; step++ {
		startData := time.Now()
		batch, err := src.next(ctx, t.cfg.BatchSize)
		if err == io.EOF {
			return 0, errors.Errorf("trainer: training stream ended at epoch %d step %d", epoch, step)
		}
		if err != nil {
			return 0, errors.Wrapf(err, "epoch %d step %d: load batch", epoch, step)
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		batchLoss, err := t.trainStep(batch)
		if err != nil {
			return 0, errors.Wrapf(err, "epoch %d step %d", epoch, step)
		}
		computeTime := time.Since(startCompute)

		if err := loss.Update(batchLoss, batch.Size()); err != nil {
			return 0, err
		}
		if err := window.Record(batch.Size(), dataTime, computeTime, batchLoss); err != nil {
			return 0, err
		}

		if step%t.cfg.LogEvery == 0 {
			snap := window.Snapshot()
			log.Printf("epoch=%d step=%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%s",
				epoch,
				step,
				snap.ImagesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
				loss.String(),
			)
		}
	}
	if n := src.skipped; n > 0 {
		log.Printf("epoch=%d skipped_undecodable=%d", epoch, n)
	}
	return loss.Avg(), nil
}

func (t *Trainer) trainStep(batch model.Batch) (float64, error) {
	scores, err := t.model.Forward(batch.Inputs)
	if err != nil {
		return 0, err
	}
	loss, grad, err := model.CrossEntropy(scores, batch.Labels)
	if err != nil {
		return 0, err
	}
	t.opt.ZeroGrad()
	if err := t.model.Backward(grad); err != nil {
		return 0, err
	}
	t.opt.Step()
	return loss, nil
}

// validate makes one pass over the evaluation shards in evaluation mode.
func (t *Trainer) validate(ctx context.Context, epoch int) (EpochSummary, error) {
	t.model.SetTraining(false)
	summary := EpochSummary{Epoch: epoch}

	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, samplerErr, err := dataset.StartSampler(evalCtx, dataset.SamplerOptions{
		Roots:      t.cfg.EvalRoots,
		Seed:       t.cfg.Seed,
		NumWorkers: t.cfg.NumWorkers,
		NumClasses: t.cfg.NumClasses,
		Passes:     1,
	})
	if err != nil {
		return summary, errors.Wrap(err, "start evaluation")
	}
	src := newBatchSource(samples, samplerErr)

	meter, err := metrics.NewTopKMeter(t.cfg.TopK...)
	if err != nil {
		return summary, err
	}
	var loss metrics.Running
	for batchNo := 1; ; batchNo++ {
		batch, err := src.next(evalCtx, t.cfg.BatchSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, errors.Wrapf(err, "epoch %d eval batch %d: load batch", epoch, batchNo)
		}
		scores, err := t.model.Forward(batch.Inputs)
		if err != nil {
			return summary, errors.Wrapf(err, "epoch %d eval batch %d", epoch, batchNo)
		}
		batchLoss, _, err := model.CrossEntropy(scores, batch.Labels)
		if err != nil {
			return summary, errors.Wrapf(err, "epoch %d eval batch %d", epoch, batchNo)
		}
		if err := loss.Update(batchLoss, batch.Size()); err != nil {
			return summary, err
		}
		if _, err := meter.Update(scores, batch.Labels); err != nil {
			return summary, errors.Wrapf(err, "epoch %d eval batch %d", epoch, batchNo)
		}
	}
	if loss.Count() == 0 {
		return summary, errors.Errorf("trainer: evaluation set produced no samples at epoch %d", epoch)
	}

	summary.EvalLoss = loss.Avg()
	summary.EvalErrors = meter.Averages()
	summary.EvalSamples = loss.Count()
	log.Printf("epoch=%d eval samples=%d loss=%.4f %s", epoch, summary.EvalSamples, summary.EvalLoss, meter)
	return summary, nil
}
