package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"classifier-forge/internal/config"
	"classifier-forge/internal/dataset"
	"classifier-forge/internal/logging"
	"classifier-forge/internal/trainer"
)

func newTrainCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on the configured shards and validate after every epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return errors.Wrap(err, "invalid config")
			}
			return runTrain(cmd.OutOrStdout(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("train-root-a", "", "Override training root A")
	f.String("train-root-b", "", "Override training root B")
	f.String("eval-root", "", "Override evaluation root")
	f.Int("epochs", 0, "Number of epochs")
	f.Int("steps", 0, "Training steps per epoch")
	f.Int("batch-size", 0, "Batch size")
	f.Int("num-workers", 0, "Number of data loader workers")
	f.Int("num-classes", 0, "Number of classes")
	f.IntSlice("topk", nil, "k values to report top-k error for")
	f.Float64("lr", 0, "Learning rate")
	f.Float64("momentum", 0, "SGD momentum")
	f.Float64("weight-decay", 0, "L2 weight decay")
	f.Float64("dropout", 0, "Input dropout while training")
	f.Int64("seed", 0, "PRNG seed")
	f.Int("log-every", 0, "Log every N steps")
	f.String("log-file", "", "Also append logs to this file")

	for key, flag := range map[string]string{
		"train_root_a":    "train-root-a",
		"train_root_b":    "train-root-b",
		"eval_root":       "eval-root",
		"epochs":          "epochs",
		"steps_per_epoch": "steps",
		"batch_size":      "batch-size",
		"num_workers":     "num-workers",
		"num_classes":     "num-classes",
		"topk":            "topk",
		"learning_rate":   "lr",
		"momentum":        "momentum",
		"weight_decay":    "weight-decay",
		"dropout":         "dropout",
		"seed":            "seed",
		"log_every":       "log-every",
		"log_file":        "log-file",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func runTrain(out io.Writer, cfg *config.Config) error {
	if err := logging.Init(cfg.LogFile); err != nil {
		return err
	}
	defer logging.Close()

	roots, err := dataset.DiscoverByRoot([]string{cfg.TrainRootA, cfg.TrainRootB})
	if err != nil {
		return err
	}
	for _, root := range []string{cfg.TrainRootA, cfg.TrainRootB} {
		log.Printf("root=%s shards=%d", root, len(roots[root]))
	}
	evalRoots, err := dataset.DiscoverByRoot([]string{cfg.EvalRoot})
	if err != nil {
		return err
	}
	log.Printf("eval_root=%s shards=%d", cfg.EvalRoot, len(evalRoots[cfg.EvalRoot]))

	logging.LogEvent("training epochs=%d steps_per_epoch=%d batch_size=%d topk=%v",
		cfg.Epochs, cfg.StepsPerEpoch, cfg.BatchSize, cfg.TopK)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := trainer.Run(ctx, trainer.RunConfig{
		Roots:         roots,
		EvalRoots:     evalRoots,
		Epochs:        cfg.Epochs,
		StepsPerEpoch: cfg.StepsPerEpoch,
		BatchSize:     cfg.BatchSize,
		NumWorkers:    cfg.NumWorkers,
		NumClasses:    cfg.NumClasses,
		TopK:          cfg.TopK,
		LearningRate:  cfg.LearningRate,
		Momentum:      cfg.Momentum,
		WeightDecay:   cfg.WeightDecay,
		Dropout:       cfg.Dropout,
		LogEvery:      cfg.LogEvery,
		Seed:          cfg.Seed,
	})
	printSummary(out, res)
	if err != nil {
		return errors.Wrap(err, "training failed")
	}
	return nil
}

// printSummary writes one row per finished epoch and highlights the best.
func printSummary(w io.Writer, res trainer.Result) {
	if len(res.Epochs) == 0 {
		return
	}
	ks := res.Epochs[0].EvalErrors.Ks()

	header := []string{fmt.Sprintf("%-6s", "epoch"), fmt.Sprintf("%10s", "train_loss"), fmt.Sprintf("%10s", "eval_loss")}
	for _, k := range ks {
		header = append(header, fmt.Sprintf("%9s", fmt.Sprintf("top%d_err", k)))
	}
	color.New(color.Bold).Fprintln(w, strings.Join(header, " "))

	best := color.New(color.FgGreen, color.Bold)
	for _, ep := range res.Epochs {
		row := []string{
			fmt.Sprintf("%-6d", ep.Epoch),
			fmt.Sprintf("%10.4f", ep.TrainLoss),
			fmt.Sprintf("%10.4f", ep.EvalLoss),
		}
		for _, k := range ks {
			row = append(row, fmt.Sprintf("%9.2f", ep.EvalErrors[k]))
		}
		line := strings.Join(row, " ")
		if ep.Epoch == res.BestEpoch {
			best.Fprintln(w, line+"  *")
			continue
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "best top%d error %.2f%% at epoch %d\n", res.BestK, res.BestError, res.BestEpoch)
}
