package dataset

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// SamplerOptions configures the multi-root sampler.
type SamplerOptions struct {
	Roots      map[string][]string
	Seed       int64
	NumWorkers int
	PendingCap int
	NumClasses int
	// Passes is the number of sweeps over every shard before the stream
	// closes. Zero streams forever.
	Passes int
}

// StartSampler launches the multi-root sampler pipeline. Samples arrive
// in a deterministic order for a given seed regardless of NumWorkers.
// Both returned channels are closed once the stream ends or ctx is done.
func StartSampler(parent context.Context, opts SamplerOptions) (<-chan Sample, <-chan error, error) {
	if len(opts.Roots) == 0 {
		return nil, nil, errors.New("sampler: no dataset roots provided")
	}
	total := 0
	for _, shards := range opts.Roots {
		total += len(shards)
	}
	if total == 0 {
		return nil, nil, errors.New("sampler: no shards discovered")
	}
	if opts.Passes < 0 {
		return nil, nil, errors.Errorf("sampler: passes must be >= 0 (got %d)", opts.Passes)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan shardJob, opts.NumWorkers)
	cursors := make(chan shardCursor, opts.NumWorkers)
	out := make(chan Sample, opts.NumWorkers*2)
	errCh := make(chan error, 1)

	rng := rand.New(rand.NewSource(opts.Seed))
	shardOpts := ShardOptions{PendingCap: opts.PendingCap, NumClasses: opts.NumClasses}

	go produceJobs(ctx, jobs, opts.Roots, rng, opts.Passes)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, cursors, shardOpts)
		}()
	}

	go func() {
		wg.Wait()
		close(cursors)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		if err := runAggregator(ctx, cursors, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh, nil
}

type shardJob struct {
	id   int64
	root string
	path string
}

type shardCursor struct {
	id      int64
	samples <-chan Sample
	errCh   <-chan error
}

func worker(ctx context.Context, jobs <-chan shardJob, cursors chan<- shardCursor, opts ShardOptions) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			samples, errCh := StreamShard(ctx, job.path, opts)
			cursor := shardCursor{id: job.id, samples: samples, errCh: errCh}
			select {
			case <-ctx.Done():
				return
			case cursors <- cursor:
			}
		}
	}
}

// runAggregator forwards shards strictly in job order so the output does
// not depend on which worker finished first.
func runAggregator(ctx context.Context, cursors <-chan shardCursor, out chan<- Sample) error {
	pending := make(map[int64]shardCursor)
	var nextID int64
	for {
		cursor, ok := pending[nextID]
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case c, open := <-cursors:
				if !open {
					return nil
				}
				pending[c.id] = c
			}
			continue
		}

		if err := drainShard(ctx, cursor, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		delete(pending, nextID)
		nextID++
	}
}

func drainShard(ctx context.Context, cursor shardCursor, out chan<- Sample) error {
	for sample := range cursor.samples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- sample:
		}
	}
	return <-cursor.errCh
}

func produceJobs(ctx context.Context, jobs chan<- shardJob, roots map[string][]string, rng *rand.Rand, passes int) {
	defer close(jobs)
	var jobID int64
	for pass := 0; passes == 0 || pass < passes; pass++ {
		for _, entry := range buildRoundRobinOrder(roots, rng) {
			select {
			case <-ctx.Done():
				return
			case jobs <- shardJob{id: jobID, root: entry.root, path: entry.path}:
				jobID++
			}
		}
	}
}

type orderEntry struct {
	root string
	path string
}

// buildRoundRobinOrder interleaves one shard per root at a time, with
// each root's shards shuffled by rng and roots visited in sorted order.
func buildRoundRobinOrder(roots map[string][]string, rng *rand.Rand) []orderEntry {
	rootNames := make([]string, 0, len(roots))
	copied := make(map[string][]string, len(roots))
	for root, shards := range roots {
		if len(shards) == 0 {
			continue
		}
		rootNames = append(rootNames, root)
		copied[root] = append([]string(nil), shards...)
	}
	sort.Strings(rootNames)
	if rng != nil {
		for _, root := range rootNames {
			s := copied[root]
			rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		}
	}

	var order []orderEntry
	for {
		advanced := false
		for _, root := range rootNames {
			shards := copied[root]
			if len(shards) == 0 {
				continue
			}
			order = append(order, orderEntry{root: root, path: shards[0]})
			copied[root] = shards[1:]
			advanced = true
		}
		if !advanced {
			break
		}
	}
	return order
}
