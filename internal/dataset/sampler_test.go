package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRoundRobinOrderDeterministic(t *testing.T) {
	roots := map[string][]string{
		"/rootA": {"/rootA/shard-000000.tar", "/rootA/shard-000002.tar"},
		"/rootB": {"/rootB/shard-000001.tar"},
	}
	order1 := buildRoundRobinOrder(roots, rand.New(rand.NewSource(7)))
	order2 := buildRoundRobinOrder(roots, rand.New(rand.NewSource(7)))

	assert.Equal(t, order1, order2, "round robin order not deterministic")
	require.Len(t, order1, 3)
	assert.NotEqual(t, order1[0].root, order1[1].root, "expected alternating roots")
}

func TestSamplerDeterministicStream(t *testing.T) {
	opts := fixtureRoots(t)
	opts.Seed = 123
	opts.NumWorkers = 2

	run1 := collectSamples(t, opts, 3)
	run2 := collectSamples(t, opts, 3)
	assert.Equal(t, run1, run2, "sampler order not deterministic")

	opts.NumWorkers = 1
	assert.Equal(t, run1, collectSamples(t, opts, 3), "worker count changed the order")
}

func TestSamplerFinitePasses(t *testing.T) {
	opts := fixtureRoots(t)
	opts.NumWorkers = 3
	opts.Passes = 2

	stream, errCh, err := StartSampler(context.Background(), opts)
	require.NoError(t, err)

	counts := map[string]int{}
	timeout := time.After(2 * time.Second)
	for stream != nil {
		select {
		case s, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			counts[s.Key]++
		case <-timeout:
			t.Fatal("finite sampler did not close")
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, map[string]int{"a0": 2, "a1": 2, "b0": 2}, counts)
}

func TestSamplerReportsShardErrors(t *testing.T) {
	opts := fixtureRoots(t)
	opts.NumClasses = 2
	opts.Passes = 1

	stream, errCh, err := StartSampler(context.Background(), opts)
	require.NoError(t, err)
	for range stream {
	}
	require.ErrorIs(t, <-errCh, ErrLabelRange)
}

func TestStartSamplerValidation(t *testing.T) {
	_, _, err := StartSampler(context.Background(), SamplerOptions{})
	require.Error(t, err)
	_, _, err = StartSampler(context.Background(), SamplerOptions{Roots: map[string][]string{"/x": nil}})
	require.Error(t, err)
	_, _, err = StartSampler(context.Background(), SamplerOptions{
		Roots:  map[string][]string{"/x": {"/x/shard-000000.tar"}},
		Passes: -1,
	})
	require.Error(t, err)
}

// fixtureRoots lays out two roots holding three single-sample shards with
// labels 0, 1 and 2.
func fixtureRoots(t *testing.T) SamplerOptions {
	t.Helper()
	temp := t.TempDir()
	rootA := filepath.Join(temp, "rootA")
	rootB := filepath.Join(temp, "rootB")
	mustShard(t, filepath.Join(rootA, "shard-000000.tar"), map[string]int{"a0": 0})
	mustShard(t, filepath.Join(rootA, "shard-000002.tar"), map[string]int{"a1": 1})
	mustShard(t, filepath.Join(rootB, "shard-000001.tar"), map[string]int{"b0": 2})

	return SamplerOptions{
		Roots: map[string][]string{
			rootA: {
				filepath.Join(rootA, "shard-000000.tar"),
				filepath.Join(rootA, "shard-000002.tar"),
			},
			rootB: {
				filepath.Join(rootB, "shard-000001.tar"),
			},
		},
	}
}

func collectSamples(t *testing.T, opts SamplerOptions, count int) []string {
	ctx, cancel := context.WithCancel(context.Background())
	stream, errCh, err := StartSampler(ctx, opts)
	require.NoError(t, err)
	defer cancel()

	out := make([]string, 0, count)
	deadline := time.After(time.Second)
	for len(out) < count {
		select {
		case sample, ok := <-stream:
			if !ok {
				t.Fatalf("stream closed early; collected %d samples", len(out))
			}
			out = append(out, sample.Key)
		case <-deadline:
			t.Fatal("timed out waiting for samples")
		}
	}
	cancel()
	for range stream {
	}
	for err := range errCh {
		require.NoError(t, err, "sampler emitted error after cancel")
	}
	return out
}

func mustShard(t *testing.T, path string, samples map[string]int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for key, label := range samples {
		addTarEntry(tw, key+".jpg", []byte(key))
		addTarEntry(tw, key+".cls", []byte(strconv.Itoa(label)))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
