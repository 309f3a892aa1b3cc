package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamShardPairsEntries(t *testing.T) {
	shard := writeShard(t, map[string]filePair{
		"000001": {imageExt: ".jpg", image: []byte("jpeg"), label: 3},
		"000002": {imageExt: ".PNG", image: []byte("png"), label: 7},
	})

	samples, err := drain(StreamShard(context.Background(), shard, ShardOptions{PendingCap: 4}))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	sort.Slice(samples, func(i, j int) bool { return samples[i].Key < samples[j].Key })
	assert.Equal(t, "000001", samples[0].Key)
	assert.Equal(t, 3, samples[0].Label)
	assert.Equal(t, "shard-000000.tar", samples[0].Shard)
	assert.Equal(t, []byte("png"), samples[1].Image)
	assert.Equal(t, 7, samples[1].Label)
}

func TestStreamShardLabelRange(t *testing.T) {
	shard := writeShard(t, map[string]filePair{
		"000001": {imageExt: ".jpg", image: []byte("jpeg"), label: 10},
	})

	_, err := drain(StreamShard(context.Background(), shard, ShardOptions{NumClasses: 10}))
	require.ErrorIs(t, err, ErrLabelRange)

	samples, err := drain(StreamShard(context.Background(), shard, ShardOptions{}))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestStreamShardIncompleteAndOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(tw, "a.jpg", []byte("a"))
	addTarEntry(tw, "b.jpg", []byte("b"))
	addTarEntry(tw, "c.jpg", []byte("c"))
	require.NoError(t, tw.Close())
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := drain(StreamShard(context.Background(), path, ShardOptions{PendingCap: 2}))
	require.ErrorIs(t, err, ErrPendingOverflow)

	_, err = drain(StreamShard(context.Background(), path, ShardOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 samples incomplete")
}

func TestStreamShardMissingFile(t *testing.T) {
	_, err := drain(StreamShard(context.Background(), filepath.Join(t.TempDir(), "nope.tar"), ShardOptions{}))
	require.Error(t, err)
}

func drain(samplesCh <-chan Sample, errCh <-chan error) ([]Sample, error) {
	var samples []Sample
	for s := range samplesCh {
		samples = append(samples, s)
	}
	return samples, <-errCh
}

func writeShard(t *testing.T, data map[string]filePair) string {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for key, pair := range data {
		addTarEntry(tw, key+pair.imageExt, pair.image)
		addTarEntry(tw, key+".cls", []byte(strconv.Itoa(pair.label)))
	}
	require.NoError(t, tw.Close())
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

type filePair struct {
	imageExt string
	image    []byte
	label    int
}

func addTarEntry(tw *tar.Writer, name string, data []byte) {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		panic(err)
	}
	if _, err := tw.Write(data); err != nil {
		panic(err)
	}
}
