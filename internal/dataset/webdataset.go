package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sample represents a paired record from a WebDataset shard.
type Sample struct {
	Key   string
	Shard string
	Image []byte
	Label int
}

var (
	// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
	ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")
	// ErrLabelRange indicates a .cls entry outside [0, NumClasses).
	ErrLabelRange = errors.New("webdataset: label out of range")
)

const defaultPendingCap = 1024

// ShardOptions controls how a single shard is read.
type ShardOptions struct {
	// PendingCap bounds the number of keys waiting for their other half.
	PendingCap int
	// NumClasses, when > 0, rejects labels outside [0, NumClasses).
	NumClasses int
}

// StreamShard streams paired samples from the shard at path. The error
// channel receives at most one value and is closed after the sample channel.
func StreamShard(ctx context.Context, path string, opts ShardOptions) (<-chan Sample, <-chan error) {
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)
		if err := readShard(ctx, path, opts, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func readShard(ctx context.Context, path string, opts ShardOptions, out chan<- Sample) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open shard")
	}
	defer f.Close()

	p := &pairer{
		shard:      filepath.Base(path),
		pending:    make(map[string]*partial),
		numClasses: opts.NumClasses,
	}
	tr := tar.NewReader(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read tar")
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(hdr.Name)
		ext := strings.ToLower(filepath.Ext(name))
		key := strings.TrimSuffix(name, filepath.Ext(name))

		var part *partial
		switch ext {
		case ".jpg", ".jpeg", ".png":
			data, err := io.ReadAll(tr)
			if err != nil {
				return errors.Wrapf(err, "read image %s", name)
			}
			part = p.get(key)
			part.image = data
		case ".cls":
			payload, err := io.ReadAll(tr)
			if err != nil {
				return errors.Wrapf(err, "read label %s", name)
			}
			label, err := p.parseLabel(payload)
			if err != nil {
				return errors.Wrapf(err, "label %s in %s", name, p.shard)
			}
			part = p.get(key)
			part.label = &label
		default:
			continue
		}

		if len(p.pending) > opts.PendingCap {
			return ErrPendingOverflow
		}
		if !part.ready() {
			continue
		}
		delete(p.pending, key)
		sample := Sample{Key: key, Shard: p.shard, Image: part.image, Label: *part.label}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- sample:
		}
	}

	if len(p.pending) > 0 {
		return errors.Errorf("%s: %d samples incomplete", p.shard, len(p.pending))
	}
	return nil
}

// pairer joins the image and label halves of each key.
type pairer struct {
	shard      string
	pending    map[string]*partial
	numClasses int
}

func (p *pairer) get(key string) *partial {
	part := p.pending[key]
	if part == nil {
		part = &partial{}
		p.pending[key] = part
	}
	return part
}

func (p *pairer) parseLabel(payload []byte) (int, error) {
	label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, errors.Wrap(err, "parse")
	}
	if p.numClasses > 0 && (label < 0 || label >= p.numClasses) {
		return 0, errors.Wrapf(ErrLabelRange, "%d not in [0, %d)", label, p.numClasses)
	}
	return label, nil
}

type partial struct {
	image []byte
	label *int
}

func (p *partial) ready() bool {
	return len(p.image) > 0 && p.label != nil
}
