package trainer

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/pkg/errors"

	"classifier-forge/internal/dataset"
	"classifier-forge/internal/model"
)

const featureGrid = 16
const featureSize = featureGrid * featureGrid

// batchSource turns a sample stream into model batches.
type batchSource struct {
	samples <-chan dataset.Sample
	errs    <-chan error
	skipped int
}

func newBatchSource(samples <-chan dataset.Sample, errs <-chan error) *batchSource {
	return &batchSource{samples: samples, errs: errs}
}

// next collects up to batchSize decodable samples. When the stream ends
// it returns the short final batch, then io.EOF. Undecodable images are
// counted in skipped and dropped.
func (s *batchSource) next(ctx context.Context, batchSize int) (model.Batch, error) {
	inputs := make([][]float64, 0, batchSize)
	labels := make([]int, 0, batchSize)
	for len(inputs) < batchSize {
		select {
		case <-ctx.Done():
			return model.Batch{}, ctx.Err()
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			if err != nil {
				return model.Batch{}, err
			}
		case sample, ok := <-s.samples:
			if !ok {
				if err := s.streamErr(); err != nil {
					return model.Batch{}, err
				}
				if len(inputs) == 0 {
					return model.Batch{}, io.EOF
				}
				return model.Batch{Inputs: inputs, Labels: labels}, nil
			}
			features, err := extractFeatures(sample.Image)
			if err != nil {
				s.skipped++
				continue
			}
			inputs = append(inputs, features)
			labels = append(labels, sample.Label)
		}
	}
	return model.Batch{Inputs: inputs, Labels: labels}, nil
}

// streamErr reports the sampler's terminal error, if any. The sampler
// closes its error channel before the sample channel.
func (s *batchSource) streamErr() error {
	if s.errs == nil {
		return nil
	}
	err := <-s.errs
	s.errs = nil
	return err
}

// extractFeatures samples a featureGrid×featureGrid intensity grid in [0,1].
func extractFeatures(raw []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	features := make([]float64, featureSize)
	stepX := float64(width) / float64(featureGrid)
	stepY := float64(height) / float64(featureGrid)
	for gy := 0; gy < featureGrid; gy++ {
		for gx := 0; gx < featureGrid; gx++ {
			px := bounds.Min.X + int(math.Min(float64(width-1), float64(gx)*stepX))
			py := bounds.Min.Y + int(math.Min(float64(height-1), float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			intensity := (float64(r) + float64(g) + float64(b)) / (3 * 65535.0)
			features[gy*featureGrid+gx] = intensity
		}
	}
	return features, nil
}
