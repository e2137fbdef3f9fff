package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/Brownie44l1/deepfake-api/internal/model"
	"github.com/stretchr/testify/require"
)

// spatialFake emits outLen values derived from the mean of its input.
type spatialFake struct {
	shape    []int64
	outLen   int
	penult   *spatialFake
	inferErr error
}

func (s *spatialFake) InputShape() []int64 { return s.shape }

func (s *spatialFake) Infer(_ context.Context, batch model.Tensor) (model.Tensor, error) {
	if s.inferErr != nil {
		return model.Tensor{}, s.inferErr
	}
	var sum float32
	for _, v := range batch.Data {
		sum += v
	}
	mean := sum / float32(max(len(batch.Data), 1))
	out := make([]float32, s.outLen)
	for i := range out {
		out[i] = mean / float32(i+1)
	}
	return model.Tensor{Shape: []int64{1, int64(s.outLen)}, Data: out}, nil
}

type introspectiveSpatial struct{ *spatialFake }

func (s introspectiveSpatial) Penultimate() (model.Model, error) {
	return s.penult, nil
}

// sequenceFake returns the mean of its input as the probability and keeps
// every input shape it saw.
type sequenceFake struct {
	shape    []int64
	inferErr error
	output   []float32

	mu     sync.Mutex
	inputs []model.Tensor
}

func (s *sequenceFake) InputShape() []int64 { return s.shape }

func (s *sequenceFake) Infer(_ context.Context, batch model.Tensor) (model.Tensor, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, batch)
	s.mu.Unlock()

	if s.inferErr != nil {
		return model.Tensor{}, s.inferErr
	}
	if s.output != nil {
		return model.Tensor{Shape: []int64{1, int64(len(s.output))}, Data: s.output}, nil
	}
	var sum float32
	for _, v := range batch.Data {
		sum += v
	}
	return model.Tensor{Shape: []int64{1, 1}, Data: []float32{sum / float32(len(batch.Data))}}, nil
}

func (s *sequenceFake) lastInput(t *testing.T) model.Tensor {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.inputs, "sequence model was never called")
	return s.inputs[len(s.inputs)-1]
}

// frameDecoder serves n frames with increasing brightness.
type frameDecoder struct {
	n   int
	err error
}

func (d frameDecoder) DecodeFrames(_ context.Context, _ []byte, limit int) ([]image.Image, error) {
	if d.err != nil {
		return nil, d.err
	}
	n := d.n
	if limit > 0 && n > limit {
		n = limit
	}
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, 20, 16))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = uint8(10*i), uint8(5*i), 200, 255
		}
		frames[i] = img
	}
	return frames, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
