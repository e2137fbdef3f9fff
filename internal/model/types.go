package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int64) Tensor {
	return Tensor{Shape: shape, Data: make([]float32, ShapeSize(shape))}
}

// ShapeSize returns the element count of shape. Non-positive dimensions count as zero.
func ShapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= int(d)
	}
	return n
}

// Flatten copies the values into one flat slice. For a batch of one this is
// the per-item representation with every trailing axis collapsed.
func (t Tensor) Flatten() []float32 {
	out := make([]float32, len(t.Data))
	copy(out, t.Data)
	return out
}

// Frame is one preprocessed video frame or still image: Height x Width x 3
// values in [0,1], HWC order.
type Frame struct {
	Height int
	Width  int
	Pix    []float32
}

// Channels is the fixed channel count of a Frame.
const Channels = 3

// NewFrame returns an all-zero frame.
func NewFrame(height, width int) Frame {
	return Frame{Height: height, Width: width, Pix: make([]float32, height*width*Channels)}
}

// Batch wraps the frame as a batch-of-one NHWC tensor.
func (f Frame) Batch() Tensor {
	return Tensor{
		Shape: []int64{1, int64(f.Height), int64(f.Width), Channels},
		Data:  f.Pix,
	}
}

// FrameSequence is an ordered, fixed-length run of frames.
type FrameSequence []Frame

// FeatureVector is a per-frame representation produced by an Extractor.
type FeatureVector []float32

// Model is an opaque pretrained classifier.
type Model interface {
	// InputShape is the declared input signature, batch axis included.
	// Unknown dimensions are reported as non-positive values.
	InputShape() []int64
	Infer(ctx context.Context, batch Tensor) (Tensor, error)
}

// LayerIntrospector is implemented by models that can expose the
// activation just before their final classification layer.
type LayerIntrospector interface {
	Penultimate() (Model, error)
}

// Metadata is an optional JSON sidecar describing a model whose
// embedded signature is missing or dynamic.
type Metadata struct {
	InputShape    []int64 `json:"input_shape"`
	OutputShape   []int64 `json:"output_shape,omitempty"`
	FeatureOutput string  `json:"feature_output,omitempty"`
}

// LoadMetadata reads a metadata sidecar from path.
func LoadMetadata(path string) (*Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}
