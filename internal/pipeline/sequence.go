package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/deepfake-api/internal/model"
)

// SequenceMode is how frames are presented to the sequence model.
type SequenceMode string

const (
	// ModeRawFrames stacks frames into [1, T, H, W, C].
	ModeRawFrames SequenceMode = "raw_frames"
	// ModeFeatures stacks per-frame feature vectors into [1, T, D].
	ModeFeatures SequenceMode = "features"
)

// FeatureProducer projects a frame into a feature vector.
type FeatureProducer interface {
	Extract(ctx context.Context, f model.Frame) (model.FeatureVector, error)
}

// SelectMode picks raw frames for rank-5 sequence models and features otherwise.
func SelectMode(c model.SequenceContract) SequenceMode {
	if c.ExpectsRawFrames() {
		return ModeRawFrames
	}
	return ModeFeatures
}

// BuildSequenceInput stacks frames into a batch-of-one sequence tensor.
func BuildSequenceInput(ctx context.Context, frames model.FrameSequence, fp FeatureProducer, mode SequenceMode) (model.Tensor, error) {
	if len(frames) == 0 {
		return model.Tensor{}, errors.New("empty frame sequence")
	}
	if mode == ModeRawFrames {
		return stackFrames(frames)
	}
	return stackFeatures(ctx, frames, fp)
}

func stackFrames(frames model.FrameSequence) (model.Tensor, error) {
	h, w := frames[0].Height, frames[0].Width
	size := h * w * model.Channels

	t := model.NewTensor(1, int64(len(frames)), int64(h), int64(w), model.Channels)
	for i, f := range frames {
		if f.Height != h || f.Width != w || len(f.Pix) != size {
			return model.Tensor{}, fmt.Errorf("frame %d is %dx%d, want %dx%d", i, f.Height, f.Width, h, w)
		}
		copy(t.Data[i*size:], f.Pix)
	}
	return t, nil
}

func stackFeatures(ctx context.Context, frames model.FrameSequence, fp FeatureProducer) (model.Tensor, error) {
	if fp == nil {
		return model.Tensor{}, errors.New("no feature producer")
	}

	feats := make([]model.FeatureVector, len(frames))
	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return model.Tensor{}, err
		}
		fv, err := fp.Extract(ctx, f)
		if err != nil {
			return model.Tensor{}, fmt.Errorf("frame %d: %w", i, err)
		}
		if len(fv) == 0 || (i > 0 && len(fv) != len(feats[0])) {
			return model.Tensor{}, fmt.Errorf("frame %d: feature length %d, want %d", i, len(fv), len(feats[0]))
		}
		feats[i] = fv
	}

	dim := len(feats[0])
	t := model.NewTensor(1, int64(len(frames)), int64(dim))
	for i, fv := range feats {
		copy(t.Data[i*dim:], fv)
	}
	return t, nil
}
