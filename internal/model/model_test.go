package model

import (
	"context"
	"errors"
	"sync/atomic"
)

// fakeModel returns a fixed-size output derived from the input mean.
type fakeModel struct {
	shape   []int64
	outLen  int
	err     error
	penult  Model
	penErr  error
	calls   atomic.Int32
	outFunc func(Tensor) []float32
}

func (f *fakeModel) InputShape() []int64 { return f.shape }

func (f *fakeModel) Infer(_ context.Context, batch Tensor) (Tensor, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Tensor{}, f.err
	}
	if f.outFunc != nil {
		out := f.outFunc(batch)
		return Tensor{Shape: []int64{1, int64(len(out))}, Data: out}, nil
	}
	var sum float32
	for _, v := range batch.Data {
		sum += v
	}
	out := make([]float32, f.outLen)
	for i := range out {
		out[i] = sum / float32(len(batch.Data)+i+1)
	}
	return Tensor{Shape: []int64{1, int64(f.outLen)}, Data: out}, nil
}

// introspectiveModel adds LayerIntrospector to fakeModel.
type introspectiveModel struct {
	*fakeModel
}

func (m introspectiveModel) Penultimate() (Model, error) {
	if m.penErr != nil {
		return nil, m.penErr
	}
	if m.penult == nil {
		return nil, errors.New("no penultimate")
	}
	return m.penult, nil
}
