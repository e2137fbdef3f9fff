package model

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Limit serializes inference through sem, so at most its weight of Infer
// calls run at once across every model sharing it. Waiting honours ctx.
func Limit(m Model, sem *semaphore.Weighted) Model {
	if sem == nil {
		return m
	}
	return &limited{Model: m, sem: sem}
}

type limited struct {
	Model
	sem *semaphore.Weighted
}

func (l *limited) Infer(ctx context.Context, batch Tensor) (Tensor, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return Tensor{}, fmt.Errorf("wait for inference slot: %w", err)
	}
	defer l.sem.Release(1)
	return l.Model.Infer(ctx, batch)
}

func (l *limited) Penultimate() (Model, error) {
	li, ok := l.Model.(LayerIntrospector)
	if !ok {
		return nil, errNoIntrospection
	}
	sub, err := li.Penultimate()
	if err != nil {
		return nil, err
	}
	return &limited{Model: sub, sem: l.sem}, nil
}
