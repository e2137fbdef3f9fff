package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
)

// ExtractorMode tags how an Extractor produces features.
type ExtractorMode string

const (
	// ExtractorPenultimate reads the activation before the classification layer.
	ExtractorPenultimate ExtractorMode = "penultimate"
	// ExtractorDegraded reuses the spatial model's final output as the feature.
	ExtractorDegraded ExtractorMode = "degraded"
)

var (
	errNoIntrospection  = errors.New("model does not expose intermediate layers")
	errIntrospectionOff = errors.New("layer introspection disabled")
)

// ExtractorOptions configures BuildExtractor.
type ExtractorOptions struct {
	DisableIntrospection bool
	Logger               *zap.Logger
}

// Extractor turns a frame into a feature vector. It is immutable once built.
type Extractor struct {
	Mode ExtractorMode
	// Dim is the feature length observed on the startup probe, 0 if the probe failed.
	Dim int
	// Reason explains a degraded build.
	Reason string

	model Model
}

// BuildExtractor derives a feature producer from the spatial model. It first
// tries the penultimate representation and validates it with a synthetic
// probe frame; on any failure it falls back to the model's own output.
// It never fails.
func BuildExtractor(ctx context.Context, spatial Model, contract ImageContract, opts ExtractorOptions) *Extractor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	probe := probeFrame(contract)

	sub, err := penultimateOf(spatial, opts)
	if err == nil {
		var dim int
		dim, err = validateProbe(ctx, sub, probe)
		if err == nil {
			log.Info("feature extractor built from penultimate layer", zap.Int("feature_dim", dim))
			return &Extractor{Mode: ExtractorPenultimate, Dim: dim, model: sub}
		}
	}

	dim, probeErr := validateProbe(ctx, spatial, probe)
	if probeErr != nil {
		log.Warn("spatial model failed the feature probe", zap.Error(probeErr))
	}
	log.Warn("using spatial model output as features",
		zap.String("reason", err.Error()),
		zap.Int("feature_dim", dim),
	)
	return &Extractor{Mode: ExtractorDegraded, Dim: dim, Reason: err.Error(), model: spatial}
}

// Extract projects one frame into a flat feature vector.
func (e *Extractor) Extract(ctx context.Context, f Frame) (FeatureVector, error) {
	out, err := e.model.Infer(ctx, f.Batch())
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	return FeatureVector(out.Flatten()), nil
}

func penultimateOf(m Model, opts ExtractorOptions) (sub Model, err error) {
	if opts.DisableIntrospection {
		return nil, errIntrospectionOff
	}
	li, ok := m.(LayerIntrospector)
	if !ok {
		return nil, errNoIntrospection
	}
	defer func() {
		if r := recover(); r != nil {
			sub, err = nil, fmt.Errorf("penultimate layer: %v", r)
		}
	}()
	sub, err = li.Penultimate()
	if err != nil {
		return nil, fmt.Errorf("penultimate layer: %w", err)
	}
	return sub, nil
}

func validateProbe(ctx context.Context, m Model, probe Frame) (dim int, err error) {
	defer func() {
		if r := recover(); r != nil {
			dim, err = 0, fmt.Errorf("probe inference: %v", r)
		}
	}()

	out, err := m.Infer(ctx, probe.Batch())
	if err != nil {
		return 0, fmt.Errorf("probe inference: %w", err)
	}
	if len(out.Data) == 0 {
		return 0, errors.New("probe inference: empty output")
	}
	for _, v := range out.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, errors.New("probe inference: non-finite output")
		}
	}
	return len(out.Data), nil
}

// probeFrame fills a frame of the contract size with reproducible noise.
func probeFrame(c ImageContract) Frame {
	f := NewFrame(c.Height, c.Width)
	r := rand.New(rand.NewPCG(0x5eed, uint64(c.Height*c.Width)))
	for i := range f.Pix {
		f.Pix[i] = r.Float32()
	}
	return f
}
