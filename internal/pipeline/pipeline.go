package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/deepfake-api/internal/media"
	"github.com/Brownie44l1/deepfake-api/internal/metrics"
	"github.com/Brownie44l1/deepfake-api/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds the tunables of a Pipeline.
type Config struct {
	SeqLen                      int
	Stride                      int
	Threshold                   float64
	DefaultFrameHeight          int
	DefaultFrameWidth           int
	ChannelOrder                media.ChannelOrder
	DisableFeatureIntrospection bool
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		SeqLen:             media.DefaultSeqLen,
		Stride:             media.DefaultStride,
		Threshold:          DefaultThreshold,
		DefaultFrameHeight: model.DefaultFrameHeight,
		DefaultFrameWidth:  model.DefaultFrameWidth,
		ChannelOrder:       media.ChannelsRGB,
	}
}

func (c Config) validate() error {
	if c.SeqLen < 1 {
		return fmt.Errorf("sequence length must be positive, got %d", c.SeqLen)
	}
	if c.Stride < 1 {
		return fmt.Errorf("frame stride must be positive, got %d", c.Stride)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0,1], got %v", c.Threshold)
	}
	return nil
}

// Status describes a pipeline for health reporting.
type Status struct {
	Available    bool    `json:"available"`
	Error        string  `json:"error,omitempty"`
	FrameHeight  int     `json:"frame_height,omitempty"`
	FrameWidth   int     `json:"frame_width,omitempty"`
	SizeFallback bool    `json:"size_fallback,omitempty"`
	Extractor    string  `json:"extractor,omitempty"`
	FeatureDim   int     `json:"feature_dim,omitempty"`
	SequenceMode string  `json:"sequence_mode,omitempty"`
	SequenceRank int     `json:"sequence_rank,omitempty"`
	SeqLen       int     `json:"seq_len"`
	Stride       int     `json:"stride"`
	Threshold    float64 `json:"threshold"`
}

// Pipeline is the immutable inference context built once at startup and
// shared by every request.
type Pipeline struct {
	cfg      Config
	loadErr  error
	sequence model.Model

	imageContract    model.ImageContract
	sequenceContract model.SequenceContract
	extractor        *model.Extractor
	mode             SequenceMode
	sampler          *media.Sampler
	thresholder      Thresholder

	logger *zap.Logger
	tracer trace.Tracer
}

// New detects both model contracts, builds the feature extractor and fixes
// the sequence mode. It only fails on invalid configuration.
func New(ctx context.Context, spatial, sequence model.Model, decoder media.VideoDecoder, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if spatial == nil || sequence == nil {
		return nil, errors.New("both models are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	imageContract := model.DetectImageContract(spatial.InputShape(), cfg.DefaultFrameHeight, cfg.DefaultFrameWidth)
	if imageContract.Fallback {
		logger.Warn("spatial model input shape unusable, using default frame size",
			zap.Int64s("declared_shape", spatial.InputShape()),
			zap.Int("height", imageContract.Height),
			zap.Int("width", imageContract.Width),
		)
	}
	sequenceContract := model.DetectSequenceContract(sequence.InputShape())
	mode := SelectMode(sequenceContract)

	p := &Pipeline{
		cfg:              cfg,
		sequence:         sequence,
		imageContract:    imageContract,
		sequenceContract: sequenceContract,
		mode:             mode,
		sampler: media.NewSampler(
			media.NewPreprocessor(imageContract, cfg.ChannelOrder),
			decoder, cfg.SeqLen, cfg.Stride, logger,
		),
		thresholder: Thresholder{Threshold: cfg.Threshold},
		logger:      logger,
		tracer:      otel.Tracer("pipeline"),
	}

	// Built for both modes; raw-frame sequence models never call it.
	p.extractor = model.BuildExtractor(ctx, spatial, imageContract, model.ExtractorOptions{
		DisableIntrospection: cfg.DisableFeatureIntrospection,
		Logger:               logger,
	})
	if p.extractor.Mode == model.ExtractorDegraded {
		metrics.ExtractorDegraded.Set(1)
	} else {
		metrics.ExtractorDegraded.Set(0)
	}

	logger.Info("pipeline ready",
		zap.Int("frame_height", imageContract.Height),
		zap.Int("frame_width", imageContract.Width),
		zap.String("extractor", string(p.extractor.Mode)),
		zap.Int("feature_dim", p.extractor.Dim),
		zap.Int("sequence_rank", sequenceContract.Rank),
		zap.String("sequence_mode", string(mode)),
		zap.Int("seq_len", cfg.SeqLen),
		zap.Int("stride", cfg.Stride),
		zap.Float64("threshold", cfg.Threshold),
	)
	return p, nil
}

// Unavailable returns a pipeline whose Analyze always fails with a
// ModelUnavailableError carrying loadErr.
func Unavailable(loadErr error, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loadErr == nil {
		loadErr = errors.New("models not loaded")
	}
	return &Pipeline{cfg: cfg, loadErr: loadErr, logger: logger, tracer: otel.Tracer("pipeline")}
}

// Threshold is the configured decision threshold.
func (p *Pipeline) Threshold() float64 {
	return p.cfg.Threshold
}

// Status reports contracts and modes fixed at startup.
func (p *Pipeline) Status() Status {
	s := Status{
		Available: p.loadErr == nil,
		SeqLen:    p.cfg.SeqLen,
		Stride:    p.cfg.Stride,
		Threshold: p.cfg.Threshold,
	}
	if p.loadErr != nil {
		s.Error = p.loadErr.Error()
		return s
	}
	s.FrameHeight = p.imageContract.Height
	s.FrameWidth = p.imageContract.Width
	s.SizeFallback = p.imageContract.Fallback
	s.Extractor = string(p.extractor.Mode)
	s.FeatureDim = p.extractor.Dim
	s.SequenceMode = string(p.mode)
	s.SequenceRank = p.sequenceContract.Rank
	return s
}

// Analyze classifies one image or video.
func (p *Pipeline) Analyze(ctx context.Context, data []byte, kind media.Kind) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Analyze",
		trace.WithAttributes(
			attribute.String("media.kind", string(kind)),
			attribute.Int("media.bytes", len(data)),
		),
	)
	defer span.End()

	res, err := p.analyze(ctx, data, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AnalysesTotal.WithLabelValues(string(kind), "error").Inc()
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Float64("result.probability", res.Probability),
		attribute.Bool("result.is_fake", res.IsFake),
	)
	outcome := "real"
	if res.IsFake {
		outcome = "fake"
	}
	metrics.AnalysesTotal.WithLabelValues(string(kind), outcome).Inc()
	metrics.Probability.Observe(res.Probability)
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, data []byte, kind media.Kind) (Result, error) {
	if p.loadErr != nil {
		return Result{}, &ModelUnavailableError{Err: p.loadErr}
	}

	var frames model.FrameSequence
	err := p.stage(ctx, StageDecode, func(ctx context.Context) (err error) {
		frames, err = p.sampler.Sample(ctx, data, kind)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if len(frames) != p.cfg.SeqLen {
		return Result{}, &AnalysisError{
			Stage: StageDecode,
			Err:   fmt.Errorf("sampled %d frames, want %d", len(frames), p.cfg.SeqLen),
		}
	}

	var input model.Tensor
	err = p.stage(ctx, StageExtract, func(ctx context.Context) (err error) {
		input, err = BuildSequenceInput(ctx, frames, p.extractor, p.mode)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var out model.Tensor
	err = p.stage(ctx, StageInfer, func(ctx context.Context) (err error) {
		out, err = p.sequence.Infer(ctx, input)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res, err := p.thresholder.Decide(out)
	if err != nil {
		return Result{}, &AnalysisError{Stage: StageDecide, Err: err}
	}
	return res, nil
}

// stage runs fn in its own span, records its duration and wraps failures.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &AnalysisError{Stage: name, Err: err}
	}

	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()
	start := time.Now()

	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &AnalysisError{Stage: name, Err: err}
	}
	return nil
}
