package media

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/Brownie44l1/deepfake-api/internal/metrics"
	"github.com/Brownie44l1/deepfake-api/internal/model"
	"go.uber.org/zap"
)

// Sampling defaults.
const (
	DefaultSeqLen = 10
	DefaultStride = 1
)

var (
	// ErrNoFrames reports a video with no decodable frames.
	ErrNoFrames = errors.New("no decodable frames")
	// ErrDecoderUnavailable reports that the video decoder itself cannot run.
	ErrDecoderUnavailable = errors.New("video decoder unavailable")
)

// VideoDecoder decodes up to limit frames in presentation order.
// A limit of 0 means no limit.
type VideoDecoder interface {
	DecodeFrames(ctx context.Context, data []byte, limit int) ([]image.Image, error)
}

// Sampler turns raw media bytes into a fixed-length frame sequence.
type Sampler struct {
	pre     *Preprocessor
	decoder VideoDecoder
	seqLen  int
	stride  int
	logger  *zap.Logger
}

func NewSampler(pre *Preprocessor, decoder VideoDecoder, seqLen, stride int, logger *zap.Logger) *Sampler {
	if seqLen <= 0 {
		seqLen = DefaultSeqLen
	}
	if stride <= 0 {
		stride = DefaultStride
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{pre: pre, decoder: decoder, seqLen: seqLen, stride: stride, logger: logger}
}

// SeqLen is the length of every sequence Sample returns.
func (s *Sampler) SeqLen() int {
	return s.seqLen
}

// Sample returns exactly SeqLen frames. Images are replicated; videos are
// strided, then padded with their last frame or truncated. A video with no
// decodable frames yields all-zero frames rather than an error.
func (s *Sampler) Sample(ctx context.Context, data []byte, kind Kind) (model.FrameSequence, error) {
	switch kind {
	case KindImage:
		return s.sampleImage(data)
	case KindVideo:
		return s.sampleVideo(ctx, data)
	default:
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}
}

func (s *Sampler) sampleImage(data []byte) (model.FrameSequence, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	frame := s.pre.Preprocess(img)
	return s.repeat(frame, s.seqLen), nil
}

func (s *Sampler) sampleVideo(ctx context.Context, data []byte) (model.FrameSequence, error) {
	if s.decoder == nil {
		return nil, ErrDecoderUnavailable
	}

	decoded, err := s.decoder.DecodeFrames(ctx, data, s.seqLen*s.stride)
	if err != nil {
		if errors.Is(err, ErrDecoderUnavailable) || ctx.Err() != nil {
			return nil, fmt.Errorf("decode video: %w", err)
		}
		s.logger.Warn("video decode failed, using zero frames", zap.Error(err))
		decoded = nil
	}
	metrics.FramesDecodedTotal.Add(float64(len(decoded)))

	frames := make(model.FrameSequence, 0, s.seqLen)
	for i, img := range decoded {
		if len(frames) == s.seqLen {
			break
		}
		if i%s.stride != 0 {
			continue
		}
		frames = append(frames, s.pre.Preprocess(img))
	}

	if len(frames) == 0 {
		metrics.DecodeFallbackTotal.Inc()
		return s.repeat(s.pre.Zero(), s.seqLen), nil
	}

	if n := len(frames); n < s.seqLen {
		s.logger.Debug("padding short video", zap.Int("kept", n), zap.Int("seq_len", s.seqLen))
		frames = append(frames, s.repeat(frames[n-1], s.seqLen-n)...)
	}
	return frames, nil
}

func (s *Sampler) repeat(f model.Frame, n int) model.FrameSequence {
	seq := make(model.FrameSequence, n)
	for i := range seq {
		seq[i] = f
	}
	return seq
}
