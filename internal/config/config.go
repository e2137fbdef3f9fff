package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SeqLen      int     `env:"SEQ_LEN"      envDefault:"10"`
	FrameStride int     `env:"FRAME_STRIDE" envDefault:"1"`
	Threshold   float64 `env:"THRESHOLD"    envDefault:"0.5"`

	SpatialModelPath            string `env:"SPATIAL_MODEL_PATH"            envDefault:"models/cnn_deepfake_detector.onnx"`
	SequenceModelPath           string `env:"SEQUENCE_MODEL_PATH"           envDefault:"models/lstm_deepfake_detector.onnx"`
	SpatialMetadataPath         string `env:"SPATIAL_METADATA_PATH"`
	FeatureOutput               string `env:"FEATURE_OUTPUT"`
	DisableFeatureIntrospection bool   `env:"DISABLE_FEATURE_INTROSPECTION" envDefault:"false"`
	DefaultFrameHeight          int    `env:"DEFAULT_FRAME_HEIGHT"          envDefault:"64"`
	DefaultFrameWidth           int    `env:"DEFAULT_FRAME_WIDTH"           envDefault:"64"`
	ChannelOrder                string `env:"CHANNEL_ORDER"                 envDefault:"rgb"`

	ONNXRuntimeLib       string `env:"ONNXRUNTIME_LIB"`
	IntraOpThreads       int    `env:"ONNX_INTRA_OP_THREADS" envDefault:"0"`
	InferenceConcurrency int    `env:"INFERENCE_CONCURRENCY" envDefault:"0"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	TempDir    string `env:"TEMP_DIR"    envDefault:"/tmp/deepfake-api"`

	Port           string        `env:"PORT"             envDefault:"8080"`
	MetricsPort    int           `env:"METRICS_PORT"     envDefault:"9090"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"209715200"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"  envDefault:"60s"`

	OTLPEndpoint     string  `env:"OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1"`
	LogLevel         string  `env:"LOG_LEVEL"          envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SeqLen < 1 {
		errs = append(errs, fmt.Errorf("SEQ_LEN must be positive, got %d", c.SeqLen))
	}
	if c.FrameStride < 1 {
		errs = append(errs, fmt.Errorf("FRAME_STRIDE must be positive, got %d", c.FrameStride))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("THRESHOLD must be within [0,1], got %v", c.Threshold))
	}
	if c.DefaultFrameHeight < 1 || c.DefaultFrameWidth < 1 {
		errs = append(errs, fmt.Errorf("default frame size must be positive, got %dx%d", c.DefaultFrameHeight, c.DefaultFrameWidth))
	}
	if c.InferenceConcurrency < 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_CONCURRENCY must not be negative, got %d", c.InferenceConcurrency))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATIO must be within [0,1], got %v", c.TraceSampleRatio))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	return errors.Join(errs...)
}
