package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Brownie44l1/deepfake-api/internal/config"
	"github.com/Brownie44l1/deepfake-api/internal/handlers"
	"github.com/Brownie44l1/deepfake-api/internal/logger"
	"github.com/Brownie44l1/deepfake-api/internal/media"
	"github.com/Brownie44l1/deepfake-api/internal/metrics"
	"github.com/Brownie44l1/deepfake-api/internal/model"
	"github.com/Brownie44l1/deepfake-api/internal/pipeline"
	"github.com/Brownie44l1/deepfake-api/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, tracing.Options{
			Endpoint:    cfg.OTLPEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
			Attributes: []attribute.KeyValue{
				attribute.String("deepfake.spatial_model", filepath.Base(cfg.SpatialModelPath)),
				attribute.String("deepfake.sequence_model", filepath.Base(cfg.SequenceModelPath)),
				attribute.Int("deepfake.seq_len", cfg.SeqLen),
				attribute.Int("deepfake.frame_stride", cfg.FrameStride),
				attribute.Float64("deepfake.threshold", cfg.Threshold),
			},
		})
		if err != nil {
			zapLogger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					zapLogger.Error("tracer shutdown", zap.Error(err))
				}
			}()
		}
	}

	pipeCfg, err := pipelineConfig(cfg)
	if err != nil {
		zapLogger.Fatal("invalid pipeline config", zap.Error(err))
	}

	decoder := media.NewFFmpegDecoder(cfg.FFmpegPath, cfg.TempDir, zapLogger)
	if err := decoder.Available(); err != nil {
		zapLogger.Warn("video decoding unavailable, only images can be analyzed", zap.Error(err))
	}

	var analyzer handlers.Analyzer
	spatial, sequence, err := loadModels(cfg, zapLogger)
	if err != nil {
		zapLogger.Error("models unavailable, serving degraded", zap.Error(err))
		analyzer = pipeline.Unavailable(err, pipeCfg, zapLogger)
	} else {
		defer func() {
			spatial.Close()
			sequence.Close()
			if err := model.DestroyRuntime(); err != nil {
				zapLogger.Error("destroy onnx runtime", zap.Error(err))
			}
		}()

		var sem *semaphore.Weighted
		if cfg.InferenceConcurrency > 0 {
			sem = semaphore.NewWeighted(int64(cfg.InferenceConcurrency))
		}
		p, err := pipeline.New(ctx,
			model.Limit(spatial, sem), model.Limit(sequence, sem),
			decoder, pipeCfg, zapLogger,
		)
		if err != nil {
			zapLogger.Fatal("failed to build pipeline", zap.Error(err))
		}
		analyzer = p
	}

	handler := handlers.NewHandler(analyzer, zapLogger, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		Threshold:      cfg.Threshold,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/predict", enableCORS(handler.Predict))
	mux.HandleFunc("/predict/image", enableCORS(handler.PredictImage))

	srv := newHTTPServer(ctx, ":"+cfg.Port, mux)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func() error {
		if st := analyzer.Status(); !st.Available {
			return errors.New(st.Error)
		}
		return nil
	}, zapLogger)

	go func() {
		zapLogger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.Strings("endpoints", []string{"GET /health", "POST /predict", "POST /predict/image"}),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server shutdown", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("metrics server shutdown", zap.Error(err))
	}
}

// newHTTPServer serves h on addr. Request contexts carry ctx's values but
// not its cancellation, so Shutdown can drain in-flight analyses.
func newHTTPServer(ctx context.Context, addr string, h http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

func pipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	order, err := media.ParseChannelOrder(cfg.ChannelOrder)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		SeqLen:                      cfg.SeqLen,
		Stride:                      cfg.FrameStride,
		Threshold:                   cfg.Threshold,
		DefaultFrameHeight:          cfg.DefaultFrameHeight,
		DefaultFrameWidth:           cfg.DefaultFrameWidth,
		ChannelOrder:                order,
		DisableFeatureIntrospection: cfg.DisableFeatureIntrospection,
	}, nil
}

// loadModels initializes onnxruntime and opens both models. On error
// nothing is left open.
func loadModels(cfg *config.Config, logger *zap.Logger) (spatial, sequence *model.ONNXModel, err error) {
	if err := model.InitializeRuntime(cfg.ONNXRuntimeLib); err != nil {
		return nil, nil, err
	}

	spatialOpts := model.LoadOptions{
		FeatureOutput:  cfg.FeatureOutput,
		IntraOpThreads: cfg.IntraOpThreads,
	}
	if cfg.SpatialMetadataPath != "" {
		meta, err := model.LoadMetadata(cfg.SpatialMetadataPath)
		if err != nil {
			logger.Warn("ignoring spatial metadata", zap.String("path", cfg.SpatialMetadataPath), zap.Error(err))
		} else {
			spatialOpts.Metadata = meta
		}
	}

	logger.Info("loading spatial model", zap.String("path", cfg.SpatialModelPath))
	spatial, err = model.LoadONNX(cfg.SpatialModelPath, spatialOpts)
	if err != nil {
		model.DestroyRuntime()
		return nil, nil, fmt.Errorf("spatial model %s: %w", cfg.SpatialModelPath, err)
	}

	logger.Info("loading sequence model", zap.String("path", cfg.SequenceModelPath))
	sequence, err = model.LoadONNX(cfg.SequenceModelPath, model.LoadOptions{IntraOpThreads: cfg.IntraOpThreads})
	if err != nil {
		spatial.Close()
		model.DestroyRuntime()
		return nil, nil, fmt.Errorf("sequence model %s: %w", cfg.SequenceModelPath, err)
	}

	logger.Info("models loaded",
		zap.Int64s("spatial_input", spatial.InputShape()),
		zap.String("spatial_output", spatial.OutputName()),
		zap.Int64s("sequence_input", sequence.InputShape()),
		zap.String("sequence_output", sequence.OutputName()),
	)
	return spatial, sequence, nil
}
