package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Brownie44l1/deepfake-api/internal/media"
	"github.com/Brownie44l1/deepfake-api/internal/pipeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Analyzer is the inference core the handlers delegate to.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, kind media.Kind) (pipeline.Result, error)
	Status() pipeline.Status
}

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Threshold      float64
}

type Handler struct {
	analyzer Analyzer
	logger   *zap.Logger
	opts     Options
}

// PredictionResponse is the body of a successful prediction.
type PredictionResponse struct {
	RequestID   string     `json:"request_id"`
	Kind        media.Kind `json:"kind"`
	Probability float64    `json:"probability"`
	IsFake      bool       `json:"is_fake"`
	Threshold   float64    `json:"threshold"`
}

type errorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

func NewHandler(analyzer Analyzer, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	return &Handler{analyzer: analyzer, logger: logger, opts: opts}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.analyzer.Status()
	status, code := "healthy", http.StatusOK
	if !st.Available {
		status, code = "degraded", http.StatusServiceUnavailable
		st.Error = clientMessage(code)
	}
	writeJSON(w, code, struct {
		Status   string          `json:"status"`
		Pipeline pipeline.Status `json:"pipeline"`
	}{status, st})
}

// Predict classifies an uploaded image or video. The media kind comes from
// the optional "kind" form field, else from the part's content type.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, "")
}

// PredictImage classifies an upload that is always treated as a still image.
func (h *Handler) PredictImage(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, media.KindImage)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request, forced media.Kind) {
	requestID := uuid.NewString()
	log := h.logger.With(zap.String("request_id", requestID))

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, requestID, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, requestID,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, requestID, "failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, requestID, "no file uploaded, use 'file' as the form field name")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, requestID, "failed to read upload")
		return
	}

	kind := forced
	if kind == "" {
		kind, err = resolveKind(r.FormValue("kind"), header, data)
		if err != nil {
			writeError(w, http.StatusBadRequest, requestID, err.Error())
			return
		}
	}

	log = log.With(zap.String("kind", string(kind)))
	log.Info("received upload",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
	)

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.analyzer.Analyze(ctx, data, kind)
	if err != nil {
		code := statusFor(err)
		log.Error("analysis failed", zap.Error(err), zap.Int("status", code))
		writeError(w, code, requestID, clientMessage(code))
		return
	}

	log.Info("analysis complete",
		zap.Float64("probability", result.Probability),
		zap.Bool("is_fake", result.IsFake),
		zap.Duration("elapsed", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, PredictionResponse{
		RequestID:   requestID,
		Kind:        kind,
		Probability: result.Probability,
		IsFake:      result.IsFake,
		Threshold:   h.opts.Threshold,
	})
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile("file")
	if err == nil {
		return file, header, nil
	}
	return r.FormFile("image")
}

func resolveKind(declared string, header *multipart.FileHeader, data []byte) (media.Kind, error) {
	if declared != "" {
		return media.ParseKind(declared)
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return media.KindFromMIME(ct), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrUndecodableImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the response text for a failed analysis. Error detail
// stays in the logs.
func clientMessage(code int) string {
	switch code {
	case http.StatusServiceUnavailable:
		return "models unavailable"
	case http.StatusUnprocessableEntity:
		return "media could not be decoded"
	case http.StatusGatewayTimeout:
		return "analysis timed out"
	default:
		return "analysis failed"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, requestID, msg string) {
	writeJSON(w, code, errorResponse{RequestID: requestID, Error: msg})
}
