package main

import (
	"bytes"
	"context"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Brownie44l1/deepfake-api/internal/handlers"
	"github.com/Brownie44l1/deepfake-api/internal/media"
	"github.com/Brownie44l1/deepfake-api/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowAnalyzer signals started, then answers after delay unless its
// context ends first.
type slowAnalyzer struct {
	started chan struct{}
	delay   time.Duration
}

func (a *slowAnalyzer) Analyze(ctx context.Context, _ []byte, _ media.Kind) (pipeline.Result, error) {
	close(a.started)
	select {
	case <-time.After(a.delay):
		return pipeline.Result{Probability: 0.9, IsFake: true}, nil
	case <-ctx.Done():
		return pipeline.Result{}, &pipeline.AnalysisError{Stage: pipeline.StageInfer, Err: ctx.Err()}
	}
}

func (a *slowAnalyzer) Status() pipeline.Status { return pipeline.Status{Available: true} }

func TestShutdownDrainsInFlightAnalysis(t *testing.T) {
	analyzer := &slowAnalyzer{started: make(chan struct{}), delay: 300 * time.Millisecond}
	h := handlers.NewHandler(analyzer, nil, handlers.Options{})

	mux := http.NewServeMux()
	mux.HandleFunc("/predict/image", enableCORS(h.PredictImage))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newHTTPServer(ctx, ln.Addr().String(), mux)
	go srv.Serve(ln)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "face.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	type reply struct {
		code int
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/predict/image", mw.FormDataContentType(), &body)
		if err != nil {
			done <- reply{err: err}
			return
		}
		resp.Body.Close()
		done <- reply{code: resp.StatusCode}
	}()

	select {
	case <-analyzer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never started")
	}

	// Simulates SIGTERM: the signal context ends, then the server drains.
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, srv.Shutdown(shutdownCtx))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.code)
}
