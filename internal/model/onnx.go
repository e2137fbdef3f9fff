package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LoadOptions configures LoadONNX.
type LoadOptions struct {
	// Metadata, when set, overrides the input signature embedded in the model.
	Metadata *Metadata
	// FeatureOutput names the graph output holding the penultimate activation.
	FeatureOutput string
	// IntraOpThreads is passed to the session; 0 keeps the runtime default.
	IntraOpThreads int
}

// ONNXModel runs a single-input ONNX graph through onnxruntime.
type ONNXModel struct {
	path       string
	opts       LoadOptions
	session    *ort.DynamicAdvancedSession
	input      ort.InputOutputInfo
	output     ort.InputOutputInfo
	outputs    []ort.InputOutputInfo
	inputShape []int64

	mu       sync.Mutex
	children []*ONNXModel
}

// InitializeRuntime loads the onnxruntime shared library once per process.
func InitializeRuntime(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// DestroyRuntime releases the onnxruntime environment.
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// LoadONNX opens the model at path and binds its last declared output.
// InitializeRuntime must have been called.
func LoadONNX(path string, opts LoadOptions) (*ONNXModel, error) {
	if path == "" {
		return nil, errors.New("empty model path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}

	in := inputs[0]
	out := outputs[len(outputs)-1]

	session, err := newSession(path, in.Name, out.Name, opts)
	if err != nil {
		return nil, err
	}

	shape := append([]int64(nil), in.Dimensions...)
	if opts.Metadata != nil && len(opts.Metadata.InputShape) > 0 {
		shape = append([]int64(nil), opts.Metadata.InputShape...)
	}
	if opts.FeatureOutput == "" && opts.Metadata != nil {
		opts.FeatureOutput = opts.Metadata.FeatureOutput
	}

	return &ONNXModel{
		path:       path,
		opts:       opts,
		session:    session,
		input:      in,
		output:     out,
		outputs:    outputs,
		inputShape: shape,
	}, nil
}

func newSession(path, input, output string, opts LoadOptions) (*ort.DynamicAdvancedSession, error) {
	var sessionOpts *ort.SessionOptions
	if opts.IntraOpThreads > 0 {
		so, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("session opts: %w", err)
		}
		defer so.Destroy()
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("session opts: %w", err)
		}
		sessionOpts = so
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{input}, []string{output}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// InputShape implements Model.
func (m *ONNXModel) InputShape() []int64 {
	return append([]int64(nil), m.inputShape...)
}

// OutputName is the graph output this model returns.
func (m *ONNXModel) OutputName() string {
	return m.output.Name
}

// Infer implements Model. The session is safe for concurrent Run calls.
func (m *ONNXModel) Infer(ctx context.Context, batch Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}

	input, err := ort.NewTensor(ort.NewShape(batch.Shape...), batch.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.ArbitraryTensor{nil}
	if err := m.session.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	return Tensor{
		Shape: append([]int64(nil), t.GetShape()...),
		Data:  append([]float32(nil), t.GetData()...),
	}, nil
}

// Penultimate implements LayerIntrospector. ONNX graphs only expose what
// they declare as outputs, so the feature activation must be one of them:
// the configured FeatureOutput, or else the second-to-last declared output.
func (m *ONNXModel) Penultimate() (Model, error) {
	info, err := m.featureOutput()
	if err != nil {
		return nil, err
	}

	session, err := newSession(m.path, m.input.Name, info.Name, m.opts)
	if err != nil {
		return nil, err
	}

	sub := &ONNXModel{
		path:       m.path,
		opts:       m.opts,
		session:    session,
		input:      m.input,
		output:     info,
		outputs:    m.outputs,
		inputShape: m.inputShape,
	}

	m.mu.Lock()
	m.children = append(m.children, sub)
	m.mu.Unlock()
	return sub, nil
}

func (m *ONNXModel) featureOutput() (ort.InputOutputInfo, error) {
	if name := m.opts.FeatureOutput; name != "" {
		for _, o := range m.outputs {
			if o.Name == name {
				return o, nil
			}
		}
		return ort.InputOutputInfo{}, fmt.Errorf("feature output %q is not a declared graph output", name)
	}
	if len(m.outputs) < 2 {
		return ort.InputOutputInfo{}, errors.New("graph declares a single output")
	}
	return m.outputs[len(m.outputs)-2], nil
}

// Close destroys the session and any sessions derived from it.
func (m *ONNXModel) Close() {
	m.mu.Lock()
	children := m.children
	m.children = nil
	m.mu.Unlock()

	for _, c := range children {
		c.Close()
	}
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
