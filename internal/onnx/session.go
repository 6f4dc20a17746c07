// Package onnx wraps ONNX Runtime for the learned corner detector: library
// discovery, session lifecycle and NCHW tensor preparation.
package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("onnx session closed")

// SessionConfig configures a single-input single-output inference session.
type SessionConfig struct {
	ModelPath  string
	NumThreads int // 0 lets ONNX Runtime decide
	GPU        GPUConfig
}

var envMu sync.Mutex

// InitEnvironment locates the runtime library and initialises ONNX Runtime
// once per process.
func InitEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	lib, err := ResolveLibraryPath(useGPU)
	if err != nil {
		return err
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", lib, "gpu", useGPU)
	return nil
}

// Session is a thread-safe inference session.
type Session struct {
	mu      sync.RWMutex
	session *ort.DynamicAdvancedSession
	input   ort.InputOutputInfo
	output  ort.InputOutputInfo
}

// NewSession loads the model and prepares a session for it.
func NewSession(cfg SessionConfig) (*Session, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, err
	}
	if err := InitEnvironment(cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()
	if err := configureGPU(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	slog.Debug("ONNX session ready", "model", cfg.ModelPath,
		"input", inputs[0].Name, "output", outputs[0].Name, "input_shape", inputs[0].Dimensions)
	return &Session{session: sess, input: inputs[0], output: outputs[0]}, nil
}

// InputShape returns the model's declared input shape. Dynamic axes are -1.
func (s *Session) InputShape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.input.Dimensions...)
}

// Run executes the model on in and returns a copy of the float32 output.
func (s *Session) Run(in Tensor) (Tensor, error) {
	if err := VerifyImageTensor(in); err != nil {
		return Tensor{}, fmt.Errorf("invalid tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Tensor{}, ErrClosed
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroy(input, "input tensor")

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	defer destroy(outputs[0], "output tensor")

	ft, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	return Tensor{
		Data:  append([]float32(nil), ft.GetData()...),
		Shape: append([]int64(nil), ft.GetShape()...),
	}, nil
}

// Close releases the session. The shared environment stays up for other sessions.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func destroy(v ort.Value, what string) {
	if v == nil {
		return
	}
	if err := v.Destroy(); err != nil {
		slog.Warn("failed to destroy "+what, "error", err)
	}
}
