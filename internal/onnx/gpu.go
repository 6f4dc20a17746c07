package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryEnvVar overrides the ONNX Runtime shared library location.
const LibraryEnvVar = "CARDRECTIFY_ONNXRUNTIME_LIB"

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU      bool   `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	DeviceID    int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	GPUMemLimit uint64 `mapstructure:"mem_limit" yaml:"mem_limit" json:"mem_limit"` // bytes, 0 = unlimited
}

// DefaultGPUConfig returns a CPU-only configuration.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{}
}

// Validate checks the GPU configuration.
func (c GPUConfig) Validate() error {
	if c.UseGPU && c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	return nil
}

// cudaSettings returns the provider options passed to ONNX Runtime.
func (c GPUConfig) cudaSettings() map[string]string {
	s := map[string]string{
		"device_id":                 strconv.Itoa(c.DeviceID),
		"arena_extend_strategy":     "kNextPowerOfTwo",
		"cudnn_conv_algo_search":    "DEFAULT",
		"do_copy_in_default_stream": "1",
	}
	if c.GPUMemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(c.GPUMemLimit, 10)
	}
	return s
}

// configureGPU appends the CUDA execution provider when requested.
func configureGPU(opts *ort.SessionOptions, c GPUConfig) error {
	if !c.UseGPU {
		return nil
	}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cudaOpts.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cudaOpts.Update(c.cudaSettings()); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// libraryName returns the shared library filename for the current OS.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	}
	return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
}

// libraryCandidates lists where the runtime library is searched, in order.
func libraryCandidates(useGPU bool) []string {
	var out []string
	if env := os.Getenv(LibraryEnvVar); env != "" {
		out = append(out, env)
	}
	name, err := libraryName()
	if err != nil {
		return out
	}
	if useGPU {
		out = append(out, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	out = append(out,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			out = append(out, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		out = append(out, filepath.Join(root, "onnxruntime", "lib", name))
	}
	return out
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

// ResolveLibraryPath returns the first existing runtime library candidate.
func ResolveLibraryPath(useGPU bool) (string, error) {
	candidates := libraryCandidates(useGPU)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library not found (tried %d locations, set %s)", len(candidates), LibraryEnvVar)
}
