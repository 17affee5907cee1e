package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/yalue/onnxruntime_go"
)

// GPUConfig holds configuration for CUDA acceleration.
type GPUConfig struct {
	UseGPU      bool   `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	DeviceID    int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	GPUMemLimit uint64 `mapstructure:"gpu_mem_limit" yaml:"gpu_mem_limit" json:"gpu_mem_limit"`
}

// setupONNXEnvironment locates the shared library and initializes the runtime once.
func setupONNXEnvironment(libraryPath string, useGPU bool) error {
	if libraryPath != "" {
		if _, err := os.Stat(libraryPath); err != nil {
			return fmt.Errorf("ONNX Runtime library not found at %s: %w", libraryPath, err)
		}
		onnxruntime_go.SetSharedLibraryPath(libraryPath)
	} else if err := setLibraryPath(useGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}

	if !onnxruntime_go.IsInitialized() {
		if err := onnxruntime_go.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}
	return nil
}

// createSession creates the ONNX session with the given configuration.
func createSession(modelPath string, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
	cfg ONNXConfig,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if err := configureGPU(sessionOptions, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}

	if cfg.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return session, nil
}

// validateModelInfo checks for a single [1,3,S,S] input and a single 3D output.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	var none onnxruntime_go.InputOutputInfo
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}

	if len(inputs) != 1 {
		return none, none, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return none, none, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}

	inputInfo := inputs[0]
	outputInfo := outputs[0]

	if len(inputInfo.Dimensions) != 4 {
		return none, none, fmt.Errorf("expected 4D input tensor, got %dD", len(inputInfo.Dimensions))
	}
	if c := inputInfo.Dimensions[1]; c > 0 && c != 3 {
		return none, none, fmt.Errorf("expected 3 input channels, got %d", c)
	}
	if len(outputInfo.Dimensions) != 3 {
		return none, none, fmt.Errorf("expected 3D output tensor, got %dD", len(outputInfo.Dimensions))
	}

	return inputInfo, outputInfo, nil
}

// inputSize resolves the square input side from the model, falling back to
// the configured size for dynamic dimensions.
func inputSize(info onnxruntime_go.InputOutputInfo, configured int) (int, error) {
	h, w := info.Dimensions[2], info.Dimensions[3]
	switch {
	case h > 0 && w > 0 && h != w:
		return 0, fmt.Errorf("expected square input, got %dx%d", w, h)
	case h > 0:
		return int(h), nil
	case configured > 0:
		return configured, nil
	default:
		return 0, errors.New("model input size is dynamic and no input_size is configured")
	}
}

func configureGPU(sessionOptions *onnxruntime_go.SessionOptions, gpu GPUConfig) error {
	if !gpu.UseGPU {
		return nil
	}

	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if destroyErr := cudaOpts.Destroy(); destroyErr != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", destroyErr)
		}
	}()

	settings := map[string]string{
		"device_id":                 strconv.Itoa(gpu.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if gpu.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(gpu.GPUMemLimit, 10)
	}
	if err := cudaOpts.Update(settings); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists where the runtime is looked up, GPU builds first
// when requested.
func libraryCandidates(useGPU bool, name string) []string {
	var paths []string
	if useGPU {
		paths = append(paths, "/opt/onnxruntime/gpu/lib/"+name)
	}
	paths = append(paths,
		"/usr/local/lib/"+name,
		"/usr/lib/"+name,
		"/opt/onnxruntime/cpu/lib/"+name,
	)
	if env := os.Getenv("ONNXRUNTIME_LIB_DIR"); env != "" {
		paths = append([]string{filepath.Join(env, name)}, paths...)
	}
	return paths
}

func setLibraryPath(useGPU bool) error {
	name, err := libraryName()
	if err != nil {
		return err
	}
	for _, p := range libraryCandidates(useGPU, name) {
		if _, err := os.Stat(p); err == nil {
			onnxruntime_go.SetSharedLibraryPath(p)
			return nil
		}
	}
	return fmt.Errorf("%s not found; set detector.onnx.library_path or ONNXRUNTIME_LIB_DIR", name)
}
