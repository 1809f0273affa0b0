package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	environmentOnce sync.Once
	environmentErr  error
)

// libraryName returns the platform file name of the ONNX Runtime shared library.
func libraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// ResolveLibraryPath picks the ONNX Runtime shared library: the configured path,
// then ONNXRUNTIME_SHARED_LIBRARY_PATH, then a lib/ directory next to the model,
// then the usual system locations.
func ResolveLibraryPath(configured, modelPath string) (string, error) {
	candidates := []string{configured, os.Getenv(libraryPathEnvName)}
	if modelPath != "" {
		candidates = append(candidates,
			filepath.Join(filepath.Dir(modelPath), "lib", libraryName()),
			filepath.Join(filepath.Dir(modelPath), "..", "lib", libraryName()),
		)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/lib", libraryName()),
		filepath.Join("/usr/lib", libraryName()),
	)

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("onnxruntime shared library not found; set model.onnxruntime_library or %s", libraryPathEnvName)
}

// initEnvironment initializes ONNX Runtime once per process.
func initEnvironment(libPath string) error {
	environmentOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(libPath)
		environmentErr = ort.InitializeEnvironment()
	})
	return environmentErr
}

// DestroyEnvironment releases ONNX Runtime. Call once after every session is closed.
func DestroyEnvironment() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
