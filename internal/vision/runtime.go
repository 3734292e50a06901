package vision

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facefind/internal/config"
)

// InitRuntime loads the ONNX Runtime shared library. An empty libPath picks
// the platform default name.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultONNXLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnx runtime", "error", err)
	}
}

// defaultONNXLibPath returns the ONNX Runtime shared library name
// based on the operating system.
func defaultONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// Handle loads the engine pool on first use and shares it afterwards. A load
// failure is sticky: every later Extract reports ErrModel.
type Handle struct {
	cfg  config.VisionConfig
	load func(config.VisionConfig) (*Pool, error)

	once sync.Once
	pool *Pool
	err  error
}

func NewHandle(cfg config.VisionConfig) *Handle {
	return &Handle{cfg: cfg, load: NewPool}
}

func (h *Handle) init() {
	h.once.Do(func() {
		h.pool, h.err = h.load(h.cfg)
		if h.err != nil {
			slog.Error("load vision models", "error", h.err)
			return
		}
		slog.Info("vision models ready", "workers", len(h.pool.all), "dim", h.pool.dim)
	})
}

func (h *Handle) Extract(ctx context.Context, data []byte) ([][]float32, error) {
	h.init()
	if h.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, h.err)
	}
	return h.pool.Extract(ctx, data)
}

func (h *Handle) Dim() int { return h.cfg.EmbeddingDim }

// Close releases the pool if it was loaded.
func (h *Handle) Close() {
	h.once.Do(func() {})
	if h.pool != nil {
		h.pool.Close()
	}
}
