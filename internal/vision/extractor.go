package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
)

var (
	// ErrUnreadableImage means the bytes could not be decoded as an image.
	ErrUnreadableImage = fmt.Errorf("%w: unreadable image", models.ErrExtraction)
	// ErrModel means the detector or embedder failed to load or run.
	ErrModel = fmt.Errorf("%w: model error", models.ErrExtraction)
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// Extractor turns image bytes into zero or more face embeddings, one per
// detected face. Failures wrap models.ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([][]float32, error)
	Dim() int
}

type faceEngine interface {
	extract(img image.Image, maxFaces int) ([][]float32, error)
	close()
}

// Pool is a fixed set of ONNX engines. Each engine owns its own sessions
// and tensors; callers borrow one through a channel.
type Pool struct {
	engines  chan faceEngine
	all      []faceEngine
	dim      int
	maxFaces int
}

// NewPool loads cfg.WorkerCount detector/embedder pairs from cfg.ModelsDir.
// The ONNX runtime must already be initialised.
func NewPool(cfg config.VisionConfig) (*Pool, error) {
	workers := max(cfg.WorkerCount, 1)

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(max(runtime.NumCPU()/workers, 1)); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}

	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)

	engines := make([]faceEngine, 0, workers)
	for i := 0; i < workers; i++ {
		slog.Info("loading vision engine", "index", i, "detector", detPath, "embedder", embPath)
		eng, err := newONNXEngine(detPath, embPath, cfg, opts)
		if err != nil {
			for _, e := range engines {
				e.close()
			}
			return nil, err
		}
		engines = append(engines, eng)
	}
	return newPool(engines, cfg.EmbeddingDim, cfg.MaxFaces), nil
}

func newPool(engines []faceEngine, dim, maxFaces int) *Pool {
	p := &Pool{
		engines:  make(chan faceEngine, len(engines)),
		all:      engines,
		dim:      dim,
		maxFaces: maxFaces,
	}
	for _, e := range engines {
		p.engines <- e
	}
	return p
}

func (p *Pool) Dim() int { return p.dim }

// Extract decodes data and runs detection and embedding on a borrowed engine.
// A readable image without faces returns an empty slice and no error.
func (p *Pool) Extract(ctx context.Context, data []byte) ([][]float32, error) {
	start := time.Now()
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	var eng faceEngine
	select {
	case eng = <-p.engines:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.engines <- eng }()

	vectors, err := eng.extract(img, p.maxFaces)
	if err != nil {
		if errors.Is(err, models.ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	for i, v := range vectors {
		if len(v) != p.dim {
			return nil, fmt.Errorf("%w: face %d has %d values, want %d", ErrModel, i, len(v), p.dim)
		}
	}
	return vectors, nil
}

// Close releases every engine. The pool must be idle.
func (p *Pool) Close() {
	for _, e := range p.all {
		e.close()
	}
}

type onnxEngine struct {
	detector *Detector
	embedder *Embedder
}

func newONNXEngine(detPath, embPath string, cfg config.VisionConfig, opts *ort.SessionOptions) (*onnxEngine, error) {
	det, err := NewDetector(detPath, cfg.InputSize, float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	emb, err := NewEmbedder(embPath, cfg.EmbeddingDim, opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	return &onnxEngine{detector: det, embedder: emb}, nil
}

func (e *onnxEngine) extract(img image.Image, maxFaces int) ([][]float32, error) {
	start := time.Now()
	detections, err := e.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	// Detect returns the most confident faces first.
	if maxFaces > 0 && len(detections) > maxFaces {
		detections = detections[:maxFaces]
	}

	origin := img.Bounds().Min
	vectors := make([][]float32, 0, len(detections))
	for _, d := range detections {
		crop := cropFace(img, shiftBox(d.BBox, origin))
		if crop == nil {
			continue
		}
		start = time.Now()
		vec, err := e.embedder.Embed(crop)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (e *onnxEngine) close() {
	e.detector.Close()
	e.embedder.Close()
}

// shiftBox moves a box from image-relative to absolute coordinates.
func shiftBox(b [4]float32, min image.Point) [4]float32 {
	dx, dy := float32(min.X), float32(min.Y)
	return [4]float32{b[0] + dx, b[1] + dy, b[2] + dx, b[3] + dy}
}
