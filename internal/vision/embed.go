package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFace w600k_r50 takes a 112x112 aligned crop.
const embedSide = 112

// Embedder turns a face crop into a unit-length ArcFace vector.
type Embedder struct {
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
	dim     int
}

// NewEmbedder loads an ArcFace model whose output width is dim.
func NewEmbedder(modelPath string, dim int, opts *ort.SessionOptions) (*Embedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embedSide, embedSide))
	if err != nil {
		return nil, fmt.Errorf("create embedder input: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim)))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("create embedder output: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{in}, []ort.Value{out},
		opts,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return &Embedder{session: session, in: in, out: out, dim: dim}, nil
}

// Embed resizes face to the model input and returns its embedding. A
// degenerate output (zero or non-finite) is reported as ErrModel.
func (e *Embedder) Embed(face image.Image) ([]float32, error) {
	copy(e.in.GetData(), preprocessForEmbedding(face, embedSide, embedSide))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: run embedder: %v", ErrModel, err)
	}

	vec := make([]float32, e.dim)
	copy(vec, e.out.GetData())
	if !normalize(vec) {
		return nil, fmt.Errorf("%w: degenerate embedding", ErrModel)
	}
	return vec, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.in != nil {
		e.in.Destroy()
	}
	if e.out != nil {
		e.out.Destroy()
	}
}

// normalize scales v to unit length in place. It reports false, leaving v
// untouched, when v has no direction or holds NaN/Inf.
func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return true
}
