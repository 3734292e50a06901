package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"png", encodePNG(t, 8, 4), false},
		{"empty", nil, true},
		{"garbage", []byte("definitely not an image"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := DecodeImage(tc.data)
			if tc.wantErr {
				if !errors.Is(err, ErrUnreadableImage) || !errors.Is(err, models.ErrExtraction) {
					t.Errorf("expected ErrUnreadableImage wrapping ErrExtraction, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
				t.Errorf("unexpected bounds %v", img.Bounds())
			}
		})
	}
}

func TestImageToFloat32CHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 0, 128, 255
	}

	data := imageToFloat32CHW(img, 2, 2, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	if len(data) != 3*2*2 {
		t.Fatalf("expected 12 values, got %d", len(data))
	}
	for i := 0; i < 4; i++ {
		if data[i] != 255 || data[4+i] != 0 || data[8+i] != 128 {
			t.Fatalf("unexpected CHW layout: %v", data)
		}
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	tests := []struct {
		name  string
		bbox  [4]float32
		wantW int
		wantH int
		nil   bool
	}{
		{"padded", [4]float32{20, 20, 60, 70}, 48, 60, false},
		{"clamped", [4]float32{-10, -10, 30, 30}, 33, 33, false},
		{"outside", [4]float32{200, 200, 300, 300}, 0, 0, true},
		{"empty", [4]float32{10, 10, 10, 40}, 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			crop := cropFace(img, tc.bbox)
			if tc.nil {
				if crop != nil {
					t.Errorf("expected nil crop, got %v", crop.Bounds())
				}
				return
			}
			if crop == nil {
				t.Fatal("expected crop")
			}
			if crop.Bounds().Dx() != tc.wantW || crop.Bounds().Dy() != tc.wantH {
				t.Errorf("crop = %v; want %dx%d", crop.Bounds(), tc.wantW, tc.wantH)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}
	got := nms(dets, 0.4)
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(got))
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.8 {
		t.Errorf("unexpected order: %v, %v", got[0].Confidence, got[1].Confidence)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	if !normalize(v) {
		t.Fatal("normalize reported failure")
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize = %v", v)
	}
	zero := []float32{0, 0}
	if normalize(zero) {
		t.Error("zero vector reported as normalized")
	}
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
	if normalize([]float32{float32(math.NaN()), 1}) {
		t.Error("NaN vector reported as normalized")
	}
}

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	if got := iou(a, a); got != 1 {
		t.Errorf("iou(a, a) = %v", got)
	}
	if got := iou(a, [4]float32{10, 0, 20, 10}); got != 0 {
		t.Errorf("touching boxes iou = %v", got)
	}
	if got := iou(a, [4]float32{5, 0, 15, 10}); math.Abs(float64(got)-1.0/3) > 1e-6 {
		t.Errorf("half overlap iou = %v", got)
	}
}

func TestDetectorOutputs(t *testing.T) {
	specs := detectorOutputs(640)
	if len(specs) != 9 {
		t.Fatalf("expected 9 outputs, got %d", len(specs))
	}
	want := map[string][2]int64{"448": {12800, 1}, "494": {800, 1}, "474": {3200, 4}, "500": {800, 10}}
	for _, s := range specs {
		if w, ok := want[s.name]; ok && (s.shape[0] != w[0] || s.shape[1] != w[1]) {
			t.Errorf("output %s shape %v; want %v", s.name, s.shape, w)
		}
	}
}

type fakeEngine struct {
	vectors [][]float32
	err     error
	delay   time.Duration
	closed  bool
}

func (f *fakeEngine) extract(img image.Image, maxFaces int) ([][]float32, error) {
	time.Sleep(f.delay)
	return f.vectors, f.err
}

func (f *fakeEngine) close() { f.closed = true }

func TestPool(t *testing.T) {
	ctx := context.Background()
	img := encodePNG(t, 16, 16)

	t.Run("Extract", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{vectors: [][]float32{{1, 0, 0}, {0, 1, 0}}}}, 3, 8)
		got, err := p.Extract(ctx, img)
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 faces, got %d", len(got))
		}
	})

	t.Run("NoFaces", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{}}, 3, 8)
		got, err := p.Extract(ctx, img)
		if err != nil || len(got) != 0 {
			t.Errorf("expected empty result, got %v, %v", got, err)
		}
	})

	t.Run("UnreadableImage", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{}}, 3, 8)
		if _, err := p.Extract(ctx, []byte("nope")); !errors.Is(err, ErrUnreadableImage) {
			t.Errorf("expected ErrUnreadableImage, got %v", err)
		}
	})

	t.Run("ModelError", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{err: errors.New("session run failed")}}, 3, 8)
		_, err := p.Extract(ctx, img)
		if !errors.Is(err, ErrModel) || !errors.Is(err, models.ErrExtraction) {
			t.Errorf("expected ErrModel, got %v", err)
		}
	})

	t.Run("WrongDimension", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{vectors: [][]float32{{1, 0}}}}, 3, 8)
		if _, err := p.Extract(ctx, img); !errors.Is(err, ErrModel) {
			t.Errorf("expected ErrModel, got %v", err)
		}
	})

	t.Run("BorrowHonoursContext", func(t *testing.T) {
		p := newPool([]faceEngine{&fakeEngine{delay: 200 * time.Millisecond}}, 3, 8)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = p.Extract(ctx, img)
		}()
		time.Sleep(50 * time.Millisecond)

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := p.Extract(short, img); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded while engine busy, got %v", err)
		}
		<-done
	})

	t.Run("Close", func(t *testing.T) {
		e := &fakeEngine{}
		newPool([]faceEngine{e}, 3, 8).Close()
		if !e.closed {
			t.Error("expected engine closed")
		}
	})
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	img := encodePNG(t, 16, 16)

	loads := 0
	h := &Handle{cfg: config.VisionConfig{EmbeddingDim: 3}, load: func(cfg config.VisionConfig) (*Pool, error) {
		loads++
		return newPool([]faceEngine{&fakeEngine{vectors: [][]float32{{0, 0, 1}}}}, cfg.EmbeddingDim, 0), nil
	}}
	for i := 0; i < 3; i++ {
		if _, err := h.Extract(ctx, img); err != nil {
			t.Fatalf("extract failed: %v", err)
		}
	}
	if loads != 1 {
		t.Errorf("expected one load, got %d", loads)
	}

	failing := &Handle{load: func(config.VisionConfig) (*Pool, error) { return nil, errors.New("missing model") }}
	if _, err := failing.Extract(ctx, img); !errors.Is(err, ErrModel) {
		t.Errorf("expected ErrModel, got %v", err)
	}
	failing.Close()
}
