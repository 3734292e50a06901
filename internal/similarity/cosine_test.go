package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/your-org/facefind/internal/models"
)

const tolerance = 1e-9

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero left", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"zero right", []float32{1, 2, 3}, []float32{0, 0, 0}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Cosine(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Cosine returned error: %v", err)
			}
			if math.Abs(got-tc.expected) > tolerance {
				t.Errorf("Cosine(%v, %v) = %v; want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := []float32{0.3, -0.2, 0.9, 0.1}
	b := []float32{0.1, 0.4, 0.7, -0.5}

	ab, err := Cosine(a, b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Cosine(b, a)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ab-ba) > tolerance {
		t.Errorf("similarity not symmetric: %v vs %v", ab, ba)
	}
}

func TestCosineSelfIsOne(t *testing.T) {
	v := make([]float32, 512)
	for i := range v {
		v[i] = float32(math.Sin(float64(i)))
	}
	got, err := Cosine(v, v)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine(v, v) = %v; want 1", got)
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 0}, []float32{1, 0, 0})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		v       []float32
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty", []float32{}, true},
		{"zero norm", []float32{0, 0, 0}, true},
		{"valid", []float32{0, 1, 0}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuery(tc.v)
			if tc.wantErr && !errors.Is(err, models.ErrEmptyVector) {
				t.Errorf("expected ErrEmptyVector, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
