package floatutils

import (
	"math"
	"testing"
)

func TestClip(t *testing.T) {
	if got := Clip(5, -1, 1); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := Clip(-5, -1, 1); got != -1 {
		t.Errorf("expected -1, got %v", got)
	}
	if got := Clip(0.5, -1, 1); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestSign(t *testing.T) {
	if got := Sign(3.2); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := Sign(-0.1); got != -1 {
		t.Errorf("expected -1, got %v", got)
	}
	if got := Sign(0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestMaskedMax(t *testing.T) {
	values := []float64{9, 5, 7, 6}
	if got := MaskedMax(values, []float64{0, 1, 1, 0}); got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
	if got := MaskedMax(values, []float64{1, 1, 1, 1}); got != 9 {
		t.Errorf("expected 9, got %v", got)
	}

	got := MaskedMax(values, []float64{0, 0, 0, 0})
	if !math.IsInf(got, -1) {
		t.Errorf("expected -Inf with an empty mask, got %v", got)
	}
}

func TestMaskedArgMax(t *testing.T) {
	values := []float64{9, 5, 7, 6}
	if got := MaskedArgMax(values, []float64{0, 1, 1, 0}); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if got := MaskedArgMax(values, []float64{0, 0, 0, 0}); got != -1 {
		t.Errorf("expected -1 with an empty mask, got %v", got)
	}
}
