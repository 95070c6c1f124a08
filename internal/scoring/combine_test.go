package scoring

import (
	"math"
	"testing"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"both zero", 0, 0, 0},
		{"both one", 1, 1, 1},
		{"simple mean", 0.8, 0.6, 0.7},
		{"rounds to 3 places", 0.3333, 0.3333, 0.333},
		{"rounds half up", 0.123, 0.124, 0.124}, // mean 0.1235
		{"asymmetric", 1, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.a, tt.b); got != tt.want {
				t.Errorf("Combine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCombineIsCommutative(t *testing.T) {
	for a := 0.0; a <= 1.0; a += 0.07 {
		for b := 0.0; b <= 1.0; b += 0.07 {
			if Combine(a, b) != Combine(b, a) {
				t.Fatalf("Combine(%v, %v) != Combine(%v, %v)", a, b, b, a)
			}
		}
	}
}

func TestCombineMatchesRoundedMean(t *testing.T) {
	for a := 0.0; a <= 1.0; a += 0.013 {
		for b := 0.0; b <= 1.0; b += 0.013 {
			want := math.Round((a+b)/2*1000) / 1000
			if got := Combine(a, b); got != want {
				t.Fatalf("Combine(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}
