package speedtester

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{10}, 10},
		{[]float64{20, 25, 22}, 67.0 / 3},
		{[]float64{1.5, 2.5, 3.5, 4.5}, 3},
	}
	for _, tc := range tests {
		if got := Mean(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Mean(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestJitter(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"no samples", nil, 0},
		{"single sample", []float64{42}, 0},
		{"two samples", []float64{10, 14}, 4},
		{"three of five pings", []float64{20, 25, 22}, 4},
		{"flat", []float64{7, 7, 7, 7}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Jitter(tc.in); got != tc.want {
				t.Errorf("Jitter(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float64{5, 1, 9, 3})
	if lo != 1 || hi != 9 {
		t.Errorf("MinMax = %v/%v, want 1/9", lo, hi)
	}
	if lo, hi := MinMax(nil); lo != 0 || hi != 0 {
		t.Errorf("MinMax(nil) = %v/%v", lo, hi)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{2.345678, 2.35},
		{22.3333333, 22.33},
		{0, 0},
		{-3.2, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tc := range tests {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMbps(t *testing.T) {
	if got := Mbps(1_048_576, 1); got != 8 {
		t.Errorf("Mbps(1MiB, 1s) = %v, want 8", got)
	}
	if got := Mbps(65_536, 0.5); got != 1 {
		t.Errorf("Mbps(64KiB, 0.5s) = %v, want 1", got)
	}
	if got := Mbps(100, 0); got != 0 {
		t.Errorf("Mbps with zero duration = %v, want 0", got)
	}
	if got := Mbps(0, 1); got != 0 {
		t.Errorf("Mbps with zero bytes = %v, want 0", got)
	}
}
