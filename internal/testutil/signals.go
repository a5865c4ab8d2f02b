package testutil

import (
	"math"
	"math/rand"
)

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Delayed returns a signal of the given length holding src scaled by gain
// and shifted right by delay samples. Samples falling outside are dropped.
func Delayed(src []float64, delay int, gain float64, length int) []float64 {
	out := make([]float64, length)
	for i, v := range src {
		j := i + delay
		if j < 0 || j >= length {
			continue
		}
		out[j] = gain * v
	}
	return out
}

// PeakIndex returns the index and absolute value of the largest-magnitude
// sample. Returns -1 for an empty slice.
func PeakIndex(x []float64) (int, float64) {
	idx, peak := -1, 0.0
	for i, v := range x {
		if a := math.Abs(v); idx < 0 || a > peak {
			idx, peak = i, a
		}
	}
	return idx, peak
}
