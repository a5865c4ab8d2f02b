package conv

import (
	"errors"

	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by convolution functions.
var (
	ErrEmptyInput     = errors.New("conv: empty input")
	ErrEmptyKernel    = errors.New("conv: empty kernel")
	ErrLengthMismatch = errors.New("conv: buffer length mismatch")
	ErrShortInput     = errors.New("conv: input shorter than kernel")
)

// Mode specifies which part of the full convolution is returned.
type Mode int

const (
	// ModeFull returns the full convolution result with length len(a)+len(b)-1.
	ModeFull Mode = iota

	// ModeSame returns output with the same length as the first input,
	// centered on the full result.
	ModeSame

	// ModeValid returns only the portion where signals fully overlap,
	// with length max(len(a), len(b)) - min(len(a), len(b)) + 1.
	ModeValid

	// ModeCausal returns len(a) samples starting at index len(b)-1.
	// With a time-reversed matched filter as b, this drops the acausal
	// lead-in and keeps the response from zero time onwards.
	ModeCausal
)

// Thresholds for algorithm selection in Convolve.
const (
	directThreshold = 64 // kernels up to this length use direct summation
	overlapAddRatio = 8  // signals this many times longer than the kernel use overlap-add
)

// Direct performs direct time-domain linear convolution of a and b.
// Returns a new slice of length len(a) + len(b) - 1.
//
// This is an O(N*M) algorithm suitable for short kernels and as a
// reference for the FFT paths.
func Direct(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}

	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	result := make([]float64, len(a)+len(b)-1)
	directTo(result, a, b, make([]float64, len(b)))

	return result, nil
}

// DirectTo performs direct convolution, writing to a pre-allocated destination.
// dst must have length len(a) + len(b) - 1.
func DirectTo(dst, a, b []float64) {
	directTo(dst, a, b, make([]float64, len(b)))
}

// directTo accumulates a[i]*b into dst[i:] block by block; scratch holds
// the scaled kernel and must have length len(b).
func directTo(dst, a, b, scratch []float64) {
	clear(dst)

	m := len(b)

	for i, x := range a {
		if x == 0 {
			continue
		}

		vecmath.ScaleBlock(scratch, b, x)
		vecmath.AddBlockInPlace(dst[i:i+m], scratch)
	}
}

// Convolve performs linear convolution with automatic algorithm selection:
// direct summation for short kernels, overlap-add when the signal is much
// longer than the kernel, and a single zero-padded FFT otherwise.
func Convolve(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}

	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	// Convolution commutes; treat the shorter sequence as the kernel.
	if len(b) > len(a) {
		a, b = b, a
	}

	switch {
	case len(b) <= directThreshold:
		return Direct(a, b)
	case len(a) >= overlapAddRatio*len(b):
		return OverlapAddConvolve(a, b)
	default:
		return FFT(a, b)
	}
}

// ConvolveMode performs convolution and returns the part selected by mode.
func ConvolveMode(a, b []float64, mode Mode) ([]float64, error) {
	if mode == ModeCausal && len(a) < len(b) {
		return nil, ErrShortInput
	}

	full, err := Convolve(a, b)
	if err != nil {
		return nil, err
	}

	return trimToMode(full, len(a), len(b), mode), nil
}

// trimToMode extracts the appropriate portion of a full convolution result.
func trimToMode(full []float64, lenA, lenB int, mode Mode) []float64 {
	switch mode {
	case ModeFull:
		return full
	case ModeSame:
		start := (lenB - 1) / 2
		return full[start : start+lenA]
	case ModeValid:
		if lenA >= lenB {
			return full[lenB-1 : lenA]
		}

		return full[lenA-1 : lenB]
	case ModeCausal:
		return full[lenB-1 : lenB-1+lenA]
	default:
		return full
	}
}

// NextPowerOf2 returns the next power of 2 >= n.
func NextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p *= 2
	}

	return p
}
