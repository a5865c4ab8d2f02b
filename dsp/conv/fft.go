package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// FFT computes the full linear convolution of a and b with a single
// zero-padded transform of size NextPowerOf2(len(a)+len(b)-1).
//
// Cost is O((M+N) log(M+N)); memory is three complex buffers of the
// padded size.
func FFT(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}

	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	n := len(a) + len(b) - 1
	fftSize := NextPowerOf2(n)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	spectrumA, err := forward(plan, a, fftSize)
	if err != nil {
		return nil, err
	}

	spectrumB, err := forward(plan, b, fftSize)
	if err != nil {
		return nil, err
	}

	for i := range spectrumA {
		spectrumA[i] *= spectrumB[i]
	}

	// algo-fft normalizes the inverse by 1/N.
	if err := plan.Inverse(spectrumA, spectrumA); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	result := make([]float64, n)
	for i := range result {
		result[i] = real(spectrumA[i])
	}

	return result, nil
}

// Spectrum returns the forward transform of x zero-padded to fftSize.
// fftSize must be a power of two no smaller than len(x).
func Spectrum(x []float64, fftSize int) ([]complex128, error) {
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}

	if fftSize < len(x) || NextPowerOf2(fftSize) != fftSize {
		return nil, fmt.Errorf("%w: FFT size %d for %d samples", ErrLengthMismatch, fftSize, len(x))
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	return forward(plan, x, fftSize)
}

func forward(plan *algofft.Plan[complex128], x []float64, fftSize int) ([]complex128, error) {
	padded := make([]complex128, fftSize)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}

	if err := plan.Forward(padded, padded); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}

	return padded, nil
}
