// Package deconv recovers impulse responses from sweep recordings by
// matched-filter deconvolution.
//
// The recording is convolved with the sweep's analysis filter and the full
// convolution is trimmed at index len(filter)-1. Because the filter is a
// time-reversed sweep, everything before that index is acausal lead-in;
// the remaining len(recording) samples are the causal impulse response,
// with zero time aligned to the first recorded sample.
package deconv

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-latency/dsp/conv"
)

// ErrInvalidInput is returned for empty inputs or a recording shorter than
// the analysis filter.
var ErrInvalidInput = errors.New("deconv: invalid input")

// directThreshold bounds the filter length for which direct summation is
// used instead of the FFT.
const directThreshold = 64

func validate(captured, analysis []float64) error {
	switch {
	case len(captured) == 0:
		return fmt.Errorf("%w: empty recording", ErrInvalidInput)
	case len(analysis) == 0:
		return fmt.Errorf("%w: empty analysis filter", ErrInvalidInput)
	case len(captured) < len(analysis):
		return fmt.Errorf("%w: recording of %d samples is shorter than the %d-sample analysis filter",
			ErrInvalidInput, len(captured), len(analysis))
	}

	return nil
}

// LinearResponse convolves captured with analysis and returns the causal
// impulse response of length len(captured).
func LinearResponse(captured, analysis []float64) ([]float64, error) {
	if err := validate(captured, analysis); err != nil {
		return nil, err
	}

	if len(analysis) <= directThreshold {
		return LinearResponseDirect(captured, analysis)
	}

	ir, err := conv.ConvolveMode(captured, analysis, conv.ModeCausal)
	if err != nil {
		return nil, fmt.Errorf("deconv: %w", err)
	}

	return ir, nil
}

// LinearResponseDirect is the O(M·N) time-domain reference for
// LinearResponse. Only the retained output samples are computed.
func LinearResponseDirect(captured, analysis []float64) ([]float64, error) {
	if err := validate(captured, analysis); err != nil {
		return nil, err
	}

	m, n := len(captured), len(analysis)
	ir := make([]float64, m)

	reversed := make([]float64, n)
	for i, v := range analysis {
		reversed[n-1-i] = v
	}

	// Output k sums captured[j]*analysis[k+n-1-j] for j in [k, k+n-1],
	// which is a dot product with the reversed filter.
	for k := range ir {
		hi := min(m, k+n)
		ir[k] = vecmath.DotProduct(captured[k:hi], reversed[:hi-k])
	}

	return ir, nil
}

// Deconvolver caches the analysis filter spectrum so that recordings of
// the same length can be deconvolved repeatedly with one FFT plan.
//
// A Deconvolver is not safe for concurrent use.
type Deconvolver struct {
	filterLen   int
	capacity    int
	fftSize     int
	plan        *algofft.Plan[complex128]
	filterFFT   []complex128
	scratch     []complex128
	analysisRef []float64
}

// New prepares a Deconvolver for recordings of up to maxCapturedLen samples.
func New(analysis []float64, maxCapturedLen int) (*Deconvolver, error) {
	if len(analysis) == 0 {
		return nil, fmt.Errorf("%w: empty analysis filter", ErrInvalidInput)
	}

	if maxCapturedLen < len(analysis) {
		return nil, fmt.Errorf("%w: capacity %d is shorter than the %d-sample analysis filter",
			ErrInvalidInput, maxCapturedLen, len(analysis))
	}

	fftSize := conv.NextPowerOf2(maxCapturedLen + len(analysis) - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("deconv: failed to create FFT plan: %w", err)
	}

	filterFFT, err := conv.Spectrum(analysis, fftSize)
	if err != nil {
		return nil, fmt.Errorf("deconv: %w", err)
	}

	return &Deconvolver{
		filterLen:   len(analysis),
		capacity:    maxCapturedLen,
		fftSize:     fftSize,
		plan:        plan,
		filterFFT:   filterFFT,
		scratch:     make([]complex128, fftSize),
		analysisRef: analysis,
	}, nil
}

// FFTSize returns the transform size used for every recording.
func (d *Deconvolver) FFTSize() int {
	return d.fftSize
}

// Capacity returns the longest recording the Deconvolver accepts.
func (d *Deconvolver) Capacity() int {
	return d.capacity
}

// LinearResponse deconvolves captured against the cached analysis filter.
func (d *Deconvolver) LinearResponse(captured []float64) ([]float64, error) {
	if err := validate(captured, d.analysisRef); err != nil {
		return nil, err
	}

	if len(captured) > d.capacity {
		return nil, fmt.Errorf("%w: recording of %d samples exceeds capacity %d",
			ErrInvalidInput, len(captured), d.capacity)
	}

	for i := range d.scratch {
		d.scratch[i] = 0
	}

	for i, v := range captured {
		d.scratch[i] = complex(v, 0)
	}

	if err := d.plan.Forward(d.scratch, d.scratch); err != nil {
		return nil, fmt.Errorf("deconv: forward FFT failed: %w", err)
	}

	for i := range d.scratch {
		d.scratch[i] *= d.filterFFT[i]
	}

	if err := d.plan.Inverse(d.scratch, d.scratch); err != nil {
		return nil, fmt.Errorf("deconv: inverse FFT failed: %w", err)
	}

	ir := make([]float64, len(captured))
	offset := d.filterLen - 1
	for i := range ir {
		ir[i] = real(d.scratch[offset+i])
	}

	return ir, nil
}

// ToFloat64 widens a float32 recording for analysis.
func ToFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}

	return out
}
