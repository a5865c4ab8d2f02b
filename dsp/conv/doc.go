// Package conv provides linear convolution routines.
//
// The package offers three strategies:
//
//   - Direct convolution: O(N*M) time-domain summation, best for short kernels
//   - FFT: a single zero-padded transform of the whole problem, best when
//     signal and kernel have comparable lengths
//   - Overlap-add (OLA): block FFT convolution with a cached kernel spectrum,
//     best for long signals with shorter kernels
//
// # Usage
//
//	full, err := conv.Convolve(signal, kernel)          // auto-selects
//	ir, err := conv.ConvolveMode(rec, filter, conv.ModeCausal)
//
// For repeated convolution with the same kernel, create a reusable convolver:
//
//	oa, err := conv.NewOverlapAdd(kernel, blockSize)
//	result, err := oa.Process(signal)
//
// # Algorithm Selection
//
// [Convolve] uses direct summation for kernels of at most 64 samples,
// overlap-add when the signal is at least 8 times longer than the kernel,
// and [FFT] otherwise.
//
// # Causal trimming
//
// [ModeCausal] keeps len(a) samples starting at len(b)-1. Deconvolving with a
// time-reversed matched filter places zero time at index len(b)-1 of the full
// convolution; everything before it is acausal lead-in.
package conv
