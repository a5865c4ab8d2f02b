// Package sweep builds exponential sine sweep (ESS) excitations and their
// matched analysis filters for impulse response and latency measurement.
//
// An exponential sweep spends equal time per octave. Its analysis filter
// is the time-reversed sweep weighted by a compensation curve that falls
// with the sweep's exponential envelope, normalized by the weighted sweep
// power. Convolving a recording of the excitation with that filter and
// discarding the acausal lead-in recovers the linear impulse response.
//
// Frequencies are expressed as pulsations in radians per sample, which keeps
// the construction independent of the device sample rate.
//
// # Usage
//
//	p := sweep.FromHz(20, 24000, 48000, 1<<18)
//	ess, err := sweep.Generate(p)
//	if err != nil {
//	    return err
//	}
//	// play ess.Excitation(), record the response, then:
//	ir, err := deconv.LinearResponse(recording, ess.Analysis())
//
// The construction is split into pure steps ([Excitation],
// [CompensationCurve], [ReverseMultiply], [InversePower], [Normalize]) that
// [Generate] composes.
package sweep
