package sweep

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// DefaultGain is the excitation amplitude used when none is configured.
const DefaultGain = 0.25

// ErrInvalidParameters is returned for malformed sweep parameters.
var ErrInvalidParameters = errors.New("sweep: invalid parameters")

// Parameters describes an exponential sine sweep.
//
// Pulsations are normalized angular frequencies in radians per sample, so
// the Nyquist frequency corresponds to π.
type Parameters struct {
	StartPulsation float64 // instantaneous pulsation at sample 0
	StopPulsation  float64 // instantaneous pulsation reached at Length
	Length         int     // sweep length in samples
	Gain           float64 // peak amplitude, in (0, 1]
}

// FromHz builds sweep parameters from frequencies in Hz.
func FromHz(startHz, stopHz, sampleRate float64, length int) Parameters {
	return Parameters{
		StartPulsation: 2 * math.Pi * startHz / sampleRate,
		StopPulsation:  2 * math.Pi * stopHz / sampleRate,
		Length:         length,
		Gain:           DefaultGain,
	}
}

// Validate checks that the parameters describe a constructible sweep.
func (p Parameters) Validate() error {
	switch {
	case !(p.StartPulsation > 0) || math.IsInf(p.StartPulsation, 0):
		return fmt.Errorf("%w: start pulsation must be positive, got %g", ErrInvalidParameters, p.StartPulsation)
	case !(p.StopPulsation > p.StartPulsation) || math.IsInf(p.StopPulsation, 0):
		return fmt.Errorf("%w: stop pulsation %g must exceed start pulsation %g",
			ErrInvalidParameters, p.StopPulsation, p.StartPulsation)
	case p.Length <= 0:
		return fmt.Errorf("%w: length must be positive, got %d", ErrInvalidParameters, p.Length)
	case !(p.Gain > 0) || p.Gain > 1:
		return fmt.Errorf("%w: gain must be in (0, 1], got %g", ErrInvalidParameters, p.Gain)
	}

	return nil
}

// Rate returns ln(stop/start), the exponential growth rate of the
// instantaneous pulsation over the whole sweep.
func (p Parameters) Rate() float64 {
	return math.Log(p.StopPulsation / p.StartPulsation)
}

// ESS holds an exponential sine sweep and its matched analysis filter.
// Both sequences are shared read-only after Generate returns.
type ESS struct {
	params     Parameters
	excitation []float64
	analysis   []float64
}

// Generate builds the excitation and its analysis filter.
//
// Convolving a system's response to the excitation with the analysis
// filter and discarding the first Length-1 samples yields the system's
// linear impulse response with unity scaling.
func Generate(p Parameters) (*ESS, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	samples, envelope := Excitation(p)

	analysis := CompensationCurve(envelope)
	ReverseMultiply(analysis, samples)

	if err := Normalize(analysis, InversePower(samples, envelope)); err != nil {
		return nil, err
	}

	return &ESS{
		params:     p,
		excitation: samples,
		analysis:   analysis,
	}, nil
}

// Parameters returns the parameters the sweep was built from.
func (s *ESS) Parameters() Parameters {
	return s.params
}

// Len returns the sweep length in samples.
func (s *ESS) Len() int {
	return len(s.excitation)
}

// Excitation returns the sweep samples. The slice must not be modified.
func (s *ESS) Excitation() []float64 {
	return s.excitation
}

// Analysis returns the analysis filter. The slice must not be modified.
func (s *ESS) Analysis() []float64 {
	return s.analysis
}

// ExcitationFloat32 returns a float32 copy of the excitation for playback.
func (s *ESS) ExcitationFloat32() []float32 {
	out := make([]float32, len(s.excitation))
	for i, v := range s.excitation {
		out[i] = float32(v)
	}

	return out
}

// Excitation computes the sweep samples and their exponential envelope
// e[i] = exp(R*i/L), where R = ln(stop/start).
//
// The phase is phi*(e[i]-1) with phi = start/R*L, which integrates an
// instantaneous pulsation of start*e[i].
func Excitation(p Parameters) (samples, envelope []float64) {
	n := p.Length
	rate := p.Rate()
	phi := p.StartPulsation / rate * float64(n)

	samples = make([]float64, n)
	envelope = make([]float64, n)

	for i := range samples {
		e := math.Exp(rate * float64(i) / float64(n))
		envelope[i] = e
		samples[i] = p.Gain * math.Sin(phi*(e-1))
	}

	return samples, envelope
}

// CompensationCurve returns 1/e for each envelope value. It attenuates the
// low-pulsation end of the time-reversed sweep, where the excitation spends
// most of its time and therefore carries most of its energy.
func CompensationCurve(envelope []float64) []float64 {
	out := make([]float64, len(envelope))
	for i, e := range envelope {
		out[i] = 1 / e
	}

	return out
}

// ReverseMultiply multiplies dst pointwise by src reversed in time:
// dst[len-1-i] *= src[i]. dst and src must have equal length.
func ReverseMultiply(dst, src []float64) {
	if len(dst) != len(src) {
		panic("sweep: ReverseMultiply length mismatch")
	}

	reversed := make([]float64, len(src))
	for i, v := range src {
		reversed[len(src)-1-i] = v
	}

	vecmath.MulBlockInPlace(dst, reversed)
}

// InversePower returns the normalization energy sum(s[i]^2 / e[i]).
func InversePower(samples, envelope []float64) float64 {
	weighted := make([]float64, len(samples))
	vecmath.MulBlock(weighted, samples, samples)

	var power float64
	for i, v := range weighted {
		power += v / envelope[i]
	}

	return power
}

// Normalize divides every value in dst by power.
func Normalize(dst []float64, power float64) error {
	if !(power > 0) || math.IsInf(power, 0) {
		return fmt.Errorf("%w: analysis power must be positive and finite, got %g", ErrInvalidParameters, power)
	}

	vecmath.ScaleBlockInPlace(dst, 1/power)

	return nil
}
