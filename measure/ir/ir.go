package ir

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Errors returned by IR analysis functions.
var (
	ErrEmptyIR           = errors.New("ir: impulse response is empty")
	ErrInvalidSampleRate = errors.New("ir: sample rate must be positive")
	ErrInvalidLevel      = errors.New("ir: level must be negative dB")
)

const (
	// DefaultSilenceThresholdDB is the peak level below which a channel is
	// considered to have captured nothing.
	DefaultSilenceThresholdDB = -60.0

	// peakRatio selects the samples that count as the peak.
	peakRatio = 0.99

	// onsetRatio is -20 dB relative to the peak.
	onsetRatio = 0.1

	decayLevelDB = -20.0
)

// Metrics holds the latency and level of one recovered impulse response.
type Metrics struct {
	PeakIndex int     // last sample index within 1% of the absolute maximum
	Peak      float64 // absolute maximum
	GainDB    float64 // 20*log10(Peak)
	Latency   float64 // PeakIndex in seconds minus the pre-delay; zero when Silent
	Silent    bool    // GainDB below the silence threshold

	OnsetIndex int     // first sample reaching -20 dB relative to the peak
	DecayTime  float64 // seconds from the peak until the energy decay reaches -20 dB
}

// Analyzer computes latency metrics from impulse responses whose time zero
// is the start of the pre-delay.
type Analyzer struct {
	SampleRate         float64
	PreDelay           float64 // seconds subtracted from the peak time
	SilenceThresholdDB float64
}

// NewAnalyzer creates an analyzer with the default silence threshold.
func NewAnalyzer(sampleRate, preDelay float64) *Analyzer {
	return &Analyzer{
		SampleRate:         sampleRate,
		PreDelay:           preDelay,
		SilenceThresholdDB: DefaultSilenceThresholdDB,
	}
}

// Analyze computes all metrics of an impulse response.
func (a *Analyzer) Analyze(ir []float64) (Metrics, error) {
	if len(ir) == 0 {
		return Metrics{}, ErrEmptyIR
	}

	if !(a.SampleRate > 0) {
		return Metrics{}, ErrInvalidSampleRate
	}

	peak := floats.Norm(ir, math.Inf(1))
	m := Metrics{
		Peak:   peak,
		GainDB: 20 * math.Log10(peak),
	}

	if peak == 0 || m.GainDB < a.SilenceThresholdDB {
		m.Silent = true
		return m, nil
	}

	m.PeakIndex = lastAbove(ir, peakRatio*peak)
	m.OnsetIndex = firstAbove(ir, onsetRatio*peak)
	m.Latency = float64(m.PeakIndex)/a.SampleRate - a.PreDelay
	m.DecayTime = a.decayTime(schroederIntegral(ir[m.PeakIndex:]), decayLevelDB)

	return m, nil
}

// Latency returns the peak-based latency in seconds. ok is false for a
// silent response.
func (a *Analyzer) Latency(ir []float64) (latency float64, ok bool, err error) {
	m, err := a.Analyze(ir)
	if err != nil {
		return 0, false, err
	}

	return m.Latency, !m.Silent, nil
}

// SchroederIntegral computes the Schroeder backward integration of the
// squared impulse response, returned in dB.
//
//	S(t) = 10*log10( ∫_t^∞ h²(τ) dτ / ∫_0^∞ h²(τ) dτ )
func (a *Analyzer) SchroederIntegral(ir []float64) ([]float64, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyIR
	}

	return schroederIntegral(ir), nil
}

// DecayTime returns the time in seconds until the Schroeder curve of ir
// falls to levelDB. It returns zero if the curve never gets there.
func (a *Analyzer) DecayTime(ir []float64, levelDB float64) (float64, error) {
	if len(ir) == 0 {
		return 0, ErrEmptyIR
	}

	if !(a.SampleRate > 0) {
		return 0, ErrInvalidSampleRate
	}

	if !(levelDB < 0) {
		return 0, ErrInvalidLevel
	}

	return a.decayTime(schroederIntegral(ir), levelDB), nil
}

// FindImpulseStart returns the index of the first sample within -20 dB of
// the peak amplitude.
func (a *Analyzer) FindImpulseStart(ir []float64) (int, error) {
	if len(ir) == 0 {
		return 0, ErrEmptyIR
	}

	return firstAbove(ir, onsetRatio*floats.Norm(ir, math.Inf(1))), nil
}

func (a *Analyzer) decayTime(schroeder []float64, levelDB float64) float64 {
	for i, v := range schroeder {
		if v <= levelDB {
			return float64(i) / a.SampleRate
		}
	}

	return 0
}

func schroederIntegral(ir []float64) []float64 {
	n := len(ir)
	result := make([]float64, n)

	// Backward cumulative sum of squared IR
	var cumSum float64
	for i := n - 1; i >= 0; i-- {
		cumSum += ir[i] * ir[i]
		result[i] = cumSum
	}

	totalEnergy := result[0]
	if totalEnergy <= 0 {
		return result
	}

	floats.Scale(1/totalEnergy, result)

	for i, ratio := range result {
		if ratio <= 0 {
			result[i] = -200 // floor at -200 dB
		} else {
			result[i] = 10 * math.Log10(ratio)
		}
	}

	return result
}

func lastAbove(x []float64, threshold float64) int {
	for i := len(x) - 1; i >= 0; i-- {
		if math.Abs(x[i]) > threshold {
			return i
		}
	}

	return 0
}

func firstAbove(x []float64, threshold float64) int {
	for i, v := range x {
		if math.Abs(v) >= threshold {
			return i
		}
	}

	return 0
}
