package ir

import (
	"errors"
	"math"
	"testing"
)

// makeExponentialDecay generates a synthetic IR with known RT60.
// h(t) = exp(-6.908 * t / rt60) where 6.908 = ln(10^3) ensures -60 dB at rt60.
func makeExponentialDecay(sampleRate float64, rt60 float64, durationSec float64) []float64 {
	n := int(sampleRate * durationSec)
	ir := make([]float64, n)
	decayRate := 6.9078 / rt60 // ln(10^3) / RT60
	for i := range ir {
		t := float64(i) / sampleRate
		ir[i] = math.Exp(-decayRate * t)
	}
	return ir
}

// makeDelayedImpulse returns silence with a single impulse of amplitude amp.
func makeDelayedImpulse(length, at int, amp float64) []float64 {
	ir := make([]float64, length)
	ir[at] = amp
	return ir
}

func TestAnalyzeLatency(t *testing.T) {
	tests := []struct {
		name        string
		ir          []float64
		preDelay    float64
		wantIndex   int
		wantLatency float64
		wantGainDB  float64
	}{
		{
			name:        "10ms after pre-delay",
			ir:          makeDelayedImpulse(20000, 9600+480, 0.5),
			preDelay:    0.2,
			wantIndex:   10080,
			wantLatency: 0.01,
			wantGainDB:  20 * math.Log10(0.5),
		},
		{
			name:        "no pre-delay",
			ir:          makeDelayedImpulse(1000, 48, 1),
			wantIndex:   48,
			wantLatency: 0.001,
			wantGainDB:  0,
		},
		{
			name:        "negative polarity",
			ir:          makeDelayedImpulse(1000, 96, -0.25),
			wantIndex:   96,
			wantLatency: 0.002,
			wantGainDB:  20 * math.Log10(0.25),
		},
		{
			name:        "arrives within the pre-delay",
			ir:          makeDelayedImpulse(20000, 4800, 1),
			preDelay:    0.2,
			wantIndex:   4800,
			wantLatency: -0.1,
			wantGainDB:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := NewAnalyzer(48000, tt.preDelay)

			m, err := analyzer.Analyze(tt.ir)
			if err != nil {
				t.Fatal(err)
			}

			if m.Silent {
				t.Fatal("unexpectedly silent")
			}
			if m.PeakIndex != tt.wantIndex {
				t.Errorf("PeakIndex = %d, want %d", m.PeakIndex, tt.wantIndex)
			}
			if math.Abs(m.Latency-tt.wantLatency) > 1e-12 {
				t.Errorf("Latency = %.15f, want %.15f", m.Latency, tt.wantLatency)
			}
			if math.Abs(m.GainDB-tt.wantGainDB) > 1e-12 {
				t.Errorf("GainDB = %.6f, want %.6f", m.GainDB, tt.wantGainDB)
			}
			if m.OnsetIndex != tt.wantIndex {
				t.Errorf("OnsetIndex = %d, want %d", m.OnsetIndex, tt.wantIndex)
			}
		})
	}
}

func TestAnalyzeTakesLastNearPeakSample(t *testing.T) {
	// 0.995 is within 1% of the maximum, 0.98 is not.
	ir := []float64{0, 1, 0, 0.995, 0, 0.98, 0}

	m, err := NewAnalyzer(1000, 0).Analyze(ir)
	if err != nil {
		t.Fatal(err)
	}

	if m.PeakIndex != 3 {
		t.Errorf("PeakIndex = %d, want 3", m.PeakIndex)
	}
	if m.Peak != 1 {
		t.Errorf("Peak = %v, want 1", m.Peak)
	}
	if math.Abs(m.Latency-0.003) > 1e-12 {
		t.Errorf("Latency = %v, want 0.003", m.Latency)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	tests := []struct {
		name      string
		ir        []float64
		threshold float64
		silent    bool
	}{
		{"all zeros", make([]float64, 100), DefaultSilenceThresholdDB, true},
		{"-80 dB", makeDelayedImpulse(100, 10, 1e-4), DefaultSilenceThresholdDB, true},
		{"-40 dB", makeDelayedImpulse(100, 10, 1e-2), DefaultSilenceThresholdDB, false},
		{"-80 dB with lower threshold", makeDelayedImpulse(100, 10, 1e-4), -90, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &Analyzer{SampleRate: 48000, SilenceThresholdDB: tt.threshold}

			m, err := analyzer.Analyze(tt.ir)
			if err != nil {
				t.Fatal(err)
			}

			if m.Silent != tt.silent {
				t.Fatalf("Silent = %v, want %v (GainDB %.1f)", m.Silent, tt.silent, m.GainDB)
			}

			if m.Silent && m.Latency != 0 {
				t.Errorf("Latency = %v for silent response", m.Latency)
			}

			latency, ok, err := analyzer.Latency(tt.ir)
			if err != nil {
				t.Fatal(err)
			}
			if ok == tt.silent || latency != m.Latency {
				t.Errorf("Latency() = %v, %v; Analyze = %v, silent %v", latency, ok, m.Latency, m.Silent)
			}
		})
	}
}

func TestAnalyzeValidation(t *testing.T) {
	analyzer := NewAnalyzer(48000, 0.2)

	_, err := analyzer.Analyze(nil)
	if !errors.Is(err, ErrEmptyIR) {
		t.Errorf("Analyze(nil) = %v, want ErrEmptyIR", err)
	}

	for _, sr := range []float64{0, -1, math.NaN()} {
		_, err = NewAnalyzer(sr, 0).Analyze([]float64{1})
		if !errors.Is(err, ErrInvalidSampleRate) {
			t.Errorf("Analyze(sr=%v) = %v, want ErrInvalidSampleRate", sr, err)
		}
	}

	if _, _, err := analyzer.Latency(nil); !errors.Is(err, ErrEmptyIR) {
		t.Errorf("Latency(nil) = %v, want ErrEmptyIR", err)
	}
}

func TestSchroederIntegral(t *testing.T) {
	sampleRate := 48000.0
	ir := makeExponentialDecay(sampleRate, 1.0, 3.0)

	analyzer := NewAnalyzer(sampleRate, 0)
	schroeder, err := analyzer.SchroederIntegral(ir)
	if err != nil {
		t.Fatal(err)
	}

	if len(schroeder) != len(ir) {
		t.Fatalf("Schroeder length = %d, want %d", len(schroeder), len(ir))
	}

	// First sample should be 0 dB (all energy ahead)
	if math.Abs(schroeder[0]) > 0.01 {
		t.Errorf("Schroeder[0] = %.3f dB, want ~0 dB", schroeder[0])
	}

	for i := 1; i < len(schroeder); i++ {
		if schroeder[i] > schroeder[i-1]+0.001 {
			t.Errorf("Schroeder not monotonically decreasing at sample %d: %.3f > %.3f",
				i, schroeder[i], schroeder[i-1])
			break
		}
	}

	// An exponential decay is linear in dB: -60 dB per RT60.
	idx := int(0.5 * sampleRate)
	if math.Abs(schroeder[idx]+30) > 0.1 {
		t.Errorf("Schroeder[0.5 s] = %.2f dB, want -30 dB", schroeder[idx])
	}
}

func TestSchroederIntegralEdgeCases(t *testing.T) {
	analyzer := NewAnalyzer(48000, 0)

	if _, err := analyzer.SchroederIntegral(nil); !errors.Is(err, ErrEmptyIR) {
		t.Errorf("SchroederIntegral(nil) = %v, want ErrEmptyIR", err)
	}

	s, err := analyzer.SchroederIntegral([]float64{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0, -200, -200}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("s[%d] = %v, want %v", i, s[i], want[i])
		}
	}

	// Zero energy leaves the raw (zero) sums.
	s, err = analyzer.SchroederIntegral(make([]float64, 4))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range s {
		if v != 0 {
			t.Errorf("s[%d] = %v, want 0", i, v)
		}
	}
}

func TestDecayTime(t *testing.T) {
	sampleRate := 48000.0
	analyzer := NewAnalyzer(sampleRate, 0)

	tests := []struct {
		rt60    float64
		levelDB float64
	}{
		{1.0, -20},
		{0.5, -20},
		{1.0, -40},
	}

	for _, tt := range tests {
		ir := makeExponentialDecay(sampleRate, tt.rt60, 4*tt.rt60)

		got, err := analyzer.DecayTime(ir, tt.levelDB)
		if err != nil {
			t.Fatal(err)
		}

		want := tt.rt60 * tt.levelDB / -60
		if math.Abs(got-want) > 0.01*want {
			t.Errorf("rt60 %.1f, %v dB: DecayTime = %.4f, want %.4f", tt.rt60, tt.levelDB, got, want)
		}
	}

	if _, err := analyzer.DecayTime([]float64{1}, 0); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("DecayTime(0 dB) = %v, want ErrInvalidLevel", err)
	}
	if _, err := analyzer.DecayTime(nil, -20); !errors.Is(err, ErrEmptyIR) {
		t.Errorf("DecayTime(nil) = %v, want ErrEmptyIR", err)
	}

	got, err := analyzer.DecayTime([]float64{1, 1, 1, 1}, -20)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("DecayTime without decay = %v, want 0", got)
	}
}

func TestAnalyzeDecayTimeFromPeak(t *testing.T) {
	sampleRate := 48000.0
	decay := makeExponentialDecay(sampleRate, 0.3, 1.2)

	// Pre-delay of silence followed by the decay.
	ir := append(make([]float64, 2400), decay...)

	m, err := NewAnalyzer(sampleRate, 0.05).Analyze(ir)
	if err != nil {
		t.Fatal(err)
	}

	// The first 21 decay samples stay within 1% of the maximum; the last of
	// them is the peak.
	if m.PeakIndex != 2420 {
		t.Fatalf("PeakIndex = %d, want 2420", m.PeakIndex)
	}
	if m.OnsetIndex != 2400 {
		t.Errorf("OnsetIndex = %d, want 2400", m.OnsetIndex)
	}
	if want := 20 / sampleRate; math.Abs(m.Latency-want) > 1e-12 {
		t.Errorf("Latency = %v, want %v", m.Latency, want)
	}
	if math.Abs(m.DecayTime-0.1) > 0.001 {
		t.Errorf("DecayTime = %.4f, want 0.1", m.DecayTime)
	}
}

func TestFindImpulseStart(t *testing.T) {
	sampleRate := 48000.0

	t.Run("immediate_start", func(t *testing.T) {
		ir := make([]float64, 1000)
		ir[0] = 1.0

		idx, err := NewAnalyzer(sampleRate, 0).FindImpulseStart(ir)
		if err != nil {
			t.Fatal(err)
		}
		if idx != 0 {
			t.Errorf("FindImpulseStart = %d, want 0", idx)
		}
	})

	t.Run("noise_floor", func(t *testing.T) {
		ir := make([]float64, 10000)
		for i := 0; i < 5000; i++ {
			ir[i] = 0.001 * float64(i%2*2-1)
		}
		ir[5000] = 1.0
		ir[5001] = 0.5

		idx, err := NewAnalyzer(sampleRate, 0).FindImpulseStart(ir)
		if err != nil {
			t.Fatal(err)
		}
		// Noise is 0.001, peak is 1.0, threshold is 0.1 → should find sample 5000
		if idx != 5000 {
			t.Errorf("FindImpulseStart = %d, want 5000", idx)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewAnalyzer(48000, 0).FindImpulseStart(nil)
		if !errors.Is(err, ErrEmptyIR) {
			t.Errorf("FindImpulseStart(nil) = %v, want ErrEmptyIR", err)
		}
	})
}

func TestNewAnalyzer(t *testing.T) {
	a := NewAnalyzer(44100, 0.2)
	if a.SampleRate != 44100 || a.PreDelay != 0.2 {
		t.Errorf("NewAnalyzer = %+v", a)
	}
	if a.SilenceThresholdDB != DefaultSilenceThresholdDB {
		t.Errorf("SilenceThresholdDB = %v, want %v", a.SilenceThresholdDB, DefaultSilenceThresholdDB)
	}
}
