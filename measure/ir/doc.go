// Package ir derives round-trip latency and level from recovered impulse
// responses.
//
// The impulse response of a loopback measurement is dominated by a single
// peak. Its position, minus the silent pre-delay that preceded the sweep,
// is the latency of the measured path:
//
//   - Peak, GainDB: absolute maximum and its level in dB
//   - PeakIndex: last sample within 1% of the maximum
//   - Latency: PeakIndex/SampleRate - PreDelay
//   - Silent: level below the silence threshold (-60 dB by default)
//
// The Schroeder backward integral of the squared response is available for
// inspecting the decay after the peak.
//
// # Usage
//
//	analyzer := ir.NewAnalyzer(48000, 0.2)
//	metrics, err := analyzer.Analyze(impulseResponse)
//	if !metrics.Silent {
//		fmt.Printf("latency = %.2f ms\n", metrics.Latency*1000)
//	}
package ir
