// Package capture runs a sweep measurement session in a real-time audio
// callback.
//
// An Engine is a BlockProcessor: a platform adapter calls ProcessBlock once
// per device period. Each session plays
//
//	[pre-delay silence][excitation][tail silence]
//
// on the output while recording every input for the same number of frames.
// The engine is a three-state machine (Idle, Recording, Done) driven solely
// by the real-time goroutine. Control crosses threads through a single-slot
// command inbox (Start) and a buffered event channel (Events); neither side
// ever blocks the other.
//
// # Usage
//
//	eng, err := capture.NewEngine(ess.ExcitationFloat32(), capture.Config{
//		SampleRate:  48000,
//		PreDelay:    0.2,
//		TailSilence: capture.DefaultTailSilence,
//		Inputs:      1,
//	})
//	if err != nil {
//		return err
//	}
//
//	// hand eng to the audio adapter, then:
//	if _, err := eng.Start(); err != nil {
//		return err
//	}
//	for ev := range eng.Events() {
//		if ev.Kind == capture.EventDone {
//			analyze(ev.Recording)
//			break
//		}
//	}
//
// # Real-time constraints
//
// ProcessBlock never allocates, locks or blocks. Recording buffers are
// allocated by Start on the caller's goroutine and handed over through the
// inbox. When the event channel is full, progress events are dropped while
// completion and rejection events are retried on the next block, so the
// engine stays Done until the recording has been delivered.
package capture
