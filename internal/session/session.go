// Package session orchestrates latency measurements: it starts capture
// sessions, consumes the engine's events, recovers one impulse response per
// input and publishes the resulting metrics.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/algo-latency/internal/config"
	"github.com/cwbudde/algo-latency/internal/report"
	"github.com/cwbudde/algo-latency/internal/wavfile"
	"github.com/cwbudde/algo-latency/measure/capture"
	"github.com/cwbudde/algo-latency/measure/deconv"
	"github.com/cwbudde/algo-latency/measure/ir"
	"github.com/cwbudde/algo-latency/measure/sweep"
)

// Publisher receives measurements and status updates.
type Publisher interface {
	Publish(m report.Measurement)
	PublishStatus(s report.Status)
}

// Result is the outcome of one session.
type Result struct {
	Session      uint64
	Started      time.Time
	Measurements []report.Measurement
	Err          error // deconvolution or export failure; other sessions are unaffected
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPublisher forwards every result and status update to p.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithClock overrides the session timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the sweep, the capture engine and the analysis chain.
// The engine must be driven by an audio device (or test harness) calling
// its ProcessBlock, and Run must be running for sessions to complete.
type Orchestrator struct {
	cfg       config.Config
	ess       *sweep.ESS
	engine    *capture.Engine
	deconv    *deconv.Deconvolver
	analyzer  *ir.Analyzer
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	started map[uint64]time.Time
	waiters map[uint64]chan Result
}

// New generates the sweep and prepares the engine and deconvolver. Invalid
// configuration or sweep parameters are reported here, before any session
// can start.
func New(cfg config.Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ess, err := sweep.Generate(cfg.SweepParameters())
	if err != nil {
		return nil, err
	}

	engine, err := capture.NewEngine(ess.ExcitationFloat32(), cfg.CaptureConfig())
	if err != nil {
		return nil, err
	}

	d, err := deconv.New(ess.Analysis(), engine.TotalFrames())
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      cfg,
		ess:      ess,
		engine:   engine,
		deconv:   d,
		analyzer: cfg.Analyzer(),
		logger:   slog.Default(),
		now:      time.Now,
		started:  make(map[uint64]time.Time),
		waiters:  make(map[uint64]chan Result),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger.Info("Sweep generated",
		"length", ess.Len(),
		"seconds", float64(ess.Len())/cfg.SampleRate,
		"start_hz", cfg.StartHz,
		"stop_hz", cfg.EffectiveStopHz(),
		"session_frames", engine.TotalFrames(),
		"fft_size", d.FFTSize(),
	)

	return o, nil
}

// Engine returns the capture engine to be driven by the audio device.
func (o *Orchestrator) Engine() *capture.Engine {
	return o.engine
}

// Sweep returns the generated sweep.
func (o *Orchestrator) Sweep() *sweep.ESS {
	return o.ess
}

// Measure starts a session. It implements report.Starter.
func (o *Orchestrator) Measure() (uint64, error) {
	return o.start(nil)
}

// MeasureOnce starts a session and waits for its result.
func (o *Orchestrator) MeasureOnce(ctx context.Context) (Result, error) {
	done := make(chan Result, 1)

	session, err := o.start(done)
	if err != nil {
		return Result{}, err
	}

	select {
	case res := <-done:
		return res, res.Err
	case <-ctx.Done():
		o.mu.Lock()
		delete(o.waiters, session)
		o.mu.Unlock()

		return Result{}, ctx.Err()
	}
}

func (o *Orchestrator) start(done chan Result) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, err := o.engine.Start()
	if err != nil {
		o.logger.Warn("Measurement rejected", "error", err)
		return 0, err
	}

	o.started[session] = o.now()
	if done != nil {
		o.waiters[session] = done
	}

	o.logger.Info("Measurement started", "session", session)
	o.status(report.Status{Session: session, State: report.StateStarted})

	return session, nil
}

// Run consumes engine events until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-o.engine.Events():
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev capture.Event) {
	switch ev.Kind {
	case capture.EventProgress:
		seconds := float64(ev.Frames) / o.cfg.SampleRate
		o.logger.Debug("Capture progress", "session", ev.Session, "seconds", seconds)
		o.status(report.Status{Session: ev.Session, State: report.StateRecording, Seconds: seconds})
	case capture.EventRejected:
		o.logger.Warn("Start command rejected", "session", ev.Session, "error", ev.Err)
		o.finish(Result{Session: ev.Session, Err: ev.Err})
	case capture.EventDone:
		o.status(report.Status{Session: ev.Session, State: report.StateAnalyzing})
		o.finish(o.process(ev.Recording))
	}
}

func (o *Orchestrator) finish(res Result) {
	o.mu.Lock()
	delete(o.started, res.Session)
	done := o.waiters[res.Session]
	delete(o.waiters, res.Session)
	o.mu.Unlock()

	st := report.Status{Session: res.Session, State: report.StateFinished}

	switch {
	case errors.Is(res.Err, capture.ErrSessionAlreadyRunning):
		st.State = report.StateRejected
		st.Error = res.Err.Error()
	case res.Err != nil:
		st.State = report.StateFailed
		st.Error = res.Err.Error()
	}
	o.status(st)

	if done != nil {
		done <- res
	}
}

// process analyzes every channel of a completed recording. A failure on one
// channel aborts the session's result but never the orchestrator.
func (o *Orchestrator) process(rec capture.Recording) Result {
	o.mu.Lock()
	started, ok := o.started[rec.Session]
	o.mu.Unlock()

	if !ok {
		started = o.now()
	}

	res := Result{Session: rec.Session, Started: started}

	if rec.DroppedBlocks > 0 {
		o.logger.Warn("Input blocks skipped during capture",
			"session", rec.Session, "blocks", rec.DroppedBlocks, "error", capture.ErrDeviceUnavailable)
	}

	var errs []error

	for ch, samples := range rec.Channels {
		m, err := o.measureChannel(rec, started, ch, samples)
		if err != nil {
			o.logger.Error("Analysis failed", "session", rec.Session, "channel", ch, "error", err)
			errs = append(errs, fmt.Errorf("channel %d: %w", ch, err))

			continue
		}

		res.Measurements = append(res.Measurements, m)

		if o.publisher != nil {
			o.publisher.Publish(m)
		}
	}

	res.Err = errors.Join(errs...)

	return res
}

func (o *Orchestrator) measureChannel(rec capture.Recording, started time.Time, ch int, samples []float64) (report.Measurement, error) {
	label := o.cfg.Label(ch)

	response, err := o.deconv.LinearResponse(samples)
	if err != nil {
		return report.Measurement{}, err
	}

	metrics, err := o.analyzer.Analyze(response)
	if err != nil {
		return report.Measurement{}, err
	}

	m := report.Measurement{
		Session:       rec.Session,
		Time:          started,
		Channel:       ch,
		Label:         label,
		Silent:        metrics.Silent,
		GainDB:        metrics.GainDB,
		DroppedBlocks: rec.DroppedBlocks,
	}

	if !metrics.Silent {
		m.LatencyMs = metrics.Latency * 1000
		m.PeakIndex = metrics.PeakIndex
		m.OnsetMs = (float64(metrics.OnsetIndex)/o.cfg.SampleRate - o.cfg.PreDelay) * 1000
		m.DecayMs = metrics.DecayTime * 1000

		o.logger.Info("Measurement",
			"session", rec.Session, "label", label,
			"latency_ms", m.LatencyMs, "gain_db", m.GainDB, "peak_index", m.PeakIndex)
	} else {
		o.logger.Info("Measurement",
			"session", rec.Session, "label", label,
			"latency_ms", "n/a", "gain_db", m.GainDB)
	}

	if o.cfg.OutputDir != "" {
		if err := o.export(&m, samples, response); err != nil {
			return report.Measurement{}, err
		}
	}

	return m, nil
}

func (o *Orchestrator) export(m *report.Measurement, recording, response []float64) error {
	base := fmt.Sprintf("s%04d-%s.wav", m.Session, sanitize(m.Label))
	m.RecordingPath = filepath.Join(o.cfg.OutputDir, "recording-"+base)
	m.IRPath = filepath.Join(o.cfg.OutputDir, "ir-"+base)

	rate := int(o.cfg.SampleRate)
	if err := wavfile.WriteMono(m.RecordingPath, rate, recording); err != nil {
		return err
	}

	return wavfile.WriteMono(m.IRPath, rate, response)
}

func (o *Orchestrator) status(s report.Status) {
	if o.publisher != nil {
		o.publisher.PublishStatus(s)
	}
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, label)
}
