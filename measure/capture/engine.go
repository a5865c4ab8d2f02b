package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Errors reported by the capture engine.
var (
	ErrInvalidConfig         = errors.New("capture: invalid configuration")
	ErrSessionAlreadyRunning = errors.New("capture: session already running")
	// ErrDeviceUnavailable describes a missing input block. The engine
	// tolerates it by skipping the block; it is never returned.
	ErrDeviceUnavailable = errors.New("capture: input block unavailable")
)

// DefaultTailSilence is the silent capture time after the excitation, in seconds.
const DefaultTailSilence = 4.0

const defaultEventBuffer = 16

// BlockProcessor is implemented by real-time processors driven by a
// platform audio adapter. ProcessBlock is called once per device period
// with one output block and one input block per input channel. It must
// not allocate, lock or block.
type BlockProcessor interface {
	ProcessBlock(out []float32, in [][]float32)
}

var _ BlockProcessor = (*Engine)(nil)

// State is the session state of an Engine.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config describes the capture timing.
type Config struct {
	SampleRate  float64 // device sample rate in Hz
	PreDelay    float64 // silence before the excitation, in seconds
	TailSilence float64 // silence after the excitation, in seconds
	Inputs      int     // number of recorded input channels

	// ProgressInterval is the number of frames between progress events.
	// Zero selects one second of audio.
	ProgressInterval int

	// EventBuffer is the capacity of the event channel. Zero selects 16.
	EventBuffer int
}

// PreSilenceFrames returns the pre-delay in frames, truncated.
func (c Config) PreSilenceFrames() int {
	return int(c.PreDelay * c.SampleRate)
}

// TailSilenceFrames returns the tail silence in frames, truncated.
func (c Config) TailSilenceFrames() int {
	return int(c.TailSilence * c.SampleRate)
}

// Validate checks that the configuration can drive a session.
func (c Config) Validate() error {
	switch {
	case !(c.SampleRate > 0):
		return fmt.Errorf("%w: sample rate must be positive, got %g", ErrInvalidConfig, c.SampleRate)
	case c.PreDelay < 0:
		return fmt.Errorf("%w: pre-delay must not be negative, got %g", ErrInvalidConfig, c.PreDelay)
	case c.TailSilence < 0:
		return fmt.Errorf("%w: tail silence must not be negative, got %g", ErrInvalidConfig, c.TailSilence)
	case c.Inputs < 1:
		return fmt.Errorf("%w: at least one input is required, got %d", ErrInvalidConfig, c.Inputs)
	case c.ProgressInterval < 0:
		return fmt.Errorf("%w: progress interval must not be negative", ErrInvalidConfig)
	}

	return nil
}

// command is the ownership-transferring start message. The recording
// buffers are allocated on the caller's side so that the real-time
// context never allocates.
type command struct {
	session uint64
	buffers [][]float64
}

// Engine plays an excitation between a silent pre-delay and a silent tail
// while recording every input channel, one block at a time.
//
// Start, Events, State, Frames and DroppedBlocks may be called from any
// goroutine. ProcessBlock must only be called from the single real-time
// goroutine; it is the only writer of session state.
type Engine struct {
	excitation []float32
	inputs     int
	pre        int
	tail       int
	total      int
	progress   int

	inbox  chan command
	events chan Event

	// startMu serializes Start callers; the real-time side never takes it.
	startMu     sync.Mutex
	lastSession uint64
	// starting is set by Start before posting a command and cleared by the
	// real-time side once the command has been accepted or rejected.
	starting atomic.Bool

	state       atomic.Int32
	frames      atomic.Int64
	dropped     atomic.Uint64

	// Owned by the real-time goroutine.
	session      uint64
	buffers      [][]float64
	frame        int
	startDropped uint64
	pending      Event
	rejection    Event
	rejecting    bool
}

// NewEngine creates an idle engine for the given excitation. The excitation
// is shared, not copied, and must not be modified afterwards.
func NewEngine(excitation []float32, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(excitation) == 0 {
		return nil, fmt.Errorf("%w: empty excitation", ErrInvalidConfig)
	}

	progress := cfg.ProgressInterval
	if progress == 0 {
		progress = max(int(cfg.SampleRate), 1)
	}

	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	pre := cfg.PreSilenceFrames()
	tail := cfg.TailSilenceFrames()

	return &Engine{
		excitation: excitation,
		inputs:     cfg.Inputs,
		pre:        pre,
		tail:       tail,
		total:      pre + len(excitation) + tail,
		progress:   progress,
		inbox:      make(chan command, 1),
		events:     make(chan Event, eventBuffer),
	}, nil
}

// PreSilenceFrames returns the number of silent frames before the excitation.
func (e *Engine) PreSilenceFrames() int { return e.pre }

// TailSilenceFrames returns the number of silent frames after the excitation.
func (e *Engine) TailSilenceFrames() int { return e.tail }

// TotalFrames returns the number of frames recorded per session.
func (e *Engine) TotalFrames() int { return e.total }

// Inputs returns the number of recorded channels.
func (e *Engine) Inputs() int { return e.inputs }

// Events returns the channel carrying completion, rejection and progress
// notifications. It must be drained for sessions to complete. Completion
// and rejection events are retried until delivered; progress events are
// dropped when the channel is full.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the current session state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Frames returns the frame counter as of the last processed block.
func (e *Engine) Frames() int { return int(e.frames.Load()) }

// DroppedBlocks returns the number of blocks skipped because an input block
// was unavailable, across all sessions.
func (e *Engine) DroppedBlocks() uint64 { return e.dropped.Load() }

// Start posts a start command to the real-time context and returns the new
// session's identifier. It fails with ErrSessionAlreadyRunning when a session
// is in progress or a start command is already pending.
//
// There is no way to cancel a session once recording has begun.
func (e *Engine) Start() (uint64, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	// The real-time side stores the new state before clearing starting, so
	// checking starting first leaves no window in which both look idle.
	if e.starting.Load() {
		return 0, fmt.Errorf("%w: start already pending", ErrSessionAlreadyRunning)
	}

	if s := e.State(); s != StateIdle {
		return 0, fmt.Errorf("%w: engine is %s", ErrSessionAlreadyRunning, s)
	}

	cmd := command{
		session: e.lastSession + 1,
		buffers: make([][]float64, e.inputs),
	}
	for ch := range cmd.buffers {
		cmd.buffers[ch] = make([]float64, e.total)
	}

	// No command is in flight and only Start sends, so this never blocks.
	e.starting.Store(true)
	e.inbox <- cmd
	e.lastSession = cmd.session

	return cmd.session, nil
}

// ProcessBlock implements BlockProcessor.
//
// out is overwritten: silence outside the excitation window. A block in
// which any input is missing or shorter than out is skipped entirely; the
// frame counter does not advance and nothing is recorded.
func (e *Engine) ProcessBlock(out []float32, in [][]float32) {
	clear(out)
	e.poll()

	switch e.State() {
	case StateIdle:
		return
	case StateDone:
		e.deliver()
		return
	}

	if !e.inputsAvailable(in, len(out)) {
		e.dropped.Add(1)
		return
	}

	for n := range out {
		for ch, buf := range e.buffers {
			buf[e.frame] = float64(in[ch][n])
		}

		e.frame++

		if e.frame == e.total {
			e.finish()
			return
		}

		if e.frame%e.progress == 0 {
			e.emit(Event{Kind: EventProgress, Session: e.session, Frames: e.frame})
		}

		if x := e.frame - e.pre; x >= 0 && x < len(e.excitation) {
			out[n] = e.excitation[x]
		}
	}

	e.frames.Store(int64(e.frame))
}

func (e *Engine) inputsAvailable(in [][]float32, frames int) bool {
	if len(in) < e.inputs {
		return false
	}

	for ch := range e.inputs {
		if len(in[ch]) < frames {
			return false
		}
	}

	return true
}

// poll consumes a pending start command, if any. A command that arrives
// while a session is running is rejected; the rejection is retried on later
// blocks until the events channel accepts it, and no further command is
// consumed meanwhile.
func (e *Engine) poll() {
	if e.rejecting {
		if !e.send(e.rejection) {
			return
		}

		e.rejecting = false
		e.rejection = Event{}
	}

	select {
	case cmd := <-e.inbox:
		if e.State() != StateIdle {
			e.rejection = Event{Kind: EventRejected, Session: cmd.session, Err: ErrSessionAlreadyRunning}
			e.rejecting = !e.send(e.rejection)
			e.starting.Store(false)

			return
		}

		e.session = cmd.session
		e.buffers = cmd.buffers
		e.frame = 0
		e.startDropped = e.dropped.Load()
		e.frames.Store(0)
		e.state.Store(int32(StateRecording))
		e.starting.Store(false)
	default:
	}
}

func (e *Engine) finish() {
	e.frames.Store(int64(e.frame))
	e.pending = Event{
		Kind:    EventDone,
		Session: e.session,
		Frames:  e.frame,
		Recording: Recording{
			Session:       e.session,
			Channels:      e.buffers,
			Frames:        e.frame,
			DroppedBlocks: e.dropped.Load() - e.startDropped,
		},
	}
	e.state.Store(int32(StateDone))
	e.deliver()
}

// deliver hands the completed recording to the events channel. When the
// channel is full the engine stays Done and retries on the next block.
func (e *Engine) deliver() {
	if e.send(e.pending) {
		e.pending = Event{}
		e.buffers = nil
		e.state.Store(int32(StateIdle))
	}
}

// emit sends a progress event, dropping it when the channel is full.
func (e *Engine) emit(ev Event) {
	e.send(ev)
}

func (e *Engine) send(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		return false
	}
}
