// Package report publishes measurement results over HTTP and websockets.
package report

import (
	"time"
)

// Message types sent to websocket clients.
const (
	TypeSnapshot    = "snapshot"
	TypeMeasurement = "measurement"
	TypeStatus      = "status"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Measurement is the result for one input channel of one session.
type Measurement struct {
	Session   uint64    `json:"session"`
	Time      time.Time `json:"time"`
	Channel   int       `json:"channel"`
	Label     string    `json:"label"`
	Silent    bool      `json:"silent"`
	LatencyMs float64   `json:"latency_ms"`
	GainDB    float64   `json:"gain_db"`
	PeakIndex int       `json:"peak_index"`
	OnsetMs   float64   `json:"onset_ms"`
	DecayMs   float64   `json:"decay_ms"`

	DroppedBlocks uint64 `json:"dropped_blocks"`
	RecordingPath string `json:"recording_path,omitempty"`
	IRPath        string `json:"ir_path,omitempty"`
}

// Session states reported in Status messages.
const (
	StateStarted   = "started"
	StateRecording = "recording"
	StateAnalyzing = "analyzing"
	StateFinished  = "finished"
	StateFailed    = "failed"
	StateRejected  = "rejected" // start command refused; the session never ran
)

// Status reports session progress.
type Status struct {
	Session uint64  `json:"session"`
	State   string  `json:"state"`
	Seconds float64 `json:"seconds,omitempty"`
	Error   string  `json:"error,omitempty"`
}
