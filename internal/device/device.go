// Package device runs a capture.BlockProcessor on the default duplex audio
// device through miniaudio.
package device

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"

	"github.com/cwbudde/algo-latency/measure/capture"
)

// ErrInvalidConfig is returned by Open for unusable settings.
var ErrInvalidConfig = errors.New("device: invalid configuration")

// Config describes the requested duplex stream.
type Config struct {
	SampleRate int
	BlockSize  int // period size in frames
	Inputs     int // capture channels
	Outputs    int // playback channels; zero selects one
}

// Device is an opened duplex device.
type Device struct {
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	adapter *Adapter
	logger  *slog.Logger
}

// Open initializes the default duplex device with 32-bit float samples and
// wires its data callback to proc. The device is stopped until Start.
func Open(cfg Config, proc capture.BlockProcessor, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.SampleRate <= 0 || cfg.BlockSize <= 0 || cfg.Inputs <= 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}

	outputs := max(cfg.Outputs, 1)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}

	adapter := NewAdapter(proc, cfg.Inputs, outputs, cfg.BlockSize)

	dc := malgo.DefaultDeviceConfig(malgo.Duplex)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = uint32(cfg.Inputs)
	dc.Playback.Format = malgo.FormatF32
	dc.Playback.Channels = uint32(outputs)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.BlockSize)
	dc.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(mctx.Context, dc, malgo.DeviceCallbacks{
		Data: adapter.Process,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()

		return nil, fmt.Errorf("device: init duplex device: %w", err)
	}

	if got := int(dev.SampleRate()); got != cfg.SampleRate {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()

		return nil, fmt.Errorf("%w: device runs at %d Hz, requested %d Hz", ErrInvalidConfig, got, cfg.SampleRate)
	}

	logger.Info("Audio device opened",
		"sample_rate", cfg.SampleRate,
		"period_frames", cfg.BlockSize,
		"period_ms", 1000*float64(cfg.BlockSize)/float64(cfg.SampleRate),
		"inputs", cfg.Inputs,
		"outputs", outputs,
	)

	return &Device{ctx: mctx, dev: dev, adapter: adapter, logger: logger}, nil
}

// Start starts streaming.
func (d *Device) Start() error {
	if err := d.dev.Start(); err != nil {
		return fmt.Errorf("device: start: %w", err)
	}

	return nil
}

// Stop stops streaming.
func (d *Device) Stop() error {
	if err := d.dev.Stop(); err != nil {
		return fmt.Errorf("device: stop: %w", err)
	}

	return nil
}

// MissingInputs returns the number of callback blocks that arrived without
// capture data.
func (d *Device) MissingInputs() uint64 {
	return d.adapter.MissingInputs()
}

// Close releases the device and its context.
func (d *Device) Close() error {
	d.dev.Uninit()

	if n := d.adapter.MissingInputs(); n > 0 {
		d.logger.Warn("Capture blocks were skipped", "error", capture.ErrDeviceUnavailable, "blocks", n)
	}

	err := d.ctx.Uninit()
	d.ctx.Free()

	if err != nil {
		return fmt.Errorf("device: uninit context: %w", err)
	}

	return nil
}
