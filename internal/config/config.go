// Package config holds the measurement configuration shared by the CLI,
// the capture session and the results server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cwbudde/algo-latency/measure/capture"
	"github.com/cwbudde/algo-latency/measure/ir"
	"github.com/cwbudde/algo-latency/measure/sweep"
)

// ErrInvalidConfig is returned by Validate and FromEnv.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "ESS_"

// Config defines a measurement setup.
type Config struct {
	SampleRate  float64 // device sample rate in Hz
	PreDelay    float64 // seconds of silence before the sweep
	TailSilence float64 // seconds of silence after the sweep

	StartHz float64 // sweep start frequency
	StopHz  float64 // sweep stop frequency; zero selects SampleRate/2
	Length  int     // sweep length in samples
	Gain    float64 // sweep amplitude

	BlockSize int      // device period in frames
	Inputs    int      // recorded input channels
	Labels    []string // per-input labels; missing entries default to "input-N"

	SilenceThresholdDB float64
	OutputDir          string // WAV export directory; empty disables export

	LogLevel  string // debug, info, warn or error
	LogFormat string // text or json
	Addr      string // HTTP listen address for the results server
}

// Option mutates a Config.
type Option func(*Config)

// Default returns the standard 48 kHz loopback measurement setup.
func Default() Config {
	return Config{
		SampleRate:         48000,
		PreDelay:           0.2,
		TailSilence:        capture.DefaultTailSilence,
		StartHz:            20,
		Length:             1 << 18,
		Gain:               sweep.DefaultGain,
		BlockSize:          512,
		Inputs:             1,
		SilenceThresholdDB: ir.DefaultSilenceThresholdDB,
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               "localhost:8090",
	}
}

// New applies zero or more options to the default config.
func New(opts ...Option) Config {
	cfg := Default()
	cfg.Apply(opts...)

	return cfg
}

// Apply applies options in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
}

// WithSampleRate sets the device sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *Config) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithPreDelay sets the silence before the sweep, in seconds.
func WithPreDelay(seconds float64) Option {
	return func(cfg *Config) {
		if seconds >= 0 {
			cfg.PreDelay = seconds
		}
	}
}

// WithTailSilence sets the silence after the sweep, in seconds.
func WithTailSilence(seconds float64) Option {
	return func(cfg *Config) {
		if seconds >= 0 {
			cfg.TailSilence = seconds
		}
	}
}

// WithSweep sets the sweep range and length. A zero stopHz selects the
// Nyquist frequency.
func WithSweep(startHz, stopHz float64, length int) Option {
	return func(cfg *Config) {
		if startHz > 0 {
			cfg.StartHz = startHz
		}
		if stopHz >= 0 {
			cfg.StopHz = stopHz
		}
		if length > 0 {
			cfg.Length = length
		}
	}
}

// WithGain sets the sweep amplitude.
func WithGain(gain float64) Option {
	return func(cfg *Config) {
		if gain > 0 {
			cfg.Gain = gain
		}
	}
}

// WithBlockSize sets the device period.
func WithBlockSize(blockSize int) Option {
	return func(cfg *Config) {
		if blockSize > 0 {
			cfg.BlockSize = blockSize
		}
	}
}

// WithInputs sets the number of recorded inputs and their labels.
func WithInputs(inputs int, labels ...string) Option {
	return func(cfg *Config) {
		if inputs > 0 {
			cfg.Inputs = inputs
		}
		if len(labels) > 0 {
			cfg.Labels = append([]string(nil), labels...)
		}
	}
}

// WithOutputDir enables WAV export into dir.
func WithOutputDir(dir string) Option {
	return func(cfg *Config) {
		cfg.OutputDir = dir
	}
}

// WithLogging sets the log level and format. Empty values are ignored.
func WithLogging(level, format string) Option {
	return func(cfg *Config) {
		if level != "" {
			cfg.LogLevel = level
		}
		if format != "" {
			cfg.LogFormat = format
		}
	}
}

// WithAddr sets the results server listen address.
func WithAddr(addr string) Option {
	return func(cfg *Config) {
		if addr != "" {
			cfg.Addr = addr
		}
	}
}

// EffectiveStopHz returns the sweep stop frequency, resolving zero to Nyquist.
func (c Config) EffectiveStopHz() float64 {
	if c.StopHz == 0 {
		return c.SampleRate / 2
	}

	return c.StopHz
}

// Label returns the label of input channel ch.
func (c Config) Label(ch int) string {
	if ch < len(c.Labels) && c.Labels[ch] != "" {
		return c.Labels[ch]
	}

	return fmt.Sprintf("input-%d", ch+1)
}

// SweepParameters returns the sweep described by the config.
func (c Config) SweepParameters() sweep.Parameters {
	p := sweep.FromHz(c.StartHz, c.EffectiveStopHz(), c.SampleRate, c.Length)
	p.Gain = c.Gain

	return p
}

// CaptureConfig returns the capture engine timing.
func (c Config) CaptureConfig() capture.Config {
	return capture.Config{
		SampleRate:  c.SampleRate,
		PreDelay:    c.PreDelay,
		TailSilence: c.TailSilence,
		Inputs:      c.Inputs,
	}
}

// Analyzer returns an impulse response analyzer for the config.
func (c Config) Analyzer() *ir.Analyzer {
	return &ir.Analyzer{
		SampleRate:         c.SampleRate,
		PreDelay:           c.PreDelay,
		SilenceThresholdDB: c.SilenceThresholdDB,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.CaptureConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if stop := c.EffectiveStopHz(); stop > c.SampleRate/2 {
		return fmt.Errorf("%w: stop frequency %g Hz above Nyquist", ErrInvalidConfig, stop)
	}

	if err := c.SweepParameters().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch {
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConfig, c.BlockSize)
	case len(c.Labels) > c.Inputs:
		return fmt.Errorf("%w: %d labels for %d inputs", ErrInvalidConfig, len(c.Labels), c.Inputs)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// FromEnv loads the given .env files (".env" when none are named), then
// overlays ESS_* variables onto the default config. Missing files are
// ignored; variables already set in the environment take precedence over
// file values.
func FromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}

	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	env := envReader{lookup: lookup}

	env.floatVar("SAMPLE_RATE", &cfg.SampleRate)
	env.floatVar("PRE_DELAY", &cfg.PreDelay)
	env.floatVar("TAIL_SILENCE", &cfg.TailSilence)
	env.floatVar("START_HZ", &cfg.StartHz)
	env.floatVar("STOP_HZ", &cfg.StopHz)
	env.intVar("LENGTH", &cfg.Length)
	env.floatVar("GAIN", &cfg.Gain)
	env.intVar("BLOCK_SIZE", &cfg.BlockSize)
	env.intVar("INPUTS", &cfg.Inputs)
	env.floatVar("SILENCE_THRESHOLD_DB", &cfg.SilenceThresholdDB)
	env.stringVar("OUTPUT_DIR", &cfg.OutputDir)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	env.stringVar("LOG_FORMAT", &cfg.LogFormat)
	env.stringVar("ADDR", &cfg.Addr)

	if v, ok := env.get("LABELS"); ok {
		cfg.Labels = nil
		for _, label := range strings.Split(v, ",") {
			cfg.Labels = append(cfg.Labels, strings.TrimSpace(label))
		}
	}

	if env.err != nil {
		return Config{}, env.err
	}

	return cfg, nil
}

// envReader parses ESS_* variables and keeps the first error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}

	return strings.TrimSpace(v), true
}

func (r *envReader) floatVar(name string, dst *float64) {
	v, ok := r.get(name)
	if !ok {
		return
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(name, v, err)
		return
	}

	*dst = f
}

func (r *envReader) intVar(name string, dst *int) {
	v, ok := r.get(name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return
	}

	*dst = n
}

func (r *envReader) stringVar(name string, dst *string) {
	if v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) fail(name, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s%s=%q: %w", ErrInvalidConfig, EnvPrefix, name, value, err)
	}
}
