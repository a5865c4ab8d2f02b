package config

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-latency/measure/sweep"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 48000.0, cfg.SampleRate)
	assert.Equal(t, 24000.0, cfg.EffectiveStopHz())
	assert.Equal(t, 9600, cfg.CaptureConfig().PreSilenceFrames())
	assert.Equal(t, 192000, cfg.CaptureConfig().TailSilenceFrames())

	p := cfg.SweepParameters()
	assert.InDelta(t, 20*2*math.Pi/48000, p.StartPulsation, 1e-15)
	assert.InDelta(t, math.Pi, p.StopPulsation, 1e-15)
	assert.Equal(t, 1<<18, p.Length)
	assert.Equal(t, sweep.DefaultGain, p.Gain)

	a := cfg.Analyzer()
	assert.Equal(t, 0.2, a.PreDelay)
	assert.Equal(t, -60.0, a.SilenceThresholdDB)
}

func TestOptions(t *testing.T) {
	cfg := New(
		WithSampleRate(44100),
		WithPreDelay(0.1),
		WithTailSilence(1),
		WithSweep(50, 20000, 1<<16),
		WithGain(0.5),
		WithBlockSize(256),
		WithInputs(2, "loopback", "mic"),
		WithOutputDir("/tmp/out"),
		WithLogging("debug", "json"),
		WithAddr(":9000"),
		nil,
	)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 44100.0, cfg.SampleRate)
	assert.Equal(t, 0.1, cfg.PreDelay)
	assert.Equal(t, 1.0, cfg.TailSilence)
	assert.Equal(t, 20000.0, cfg.EffectiveStopHz())
	assert.Equal(t, 1<<16, cfg.Length)
	assert.Equal(t, 0.5, cfg.Gain)
	assert.Equal(t, 256, cfg.BlockSize)
	assert.Equal(t, "mic", cfg.Label(1))
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":9000", cfg.Addr)
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	cfg := New(WithSampleRate(-1), WithPreDelay(-1), WithGain(0), WithBlockSize(0), WithInputs(0), WithLogging("", ""))

	assert.Equal(t, Default(), cfg)
}

func TestLabel(t *testing.T) {
	cfg := New(WithInputs(3, "display", ""))

	assert.Equal(t, "display", cfg.Label(0))
	assert.Equal(t, "input-2", cfg.Label(1))
	assert.Equal(t, "input-3", cfg.Label(2))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative pre-delay", func(c *Config) { c.PreDelay = -0.1 }},
		{"no inputs", func(c *Config) { c.Inputs = 0 }},
		{"stop above nyquist", func(c *Config) { c.StopHz = 30000 }},
		{"stop below start", func(c *Config) { c.StartHz = 1000; c.StopHz = 500 }},
		{"zero length", func(c *Config) { c.Length = 0 }},
		{"clipping gain", func(c *Config) { c.Gain = 1.5 }},
		{"zero block size", func(c *Config) { c.BlockSize = 0 }},
		{"too many labels", func(c *Config) { c.Labels = []string{"a", "b"} }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestFromLookup(t *testing.T) {
	cfg, err := fromLookup(mapLookup(map[string]string{
		"ESS_SAMPLE_RATE": "96000",
		"ESS_PRE_DELAY":   " 0.5 ",
		"ESS_LENGTH":      "65536",
		"ESS_INPUTS":      "2",
		"ESS_LABELS":      "getDisplayMedia, getUserMedia",
		"ESS_LOG_LEVEL":   "debug",
		"ESS_OUTPUT_DIR":  "",
		"OTHER_GAIN":      "0.9",
	}))
	require.NoError(t, err)

	assert.Equal(t, 96000.0, cfg.SampleRate)
	assert.Equal(t, 0.5, cfg.PreDelay)
	assert.Equal(t, 65536, cfg.Length)
	assert.Equal(t, []string{"getDisplayMedia", "getUserMedia"}, cfg.Labels)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "", cfg.OutputDir)
	assert.Equal(t, sweep.DefaultGain, cfg.Gain)
	require.NoError(t, cfg.Validate())
}

func TestFromLookupParseErrors(t *testing.T) {
	for _, env := range []map[string]string{
		{"ESS_SAMPLE_RATE": "fast"},
		{"ESS_LENGTH": "1.5"},
		{"ESS_GAIN": "0.1", "ESS_BLOCK_SIZE": "big"},
	} {
		_, err := fromLookup(mapLookup(env))
		require.ErrorIs(t, err, ErrInvalidConfig, "env %v", env)
	}
}

func TestFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ESS_TAIL_SILENCE=2.5\nESS_ADDR=:7000\n"), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("ESS_TAIL_SILENCE")
		os.Unsetenv("ESS_ADDR")
	})

	cfg, err := FromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.TailSilence)
	assert.Equal(t, ":7000", cfg.Addr)
}

func TestFromEnvMissingFileIgnored(t *testing.T) {
	cfg, err := FromEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, Default().BlockSize, cfg.BlockSize)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(WithLogging("warn", "json")).NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "latency_ms", 12.5)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"latency_ms":12.5`)

	buf.Reset()

	logger, err = Default().NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("measured", "channel", "input-1")
	assert.True(t, strings.Contains(buf.String(), "msg=measured channel=input-1"), buf.String())

	_, err = New(WithLogging("verbose", "")).NewLogger(&buf)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "json", f.String())

	_, err = ParseFormat("yaml")
	require.Error(t, err)
}
