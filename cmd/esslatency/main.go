// Command esslatency measures the round-trip latency of an audio interface
// with an exponential sine sweep.
//
// The sweep is played on the default output while every input is recorded.
// Each recording is deconvolved into an impulse response whose peak, minus
// the silent pre-delay, gives the latency of that input path.
//
// Usage:
//
//	esslatency [flags]
//
// Examples:
//
//	esslatency
//	esslatency -inputs 2 -labels loopback,mic -out ./measurements
//	esslatency -serve -addr :8090
//
// Settings are read from ESS_* environment variables and an optional .env
// file; flags take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/algo-latency/internal/config"
	"github.com/cwbudde/algo-latency/internal/device"
	"github.com/cwbudde/algo-latency/internal/report"
	"github.com/cwbudde/algo-latency/internal/session"
)

type options struct {
	cfg   config.Config
	serve bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	base, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	opts, err := parseFlags(args, base, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		fmt.Fprintln(stderr, err)

		return 2
	}

	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := measure(ctx, opts, logger, stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Measurement failed", "error", err)
		return 1
	}

	return 0
}

func parseFlags(args []string, cfg config.Config, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("esslatency", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := options{cfg: cfg}
	labels := strings.Join(cfg.Labels, ",")

	fs.BoolVar(&opts.serve, "serve", false, "keep the device open and serve /results, /measure and /ws")
	fs.Float64Var(&opts.cfg.SampleRate, "rate", cfg.SampleRate, "sample rate in Hz")
	fs.Float64Var(&opts.cfg.PreDelay, "predelay", cfg.PreDelay, "silence before the sweep in seconds")
	fs.Float64Var(&opts.cfg.TailSilence, "tail", cfg.TailSilence, "silence after the sweep in seconds")
	fs.Float64Var(&opts.cfg.StartHz, "start", cfg.StartHz, "sweep start frequency in Hz")
	fs.Float64Var(&opts.cfg.StopHz, "stop", cfg.StopHz, "sweep stop frequency in Hz (0 = Nyquist)")
	fs.IntVar(&opts.cfg.Length, "length", cfg.Length, "sweep length in samples")
	fs.Float64Var(&opts.cfg.Gain, "gain", cfg.Gain, "sweep amplitude (0, 1]")
	fs.IntVar(&opts.cfg.BlockSize, "block", cfg.BlockSize, "device period in frames")
	fs.IntVar(&opts.cfg.Inputs, "inputs", cfg.Inputs, "number of recorded inputs")
	fs.StringVar(&labels, "labels", labels, "comma-separated input labels")
	fs.Float64Var(&opts.cfg.SilenceThresholdDB, "silence", cfg.SilenceThresholdDB, "silence threshold in dB")
	fs.StringVar(&opts.cfg.OutputDir, "out", cfg.OutputDir, "directory for WAV export (empty = none)")
	fs.StringVar(&opts.cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&opts.cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text, json")
	fs.StringVar(&opts.cfg.Addr, "addr", cfg.Addr, "listen address for -serve")

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: esslatency [flags]\n\n")
		fmt.Fprintf(output, "Measures audio round-trip latency with an exponential sine sweep.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts.cfg.Labels = nil
	if labels != "" {
		for _, l := range strings.Split(labels, ",") {
			opts.cfg.Labels = append(opts.cfg.Labels, strings.TrimSpace(l))
		}
	}

	return opts, nil
}

func measure(ctx context.Context, opts options, logger *slog.Logger, stdout io.Writer) error {
	cfg := opts.cfg

	var hub *report.Hub

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if opts.serve {
		hub = report.NewHub(logger, report.DefaultHistory)
		sessionOpts = append(sessionOpts, session.WithPublisher(hub))
	}

	orch, err := session.New(cfg, sessionOpts...)
	if err != nil {
		return err
	}

	dev, err := device.Open(device.Config{
		SampleRate: int(cfg.SampleRate),
		BlockSize:  cfg.BlockSize,
		Inputs:     cfg.Inputs,
	}, orch.Engine(), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := dev.Close(); err != nil {
			logger.Error("Closing audio device failed", "error", err)
		}
	}()

	if err := dev.Start(); err != nil {
		return err
	}

	go func() { _ = orch.Run(ctx) }()

	if opts.serve {
		return serve(ctx, cfg.Addr, hub, orch, logger)
	}

	sessionSeconds := float64(orch.Engine().TotalFrames()) / cfg.SampleRate
	timeout := time.Duration(sessionSeconds*float64(time.Second)) + 10*time.Second

	onceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := orch.MeasureOnce(onceCtx)
	printResult(stdout, res)

	return err
}

func serve(ctx context.Context, addr string, hub *report.Hub, orch *session.Orchestrator, logger *slog.Logger) error {
	srv := report.NewServer(addr, hub, orch, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func printResult(w io.Writer, res session.Result) {
	if len(res.Measurements) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Input\tLatency\tGain\tPeak\n")

	for _, m := range res.Measurements {
		if m.Silent {
			fmt.Fprintf(tw, "%s\tn/a\t%.1f dB\t-\n", m.Label, m.GainDB)
			continue
		}

		fmt.Fprintf(tw, "%s\t%.2f ms\t%.1f dB\t%d\n", m.Label, m.LatencyMs, m.GainDB, m.PeakIndex)
	}

	tw.Flush()
}
