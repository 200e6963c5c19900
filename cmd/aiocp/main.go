package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/aiocp/internal/config"
	"github.com/bamsammich/aiocp/internal/engine"
	"github.com/bamsammich/aiocp/internal/event"
	"github.com/bamsammich/aiocp/internal/metrics"
	"github.com/bamsammich/aiocp/internal/platform"
	"github.com/bamsammich/aiocp/internal/stats"
	"github.com/bamsammich/aiocp/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds every flag of the root command.
type options struct {
	chunkSize   string
	slots       int
	backend     string
	queueDepth  uint
	timeout     time.Duration
	verify      bool
	metricsFile string
	logFile     string
	benchmark   bool
	verbose     bool
	quiet       bool
	showVersion bool
}

func run() int {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "aiocp [flags] <source> <destination>",
		Short: "Copy a file through a pool of asynchronous read/write slots",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "aiocp %s\n", version)
				return nil
			}
			return copyFile(cmd, args[0], args[1], &opts)
		},
	}

	addFlags(rootCmd.Flags(), &opts)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func addFlags(fs *pflag.FlagSet, opts *options) {
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.StringVarP(&opts.chunkSize, "chunk-size", "c", "32K",
		"bytes per slot operation, a multiple of 4096 (e.g. 32K, 1M)")
	fs.IntVarP(&opts.slots, "slots", "n", config.DefaultSlots, "number of concurrent read/write slots")
	fs.StringVar(&opts.backend, "backend", "auto", "async I/O backend: auto, goroutine or iouring")
	fs.UintVar(&opts.queueDepth, "queue-depth", 0, "io_uring ring entries (default: 2 x slots)")
	fs.DurationVar(&opts.timeout, "timeout", time.Hour, "abort the copy if it has not completed after this long")
	fs.BoolVar(&opts.verify, "verify", false, "verify checksums after copy (BLAKE3)")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to FILE after the copy")
	fs.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	fs.BoolVar(&opts.benchmark, "benchmark", false, "measure throughput before copy and auto-tune slots")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
}

//nolint:gocyclo,revive // CLI entry point wires config, logging, metrics and the engine
func copyFile(cmd *cobra.Command, src, dst string, opts *options) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	chunkSize, err := config.ParseSize(opts.chunkSize)
	if err != nil {
		return fmt.Errorf("invalid --chunk-size: %w", err)
	}
	if err := config.ValidateChunkSize(chunkSize); err != nil {
		return fmt.Errorf("invalid --chunk-size: %w", err)
	}
	if opts.slots <= 0 {
		return fmt.Errorf("invalid --slots %d: must be positive", opts.slots)
	}
	backend, err := platform.ParseBackend(opts.backend)
	if err != nil {
		return fmt.Errorf("invalid --backend: %w", err)
	}

	// Configure logging.
	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelDebug
	} else if !opts.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if opts.logFile != "" {
		lf, lfErr := os.Create(opts.logFile)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.benchmark {
		benchResult, benchErr := engine.RunBenchmark(ctx, src, filepath.Dir(dst), chunkSize)
		if benchErr != nil {
			slog.Warn("benchmark failed", "error", benchErr)
		} else {
			fmt.Fprintln(os.Stderr, engine.FormatBenchmark(benchResult))
			if !cmd.Flags().Changed("slots") {
				opts.slots = benchResult.SuggestedSlots
			}
		}
	}

	var (
		reg *prometheus.Registry
		m   *metrics.CopyMetrics
	)
	if opts.metricsFile != "" {
		reg = prometheus.NewRegistry()
		m = metrics.NewCopyMetrics(reg)
	}

	// Events are only consumed when --log is set; Emit drops them otherwise.
	// The channel is never closed: after a timeout a detached teardown may
	// still be emitting.
	var (
		events     chan event.Event
		eventsDone = make(chan struct{})
		eventWg    sync.WaitGroup
	)
	if opts.logFile != "" {
		events = make(chan event.Event, 256)
		eventWg.Add(1)
		go func() {
			defer eventWg.Done()
			logEvents(events, eventsDone)
		}()
	}

	isTTY := ui.IsTTY(os.Stdout.Fd())
	collector := stats.NewCollector()
	result := engine.Run(ctx, engine.Config{
		Src:        src,
		Dst:        dst,
		ChunkSize:  chunkSize,
		Slots:      opts.slots,
		Backend:    backend,
		QueueDepth: opts.queueDepth,
		Timeout:    opts.timeout,
		Verify:     opts.verify,
		Events:     events,
		Stats:      collector,
		Metrics:    m,
		Logger:     logger,
		OnStart: func(size int64) {
			if !opts.quiet {
				fmt.Fprintln(os.Stdout, ui.StartLine(src, size, isTTY))
			}
		},
	})
	stop()
	close(eventsDone)
	eventWg.Wait()

	if reg != nil {
		if err := metrics.WriteTextfile(opts.metricsFile, reg); err != nil {
			slog.Warn("failed to write metrics", "path", opts.metricsFile, "error", err)
		}
	}

	if result.Err != nil {
		slog.Error("copy failed", "src", src, "dst", dst, "error", result.Err)
		if errors.Is(result.Err, engine.ErrVerifyMismatch) {
			return &exitError{code: 1}
		}
		return &exitError{code: 2}
	}

	if !opts.quiet {
		fmt.Fprintln(os.Stdout, ui.CompletionSummary(ui.Summary{
			Stats:    result.Stats,
			DstSize:  result.DstSize,
			Elapsed:  result.Elapsed,
			Slots:    opts.slots,
			Verified: result.Verify != nil && result.Verify.Match,
		}, isTTY))
	}
	slog.Debug("copy finished", "backend", result.Backend.String(), "stats", result.Stats.String())
	return nil
}

// logEvents writes engine events as structured records until done is
// closed, then flushes whatever is still buffered.
func logEvents(events <-chan event.Event, done <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			logEvent(ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					logEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func logEvent(ev event.Event) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.Int("slot", ev.Slot),
		slog.Int64("offset", ev.Offset),
		slog.Int64("length", ev.Length),
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	slog.LogAttrs(context.Background(), slog.LevelDebug, "aiocp.event", attrs...)
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) {
	flags := cmd.Flags()
	if !flags.Changed("chunk-size") && defaults.ChunkSize != nil {
		opts.chunkSize = *defaults.ChunkSize
	}
	if !flags.Changed("slots") && defaults.Slots != nil {
		opts.slots = *defaults.Slots
	}
	if !flags.Changed("backend") && defaults.Backend != nil {
		opts.backend = *defaults.Backend
	}
	if !flags.Changed("timeout") && defaults.Timeout != nil {
		if d, err := time.ParseDuration(*defaults.Timeout); err == nil {
			opts.timeout = d
		}
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !flags.Changed("metrics-file") && defaults.MetricsFile != nil {
		opts.metricsFile = *defaults.MetricsFile
	}
}

// exitError carries a process exit code out of RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
