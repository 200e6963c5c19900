package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bamsammich/aiocp/internal/config"
	"github.com/bamsammich/aiocp/internal/event"
	"github.com/bamsammich/aiocp/internal/metrics"
	"github.com/bamsammich/aiocp/internal/platform"
	"github.com/bamsammich/aiocp/internal/stats"
)

// ErrSizeMismatch means the destination's final size differs from the source.
var ErrSizeMismatch = errors.New("destination size mismatch")

// Config describes a copy operation.
type Config struct {
	Src        string
	Dst        string
	ChunkSize  int64
	Slots      int
	Backend    platform.Backend
	QueueDepth uint
	Timeout    time.Duration
	Verify     bool

	Events  chan<- event.Event
	Stats   *stats.Collector
	Metrics *metrics.CopyMetrics
	Logger  *slog.Logger

	// Runtime overrides Backend. Run does not close it.
	Runtime platform.Runtime

	// OnStart is called with the source size right before the first read.
	OnStart func(totalSize int64)
}

// Result is the outcome of a copy operation.
type Result struct {
	Stats   stats.Snapshot
	SrcSize int64
	DstSize int64
	Elapsed time.Duration
	Backend platform.Backend
	Verify  *VerifyResult
	Err     error
}

// Run copies cfg.Src to cfg.Dst through a pool of cfg.Slots asynchronous
// slots, blocking until the copy completes, fails, or cfg.Timeout passes.
//
//nolint:gocyclo,revive // setup, wait and teardown read best as one sequence
func Run(ctx context.Context, cfg Config) Result {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.DefaultChunkSize
	}
	if cfg.Slots <= 0 {
		cfg.Slots = config.DefaultSlots
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	src, err := os.Open(cfg.Src)
	if err != nil {
		return Result{Err: fmt.Errorf("open source: %w", err)}
	}
	info, err := src.Stat()
	if err != nil {
		src.Close()
		return Result{Err: fmt.Errorf("stat source: %w", err)}
	}
	if !info.Mode().IsRegular() {
		src.Close()
		return Result{Err: fmt.Errorf("source %s is not a regular file", cfg.Src)}
	}
	totalSize := info.Size()

	dst, err := os.OpenFile(cfg.Dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		src.Close()
		return Result{SrcSize: totalSize, Err: fmt.Errorf("open destination: %w", err)}
	}
	if err := platform.Preallocate(dst, totalSize); err != nil {
		logger.Debug("preallocate failed", "error", err)
	}

	rt := cfg.Runtime
	ownsRuntime := rt == nil
	detached := false
	if ownsRuntime {
		depth := cfg.QueueDepth
		if depth == 0 {
			depth = uint(2 * cfg.Slots) //nolint:gosec // G115: slot count is small and positive
		}
		rt, err = platform.NewRuntime(cfg.Backend, depth)
		if err != nil {
			src.Close()
			dst.Close()
			return Result{SrcSize: totalSize, Err: fmt.Errorf("init %s runtime: %w", cfg.Backend, err)}
		}
		defer func() {
			if !detached {
				rt.Close()
			}
		}()
	}

	cfg.Stats.SetTotal(totalSize)
	sess, err := NewSession(src, dst, totalSize, SessionOptions{
		ChunkSize: cfg.ChunkSize,
		Slots:     cfg.Slots,
		Runtime:   rt,
		Events:    cfg.Events,
		Stats:     cfg.Stats,
		Metrics:   cfg.Metrics,
		Logger:    logger,
	})
	if err != nil {
		src.Close()
		dst.Close()
		return Result{SrcSize: totalSize, Err: err}
	}

	result := Result{SrcSize: totalSize, Backend: rt.Backend()}
	logger.Debug("starting copy",
		"session", sess.ID(),
		"src", cfg.Src,
		"dst", cfg.Dst,
		"size", totalSize,
		"slots", cfg.Slots,
		"chunk", cfg.ChunkSize,
		"backend", rt.Backend().String(),
	)

	if cfg.OnStart != nil {
		cfg.OnStart(totalSize)
	}
	if err := sess.Start(); err != nil {
		sess.Close()
		result.Err = err
		return result
	}

	waitCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	err = sess.Wait(waitCtx)
	result.Elapsed = sess.Elapsed()
	cfg.Metrics.RecordSession(result.Elapsed, err)

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
		// An operation may be stuck in the kernel; tear down once it returns.
		detached = true
		go func() {
			if cerr := sess.Close(); cerr != nil {
				logger.Warn("teardown after timeout", "error", cerr)
			}
			if ownsRuntime {
				rt.Close()
			}
		}()
		result.Stats = cfg.Stats.Snapshot()
		result.Err = err
		return result
	}

	if err == nil {
		dstInfo, statErr := dst.Stat()
		if statErr != nil {
			err = fmt.Errorf("stat destination: %w", statErr)
		} else {
			result.DstSize = dstInfo.Size()
			if result.DstSize != totalSize {
				err = fmt.Errorf("%w: source %d bytes, destination %d bytes",
					ErrSizeMismatch, totalSize, result.DstSize)
			}
		}
	}

	if cerr := sess.Close(); cerr != nil && err == nil {
		err = cerr
	}
	result.Stats = cfg.Stats.Snapshot()
	if err != nil {
		result.Err = err
		return result
	}

	if cfg.Verify {
		vr, verr := VerifyFile(ctx, VerifyConfig{
			Src:    cfg.Src,
			Dst:    cfg.Dst,
			Events: cfg.Events,
		})
		result.Verify = &vr
		switch {
		case verr != nil:
			result.Err = fmt.Errorf("verify: %w", verr)
		case !vr.Match:
			result.Err = fmt.Errorf("%w: source %s, destination %s", ErrVerifyMismatch, vr.SrcHash, vr.DstHash)
		}
	}

	return result
}
