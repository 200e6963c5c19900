package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/aiocp/internal/event"
	"github.com/bamsammich/aiocp/internal/metrics"
	"github.com/bamsammich/aiocp/internal/platform"
	"github.com/bamsammich/aiocp/internal/stats"
)

var (
	// ErrAlreadyStarted is returned by a second call to Session.Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrShortRead means the source returned fewer bytes than its size
	// promised, i.e. it shrank during the copy.
	ErrShortRead = errors.New("short read")
	// ErrTimeout means the session did not complete within the watchdog.
	ErrTimeout = errors.New("copy timed out")
)

// OpError describes a failed read or write of one slot.
type OpError struct {
	Op     platform.Op
	Slot   int
	Offset int64
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("slot %d: %s at offset %d: %v", e.Slot, e.Op, e.Offset, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// SessionOptions configures a Session.
type SessionOptions struct {
	ChunkSize int64
	Slots     int
	Runtime   platform.Runtime
	Events    chan<- event.Event
	Stats     *stats.Collector
	Metrics   *metrics.CopyMetrics
	Logger    *slog.Logger

	// Alloc allocates one slot buffer. Defaults to make([]byte, size).
	Alloc func(size int) ([]byte, error)
}

// Session is the state shared by all slots of one source-to-destination
// copy. The only field mutated from several completion handlers is active.
type Session struct {
	id        string
	src, dst  *os.File
	totalSize int64
	chunkSize int64
	stride    int64 // slots * chunkSize
	slots     []*Slot

	rt      platform.Runtime
	events  chan<- event.Event
	stats   *stats.Collector
	metrics *metrics.CopyMetrics
	log     *slog.Logger

	active     atomic.Int32
	failed     atomic.Bool
	started    atomic.Bool
	startedAt  time.Time
	finishedAt time.Time

	once     sync.Once
	done     chan struct{}
	err      error
	inflight sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewSession provisions the slot pool for copying totalSize bytes from src
// to dst. Slot i starts at offset i*ChunkSize. Either every buffer is
// allocated or an error is returned and nothing is issued. The session
// takes ownership of src and dst and closes them in Close.
func NewSession(src, dst *os.File, totalSize int64, opts SessionOptions) (*Session, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Slots <= 0 {
		return nil, fmt.Errorf("slot count must be positive, got %d", opts.Slots)
	}
	if totalSize < 0 {
		return nil, fmt.Errorf("negative source size %d", totalSize)
	}
	if opts.Runtime == nil {
		return nil, errors.New("no async runtime")
	}
	alloc := opts.Alloc
	if alloc == nil {
		alloc = func(size int) ([]byte, error) { return make([]byte, size), nil }
	}
	st := opts.Stats
	if st == nil {
		st = stats.NewCollector()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		src:       src,
		dst:       dst,
		totalSize: totalSize,
		chunkSize: opts.ChunkSize,
		stride:    int64(opts.Slots) * opts.ChunkSize,
		slots:     make([]*Slot, opts.Slots),
		rt:        opts.Runtime,
		events:    opts.Events,
		stats:     st,
		metrics:   opts.Metrics,
		log:       logger.With("session", id),
		done:      make(chan struct{}),
	}

	for i := range s.slots {
		buf, err := alloc(int(opts.ChunkSize))
		if err != nil {
			return nil, fmt.Errorf("allocate slot %d buffer: %w", i, err)
		}
		if int64(len(buf)) < opts.ChunkSize {
			return nil, fmt.Errorf("allocate slot %d buffer: got %d bytes, want %d", i, len(buf), opts.ChunkSize)
		}
		offset := int64(i) * opts.ChunkSize
		s.slots[i] = &Slot{
			ID:     i,
			buf:    buf,
			role:   RoleReading,
			offset: offset,
			length: s.lengthAt(offset),
		}
	}
	s.active.Store(int32(opts.Slots)) //nolint:gosec // G115: slot count is small

	return s, nil
}

// ID returns the session's unique identifier, used in logs.
func (s *Session) ID() string { return s.id }

// TotalSize returns the source size captured before the copy started.
func (s *Session) TotalSize() int64 { return s.totalSize }

// lengthAt returns how many bytes an operation at offset transfers.
func (s *Session) lengthAt(offset int64) int64 {
	if offset >= s.totalSize {
		return 0
	}
	return min(s.chunkSize, s.totalSize-offset)
}

// Start issues the first read of every slot. Slots whose stripe starts at
// or past the end of the source retire immediately; for an empty source
// the session completes before Start returns. Issuance failures surface
// through Wait.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.startedAt = time.Now()
	s.metrics.SetSlotsActive(len(s.slots))
	s.log.Debug("session started",
		"size", s.totalSize,
		"slots", len(s.slots),
		"chunk", s.chunkSize,
		"backend", s.rt.Backend().String(),
	)
	event.Emit(s.events, event.Event{Type: event.SessionStarted, Slot: -1, Length: s.totalSize})

	for _, slot := range s.slots {
		if s.failed.Load() {
			break
		}
		if slot.length == 0 {
			s.retire(slot)
			continue
		}
		s.issue(slot)
	}
	return nil
}

// Done is closed once the session completed or failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the fatal error of the session. Only valid after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session completes or ctx ends. When ctx ends
// first the session is failed with ErrTimeout (deadline) or ctx.Err(), so
// no further operations are issued.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
	}

	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrTimeout
	}
	s.fail(err)
	<-s.done
	return s.err
}

// Elapsed returns the time between the first issued read and completion.
// Only valid after Done is closed.
func (s *Session) Elapsed() time.Duration {
	select {
	case <-s.done:
		return s.finishedAt.Sub(s.startedAt)
	default:
		return 0
	}
}

// Slots returns the state of every slot. It must only be called after
// Close, when no completion handler can run.
func (s *Session) Slots() []SlotState {
	out := make([]SlotState, len(s.slots))
	for i, slot := range s.slots {
		out[i] = slot.state()
	}
	return out
}

// Close waits until no operation is in flight, releases every slot buffer
// and closes both file handles. It is the only place buffers are freed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.inflight.Wait()
		for _, slot := range s.slots {
			slot.buf = nil
		}
		var errs []error
		if s.src != nil {
			if err := s.src.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source: %w", err))
			}
		}
		if s.dst != nil {
			if err := s.dst.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close destination: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// finish closes done exactly once, recording err as the session outcome.
func (s *Session) finish(err error) {
	s.once.Do(func() {
		s.finishedAt = time.Now()
		s.err = err
		if err != nil {
			s.log.Error("session failed", "error", err)
			event.Emit(s.events, event.Event{Type: event.SessionFailed, Slot: -1, Error: err})
		} else {
			s.log.Debug("session complete", "elapsed", s.finishedAt.Sub(s.startedAt))
			event.Emit(s.events, event.Event{Type: event.SessionComplete, Slot: -1, Length: s.totalSize})
		}
		close(s.done)
	})
}

// fail stops further issuance and completes the session with err. Only
// the first failure is kept.
func (s *Session) fail(err error) {
	s.failed.Store(true)
	s.finish(err)
}
