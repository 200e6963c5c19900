//go:build linux

package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"
)

// IOURingRuntime submits requests to an io_uring instance. Each submission
// gets a reaper goroutine that waits for its CQE and runs the callback.
type IOURingRuntime struct {
	iour   *iouring.IOURing
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewIOURingRuntime creates a ring with queueDepth entries. Returns
// ErrUnsupported if the kernel is older than 5.6.
func NewIOURingRuntime(queueDepth uint) (*IOURingRuntime, error) {
	if !kernelSupportsIOURing() {
		return nil, fmt.Errorf("%w: io_uring needs linux >= 5.6", ErrUnsupported)
	}
	if queueDepth == 0 {
		queueDepth = 64
	}
	iour, err := iouring.New(queueDepth)
	if err != nil {
		return nil, fmt.Errorf("io_uring setup: %w", err)
	}
	return &IOURingRuntime{iour: iour}, nil
}

func (*IOURingRuntime) Backend() Backend { return BackendIOURing }

// Submit queues req on the ring.
func (r *IOURingRuntime) Submit(req Request, done func(Completion)) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if req.File == nil {
		return fmt.Errorf("submit %s: nil file", req.Op)
	}
	r.wg.Add(1)
	if len(req.Buf) == 0 {
		go func() {
			defer r.wg.Done()
			done(Completion{})
		}()
		return nil
	}
	ch, err := r.submit(req, 0)
	if err != nil {
		r.wg.Done()
		return err
	}
	go func() {
		defer r.wg.Done()
		done(r.reap(req, ch))
	}()
	return nil
}

// submit queues the part of req starting at byte done.
//
//nolint:gosec // G115: fd values are small non-negative integers, offsets are non-negative
func (r *IOURingRuntime) submit(req Request, done int) (chan iouring.Result, error) {
	fd := int(req.File.Fd())
	off := uint64(req.Offset) + uint64(done)
	buf := req.Buf[done:]

	var prep iouring.PrepRequest
	switch req.Op {
	case OpRead:
		prep = iouring.Pread(fd, buf, off)
	case OpWrite:
		prep = iouring.Pwrite(fd, buf, off)
	default:
		return nil, fmt.Errorf("unknown op %d", req.Op)
	}

	ch := make(chan iouring.Result, 1)
	if _, err := r.iour.SubmitRequest(prep, ch); err != nil {
		return nil, fmt.Errorf("io_uring submit %s: %w", req.Op, err)
	}
	return ch, nil
}

// reap waits for CQEs of req, resubmitting the remainder after short
// transfers, and returns the aggregated completion.
func (r *IOURingRuntime) reap(req Request, ch chan iouring.Result) Completion {
	total := 0
	for {
		res := <-ch
		n, err := res.ReturnInt()
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			n, err = 0, nil
		} else if err != nil {
			return Completion{N: total, Err: fmt.Errorf("io_uring %s at %d: %w", req.Op, req.Offset+int64(total), err)}
		} else if n == 0 {
			if req.Op == OpRead {
				return Completion{N: total}
			}
			return Completion{N: total, Err: fmt.Errorf("io_uring write at %d: %w", req.Offset+int64(total), unix.EIO)}
		}

		total += n
		if total >= len(req.Buf) {
			return Completion{N: total}
		}
		if ch, err = r.submit(req, total); err != nil {
			return Completion{N: total, Err: err}
		}
	}
}

// Close rejects further submissions, waits for reapers and releases the ring.
func (r *IOURingRuntime) Close() error {
	if r == nil || r.iour == nil {
		return nil
	}
	if r.closed.Swap(true) {
		return nil
	}
	r.wg.Wait()
	return r.iour.Close()
}

// kernelSupportsIOURing checks if the kernel version is >= 5.6.
func kernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}

	release := unix.ByteSliceToString(uname.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx > 0 {
		minorStr = minorStr[:idx]
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return false
	}

	return major > 5 || (major == 5 && minor >= 6)
}

// KernelSupportsIOURing reports whether io_uring can be used on this kernel.
func KernelSupportsIOURing() bool {
	return kernelSupportsIOURing()
}
