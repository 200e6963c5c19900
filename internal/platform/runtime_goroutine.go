package platform

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// GoroutineRuntime runs every request on its own goroutine with
// pread/pwrite and calls the completion callback from that goroutine.
type GoroutineRuntime struct {
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewGoroutineRuntime creates a goroutine-per-request runtime.
func NewGoroutineRuntime() *GoroutineRuntime {
	return &GoroutineRuntime{}
}

func (*GoroutineRuntime) Backend() Backend { return BackendGoroutine }

// Submit starts req on a new goroutine.
func (g *GoroutineRuntime) Submit(req Request, done func(Completion)) error {
	if g.closed.Load() {
		return ErrClosed
	}
	if req.File == nil {
		return fmt.Errorf("submit %s: nil file", req.Op)
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		done(execute(req))
	}()
	return nil
}

// Close rejects further submissions and waits for running requests.
func (g *GoroutineRuntime) Close() error {
	g.closed.Store(true)
	g.wg.Wait()
	return nil
}

// execute performs req synchronously, continuing short transfers until the
// buffer is done, EOF is reached (reads), or an error occurs.
//
//nolint:gosec // G115: fd values are small non-negative integers
func execute(req Request) Completion {
	fd := int(req.File.Fd())
	total := 0
	for total < len(req.Buf) {
		var (
			n   int
			err error
		)
		off := req.Offset + int64(total)
		switch req.Op {
		case OpRead:
			n, err = unix.Pread(fd, req.Buf[total:], off)
		case OpWrite:
			n, err = unix.Pwrite(fd, req.Buf[total:], off)
		default:
			return Completion{Err: fmt.Errorf("unknown op %d", req.Op)}
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Completion{N: total, Err: fmt.Errorf("p%s at %d: %w", req.Op, off, err)}
		}
		if n == 0 {
			if req.Op == OpWrite {
				return Completion{N: total, Err: fmt.Errorf("pwrite at %d: %w", off, unix.EIO)}
			}
			break
		}
		total += n
	}
	return Completion{N: total}
}
