package platform

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrClosed is returned by Submit after the runtime has been closed.
	ErrClosed = errors.New("runtime closed")
	// ErrUnsupported is returned when the requested backend is unavailable
	// on this kernel or platform.
	ErrUnsupported = errors.New("backend not supported")
)

// Op identifies the kind of asynchronous operation.
type Op int

const (
	OpRead Op = iota + 1
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Backend identifies which asynchronous I/O facility executes requests.
type Backend int

const (
	BackendAuto Backend = iota
	BackendGoroutine // pread/pwrite on a goroutine per request
	BackendIOURing   // Linux io_uring
)

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendGoroutine:
		return "goroutine"
	case BackendIOURing:
		return "io_uring"
	default:
		return "unknown"
	}
}

// ParseBackend maps a flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "goroutine", "thread":
		return BackendGoroutine, nil
	case "iouring", "io_uring", "uring":
		return BackendIOURing, nil
	}
	return BackendAuto, fmt.Errorf("unknown backend %q (use auto, goroutine or iouring)", s)
}

// Request describes one positioned read or write.
type Request struct {
	Op     Op
	File   *os.File
	Buf    []byte
	Offset int64
}

// Completion reports the outcome of a Request. N is the number of bytes
// transferred; a read only reports fewer than len(Buf) bytes at end of file.
type Completion struct {
	N   int
	Err error
}

// Runtime executes requests asynchronously and invokes the completion
// callback on a goroutine it owns. Submit never blocks on the I/O itself.
// The callback may run before Submit returns.
type Runtime interface {
	Submit(req Request, done func(Completion)) error
	Close() error
	Backend() Backend
}

// NewRuntime creates a runtime for the given backend. BackendAuto picks
// io_uring when the kernel supports it and falls back to goroutines.
//
//nolint:ireturn // factory returns interface by design
func NewRuntime(b Backend, queueDepth uint) (Runtime, error) {
	switch b {
	case BackendGoroutine:
		return NewGoroutineRuntime(), nil
	case BackendIOURing:
		return NewIOURingRuntime(queueDepth)
	case BackendAuto:
		if KernelSupportsIOURing() {
			rt, err := NewIOURingRuntime(queueDepth)
			if err == nil {
				return rt, nil
			}
		}
		return NewGoroutineRuntime(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, b)
	}
}
