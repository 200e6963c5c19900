package engine

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/aiocp/internal/event"
	"github.com/bamsammich/aiocp/internal/platform"
)

// deliveryMode controls when fakeRuntime runs completion callbacks.
type deliveryMode int

const (
	// deliverAsync completes every request on its own goroutine after a
	// random short delay, so slots finish in arbitrary order.
	deliverAsync deliveryMode = iota
	// deliverInline completes the request before Submit returns.
	deliverInline
	// deliverManual queues requests until the test calls deliver.
	deliverManual
)

type pendingOp struct {
	req  platform.Request
	done func(platform.Completion)
}

// fakeRuntime executes requests against in-memory source and destination
// buffers. Reads come from src; writes land in dst.
type fakeRuntime struct {
	mode deliveryMode

	// submitErr, when set, rejects matching submissions.
	submitErr func(platform.Request) error
	// completeErr, when set, fails matching completions.
	completeErr func(platform.Request) error

	mu        sync.Mutex
	src       []byte
	dst       []byte
	submitted []platform.Request
	pending   []pendingOp
	maxQueued int
	closed    bool
	wg        sync.WaitGroup
}

func newFakeRuntime(src []byte, mode deliveryMode) *fakeRuntime {
	return &fakeRuntime{src: src, mode: mode}
}

func (*fakeRuntime) Backend() platform.Backend { return platform.BackendGoroutine }

func (f *fakeRuntime) Submit(req platform.Request, done func(platform.Completion)) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return platform.ErrClosed
	}
	if f.submitErr != nil {
		if err := f.submitErr(req); err != nil {
			f.mu.Unlock()
			return err
		}
	}
	f.submitted = append(f.submitted, platform.Request{Op: req.Op, Offset: req.Offset, Buf: make([]byte, len(req.Buf))})
	if f.mode == deliverManual {
		f.pending = append(f.pending, pendingOp{req: req, done: done})
		f.maxQueued = max(f.maxQueued, len(f.pending))
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	switch f.mode {
	case deliverInline:
		done(f.execute(req))
	default:
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
			done(f.execute(req))
		}()
	}
	return nil
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
	return nil
}

// execute performs req against the in-memory files.
func (f *fakeRuntime) execute(req platform.Request) platform.Completion {
	if f.completeErr != nil {
		if err := f.completeErr(req); err != nil {
			return platform.Completion{Err: err}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch req.Op {
	case platform.OpRead:
		if req.Offset >= int64(len(f.src)) {
			return platform.Completion{}
		}
		return platform.Completion{N: copy(req.Buf, f.src[req.Offset:])}
	case platform.OpWrite:
		end := req.Offset + int64(len(req.Buf))
		if end > int64(len(f.dst)) {
			f.dst = append(f.dst, make([]byte, end-int64(len(f.dst)))...)
		}
		return platform.Completion{N: copy(f.dst[req.Offset:], req.Buf)}
	}
	return platform.Completion{Err: errors.New("bad op")}
}

// deliver completes the pending request at index i (negative counts from
// the end) on the calling goroutine. Returns false if nothing is pending.
func (f *fakeRuntime) deliver(i int) bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	if i < 0 {
		i += len(f.pending)
	}
	op := f.pending[i]
	f.pending = append(f.pending[:i], f.pending[i+1:]...)
	f.mu.Unlock()

	op.done(f.execute(op.req))
	return true
}

// drain delivers pending requests FIFO until none are left.
func (f *fakeRuntime) drain() {
	for f.deliver(0) {
	}
}

func (f *fakeRuntime) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeRuntime) submissions() []platform.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Request(nil), f.submitted...)
}

func (f *fakeRuntime) destination() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte{}, f.dst...)
}

// testData returns n deterministic pseudo-random bytes.
func testData(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 42))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

// newTestSession builds a session over rt with nil file handles; the fake
// runtime ignores them.
func newTestSession(
	t *testing.T,
	rt platform.Runtime,
	total int64,
	chunk int64,
	slots int,
	opts ...func(*SessionOptions),
) (*Session, chan event.Event) {
	t.Helper()
	events := make(chan event.Event, 4*(int(total/chunk)+slots)+16)
	o := SessionOptions{
		ChunkSize: chunk,
		Slots:     slots,
		Runtime:   rt,
		Events:    events,
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := NewSession(nil, nil, total, o)
	require.NoError(t, err)
	return s, events
}

// collect drains every buffered event.
func collect(events chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not complete")
	}
}
