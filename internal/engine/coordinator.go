package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/aiocp/internal/event"
	"github.com/bamsammich/aiocp/internal/platform"
)

// issue submits the operation matching the slot's role. The slot's offset,
// length and role must be final before the call: the completion may run
// before Submit returns.
func (s *Session) issue(slot *Slot) {
	op := slot.role.op()
	file := s.src
	if op == platform.OpWrite {
		file = s.dst
	}
	offset := slot.offset
	req := platform.Request{
		Op:     op,
		File:   file,
		Buf:    slot.buf[:slot.length],
		Offset: offset,
	}

	slot.issuedAt = time.Now()
	s.inflight.Add(1)
	err := s.rt.Submit(req, func(c platform.Completion) {
		s.complete(slot, c)
	})
	if err != nil {
		s.inflight.Done()
		s.metrics.RecordOpError(op.String())
		s.fail(&OpError{Op: op, Slot: slot.ID, Offset: offset, Err: fmt.Errorf("issue: %w", err)})
	}
}

// complete is the completion handler for every slot. It runs on a
// runtime goroutine, concurrently with handlers of other slots but never
// with another handler of the same slot.
func (s *Session) complete(slot *Slot, c platform.Completion) {
	defer s.inflight.Done()

	op := slot.role.op()
	if s.failed.Load() {
		return
	}
	if c.Err != nil {
		s.metrics.RecordOpError(op.String())
		s.fail(&OpError{Op: op, Slot: slot.ID, Offset: slot.offset, Err: c.Err})
		return
	}
	n := int64(c.N)
	s.metrics.RecordOp(op.String(), n, time.Since(slot.issuedAt))

	switch slot.role {
	case RoleReading:
		s.stats.AddRead(n)
		if n < slot.length {
			s.fail(&OpError{
				Op:     op,
				Slot:   slot.ID,
				Offset: slot.offset,
				Err:    fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, slot.length),
			})
			return
		}
		event.Emit(s.events, event.Event{Type: event.SlotRead, Slot: slot.ID, Offset: slot.offset, Length: n})

		slot.role = RoleWriting
		s.issue(slot)

	case RoleWriting:
		s.stats.AddWrite(n)
		if n < slot.length {
			s.fail(&OpError{Op: op, Slot: slot.ID, Offset: slot.offset, Err: io.ErrShortWrite})
			return
		}
		event.Emit(s.events, event.Event{Type: event.SlotWritten, Slot: slot.ID, Offset: slot.offset, Length: n})
		slot.cycles++

		// Advance by the nominal stride so stripes never drift, even
		// after a truncated final chunk.
		next := slot.offset + s.stride
		if next >= s.totalSize {
			s.retire(slot)
			return
		}
		slot.offset = next
		slot.length = s.lengthAt(next)
		slot.role = RoleReading
		s.issue(slot)

	case RoleRetired:
		s.fail(fmt.Errorf("slot %d: completion after retirement", slot.ID))
	}
}

// retire permanently stops a slot whose stripe is exhausted. The slot that
// brings the active count to zero completes the session.
func (s *Session) retire(slot *Slot) {
	slot.role = RoleRetired
	s.stats.AddSlotsRetired(1)
	event.Emit(s.events, event.Event{Type: event.SlotRetired, Slot: slot.ID, Offset: slot.offset})

	remaining := s.active.Add(-1)
	s.metrics.SetSlotsActive(int(remaining))
	s.log.Debug("slot retired", "slot", slot.ID, "cycles", slot.cycles, "remaining", remaining)
	if remaining == 0 {
		s.finish(nil)
	}
}
