package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	SessionStarted Type = iota + 1
	SlotRead
	SlotWritten
	SlotRetired
	SessionComplete
	SessionFailed
	VerifyStarted
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	SessionStarted:  "SessionStarted",
	SlotRead:        "SlotRead",
	SlotWritten:     "SlotWritten",
	SlotRetired:     "SlotRetired",
	SessionComplete: "SessionComplete",
	SessionFailed:   "SessionFailed",
	VerifyStarted:   "VerifyStarted",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single notification from a copy session.
type Event struct {
	Type      Type
	Timestamp time.Time
	Slot      int   // slot ID, -1 for session-level events
	Offset    int64 // file offset of the finished operation
	Length    int64 // bytes transferred, or total size for SessionStarted
	Error     error
}

// Emit sends e on ch without blocking. Events are dropped when ch is full
// or nil; the copy never waits on an observer.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
