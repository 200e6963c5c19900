package engine

import (
	"time"

	"github.com/bamsammich/aiocp/internal/platform"
)

// Role is the half of the read/write cycle a slot is performing.
type Role int

const (
	RoleReading Role = iota
	RoleWriting
	RoleRetired
)

func (r Role) String() string {
	switch r {
	case RoleReading:
		return "reading"
	case RoleWriting:
		return "writing"
	case RoleRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// op returns the operation a slot in role r has in flight.
func (r Role) op() platform.Op {
	if r == RoleWriting {
		return platform.OpWrite
	}
	return platform.OpRead
}

// Slot is one concurrent read/write cycle over its own stripe of the file.
// All fields except ID are touched only from the slot's own completion
// handler, so they need no locking.
type Slot struct {
	ID int

	buf      []byte
	role     Role
	offset   int64
	length   int64
	cycles   int
	issuedAt time.Time
}

// SlotState is a copy of a slot's bookkeeping, for logging and tests.
type SlotState struct {
	ID     int
	Role   Role
	Offset int64
	Length int64
	Cycles int
}

func (s *Slot) state() SlotState {
	return SlotState{
		ID:     s.ID,
		Role:   s.role,
		Offset: s.offset,
		Length: s.length,
		Cycles: s.cycles,
	}
}
