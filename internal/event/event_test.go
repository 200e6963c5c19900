package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "SessionStarted", typ: SessionStarted},
		{want: "SlotRead", typ: SlotRead},
		{want: "SlotWritten", typ: SlotWritten},
		{want: "SlotRetired", typ: SlotRetired},
		{want: "SessionComplete", typ: SessionComplete},
		{want: "SessionFailed", typ: SessionFailed},
		{want: "VerifyStarted", typ: VerifyStarted},
		{want: "VerifyOK", typ: VerifyOK},
		{want: "VerifyFailed", typ: VerifyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
	assert.Equal(t, "Unknown", Type(-1).String())
}

func TestEmitStampsTimestamp(t *testing.T) {
	ch := make(chan Event, 1)
	before := time.Now()
	Emit(ch, Event{Type: SlotRead, Slot: 3, Offset: 4096, Length: 4096})

	ev := <-ch
	assert.Equal(t, SlotRead, ev.Type)
	assert.Equal(t, 3, ev.Slot)
	assert.Equal(t, int64(4096), ev.Offset)
	assert.False(t, ev.Timestamp.Before(before))
}

func TestEmitDoesNotBlock(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: SlotRead})
	Emit(ch, Event{Type: SlotWritten}) // dropped, channel full

	require.Len(t, ch, 1)
	assert.Equal(t, SlotRead, (<-ch).Type)
}

func TestEmitNilChannel(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, Event{Type: SessionFailed, Error: errors.New("boom")})
	})
}
