package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks copy session statistics using lock-free atomic counters.
// Completion handlers of every slot write to it concurrently.
type Collector struct {
	reads        atomic.Int64
	writes       atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	slotsRetired atomic.Int64
	bytesTotal   atomic.Int64
	startTime    time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotal records the source size (called once before the first read).
func (c *Collector) SetTotal(bytes int64) { c.bytesTotal.Store(bytes) }

// AddRead records one finished read of n bytes.
func (c *Collector) AddRead(n int64) {
	c.reads.Add(1)
	c.bytesRead.Add(n)
}

// AddWrite records one finished write of n bytes.
func (c *Collector) AddWrite(n int64) {
	c.writes.Add(1)
	c.bytesWritten.Add(n)
}

func (c *Collector) AddSlotsRetired(n int64) { c.slotsRetired.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Reads        int64
	Writes       int64
	BytesRead    int64
	BytesWritten int64
	SlotsRetired int64
	BytesTotal   int64
	Elapsed      time.Duration
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Reads:        c.reads.Load(),
		Writes:       c.writes.Load(),
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		SlotsRetired: c.slotsRetired.Load(),
		BytesTotal:   c.bytesTotal.Load(),
		Elapsed:      c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}

// Throughput returns written bytes per second over d, or 0 if d is zero.
func (s Snapshot) Throughput(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(s.BytesWritten) / d.Seconds()
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"reads=%d writes=%d read=%d written=%d total=%d retired=%d",
		s.Reads, s.Writes, s.BytesRead, s.BytesWritten, s.BytesTotal, s.SlotsRetired,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
