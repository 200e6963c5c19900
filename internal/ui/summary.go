package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bamsammich/aiocp/internal/stats"
)

// Summary is what the CLI knows once a copy has finished.
type Summary struct {
	Stats    stats.Snapshot
	DstSize  int64
	Elapsed  time.Duration
	Slots    int
	Verified bool
}

// StartLine reports the source size before the copy begins. Without a
// terminal it prints the bare byte count so scripts can parse it.
func StartLine(src string, size int64, isTTY bool) string {
	if !isTTY {
		return fmt.Sprintf("%d", size)
	}
	return fmt.Sprintf("copying %s  size %s (%d bytes)", src, FormatBytes(size), size)
}

// CompletionSummary reports elapsed time and destination size of a
// successful copy.
//
// TTY:     done ✓  size 2.1 GiB  avg 641 MB/s  time 3.42s  ops 128/128  slots 10  verified
// non-TTY: elapsed=3.421337 size=2254857830
func CompletionSummary(s Summary, isTTY bool) string {
	if !isTTY {
		line := fmt.Sprintf("elapsed=%f size=%d", s.Elapsed.Seconds(), s.DstSize)
		if s.Verified {
			line += " verified=true"
		}
		return line
	}

	var b strings.Builder
	fmt.Fprintf(&b, "done ✓  size %s  avg %s  time %s  ops %d/%d",
		FormatBytes(s.DstSize),
		FormatRate(s.Stats.Throughput(s.Elapsed)),
		FormatElapsed(s.Elapsed),
		s.Stats.Reads,
		s.Stats.Writes,
	)
	if s.Slots > 0 {
		fmt.Fprintf(&b, "  slots %d", s.Slots)
	}
	if s.Verified {
		b.WriteString("  verified")
	}
	return b.String()
}
