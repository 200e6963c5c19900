package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bamsammich/aiocp/internal/stats"
)

var rateUnits = [...]string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s", "PB/s"}

// FormatRate formats a bytes-per-second rate in powers of 1024 with three
// significant digits.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	exp := 0
	for bytesPerSec >= 1024 && exp < len(rateUnits)-1 {
		bytesPerSec /= 1024
		exp++
	}
	prec := 0
	switch {
	case bytesPerSec < 10:
		prec = 2
	case bytesPerSec < 100:
		prec = 1
	}
	return strconv.FormatFloat(bytesPerSec, 'f', prec, 64) + " " + rateUnits[exp]
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// FormatElapsed formats a copy duration. Short copies keep sub-second
// precision; anything over a minute is rounded to whole seconds.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}

	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}
