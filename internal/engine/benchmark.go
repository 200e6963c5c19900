package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/bamsammich/aiocp/internal/config"
	"github.com/bamsammich/aiocp/internal/ui"
)

// BenchmarkResult holds throughput measurements.
type BenchmarkResult struct {
	ReadBytesPerSec  float64
	WriteBytesPerSec float64
	SuggestedSlots   int
}

const (
	benchSize = 64 * 1024 * 1024

	// Slots needed to keep this much device time queued at the measured
	// bottleneck rate.
	benchQueueTime = time.Millisecond

	minSuggestedSlots = 2
	maxSuggestedSlots = 64
)

// RunBenchmark measures positioned read throughput of srcPath and
// positioned write throughput of a temp file in dstDir, both in units of
// chunkSize, and suggests a slot count for that chunk size.
func RunBenchmark(ctx context.Context, srcPath, dstDir string, chunkSize int64) (BenchmarkResult, error) {
	var result BenchmarkResult
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	readSpeed, err := benchRead(ctx, srcPath, buf)
	if err != nil {
		return result, fmt.Errorf("read benchmark: %w", err)
	}
	result.ReadBytesPerSec = readSpeed

	writeSpeed, err := benchWrite(ctx, dstDir, buf)
	if err != nil {
		return result, fmt.Errorf("write benchmark: %w", err)
	}
	result.WriteBytesPerSec = writeSpeed

	result.SuggestedSlots = suggestSlots(readSpeed, writeSpeed, chunkSize)
	return result, nil
}

// benchRead issues sequential ReadAt calls of len(buf) over the first
// benchSize bytes of path.
func benchRead(ctx context.Context, path string, buf []byte) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var off int64
	start := time.Now()
	for off < benchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, readErr := f.ReadAt(buf, off)
		off += int64(n)
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return 0, readErr
		}
	}
	return rate(off, time.Since(start)), nil
}

// benchWrite issues WriteAt calls of len(buf) to a temp file in dstDir
// until benchSize bytes are written, then fsyncs.
func benchWrite(ctx context.Context, dstDir string, buf []byte) (float64, error) {
	f, err := os.CreateTemp(dstDir, ".aiocp-bench-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	var off int64
	start := time.Now()
	for off < benchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, writeErr := f.WriteAt(buf, off)
		off += int64(n)
		if writeErr != nil {
			return 0, writeErr
		}
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return rate(off, time.Since(start)), nil
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		d = time.Microsecond
	}
	return float64(n) / d.Seconds()
}

// suggestSlots sizes the pool so that the bytes in flight cover
// benchQueueTime at the slower of the two rates.
func suggestSlots(readBPS, writeBPS float64, chunkSize int64) int {
	bottleneck := min(readBPS, writeBPS)
	if bottleneck <= 0 || chunkSize <= 0 {
		return config.DefaultSlots
	}
	n := int(math.Ceil(bottleneck * benchQueueTime.Seconds() / float64(chunkSize)))
	return max(minSuggestedSlots, min(n, maxSuggestedSlots))
}

// FormatBenchmark formats a BenchmarkResult for display.
func FormatBenchmark(r BenchmarkResult) string {
	return fmt.Sprintf("benchmark: read %s  write %s  suggested slots %d",
		ui.FormatRate(r.ReadBytesPerSec), ui.FormatRate(r.WriteBytesPerSec), r.SuggestedSlots)
}
