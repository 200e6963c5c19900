package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BlockSize is the storage block size chunk sizes must be a multiple of.
const BlockSize = 4096

// DefaultChunkSize matches eight 4 KiB blocks per operation.
const DefaultChunkSize = 8 * BlockSize

// DefaultSlots is the default number of concurrent slots.
const DefaultSlots = 10

// ParseSize parses a human-readable size string into bytes.
// Supports: 100, 100B, 100K, 100M, 100G, 100T (case-insensitive).
// Uses powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	numStr := s

	last := strings.ToUpper(s[len(s)-1:])
	switch last {
	case "B":
		numStr = s[:len(s)-1]
	case "K":
		multiplier = 1024
		numStr = s[:len(s)-1]
	case "M":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-1]
	case "G":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	case "T":
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	default:
		// No suffix, try parsing as plain number.
	}

	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	// Try integer first, then float.
	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		if n > math.MaxInt64/multiplier || n < math.MinInt64/multiplier {
			return 0, fmt.Errorf("size out of range: %q", s)
		}
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	v := f * float64(multiplier)
	// float64(MaxInt64) rounds up to 2^63, which does not fit.
	if v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("size out of range: %q", s)
	}

	return int64(v), nil
}

// ValidateChunkSize rejects chunk sizes that are not a positive multiple
// of BlockSize.
func ValidateChunkSize(n int64) error {
	if n <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", n)
	}
	if n%BlockSize != 0 {
		return fmt.Errorf("chunk size %d is not a multiple of %d", n, BlockSize)
	}
	return nil
}
