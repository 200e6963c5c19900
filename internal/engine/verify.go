package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/bamsammich/aiocp/internal/event"
)

// ErrVerifyMismatch means source and destination checksums differ.
var ErrVerifyMismatch = errors.New("checksum mismatch")

// VerifyConfig controls the post-copy verification pass.
type VerifyConfig struct {
	Src    string
	Dst    string
	Events chan<- event.Event
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	SrcHash string
	DstHash string
	Match   bool
}

// VerifyFile compares BLAKE3 checksums of source and destination, hashing
// both files concurrently. A mismatch is reported through Match, not err.
func VerifyFile(ctx context.Context, cfg VerifyConfig) (VerifyResult, error) {
	event.Emit(cfg.Events, event.Event{Type: event.VerifyStarted, Slot: -1})

	var (
		wg             sync.WaitGroup
		result         VerifyResult
		srcErr, dstErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.SrcHash, srcErr = HashFile(ctx, cfg.Src)
	}()
	go func() {
		defer wg.Done()
		result.DstHash, dstErr = HashFile(ctx, cfg.Dst)
	}()
	wg.Wait()

	if err := errors.Join(srcErr, dstErr); err != nil {
		event.Emit(cfg.Events, event.Event{Type: event.VerifyFailed, Slot: -1, Error: err})
		return result, err
	}

	result.Match = result.SrcHash == result.DstHash
	if result.Match {
		event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Slot: -1})
	} else {
		event.Emit(cfg.Events, event.Event{Type: event.VerifyFailed, Slot: -1, Error: ErrVerifyMismatch})
	}
	return result, nil
}
