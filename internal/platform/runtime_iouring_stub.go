//go:build !linux

package platform

import "fmt"

// IOURingRuntime is unavailable on non-Linux platforms.
type IOURingRuntime struct{}

// NewIOURingRuntime always fails with ErrUnsupported on non-Linux platforms.
func NewIOURingRuntime(_ uint) (*IOURingRuntime, error) {
	return nil, fmt.Errorf("%w: io_uring is linux only", ErrUnsupported)
}

func (*IOURingRuntime) Backend() Backend { return BackendIOURing }

func (*IOURingRuntime) Submit(_ Request, _ func(Completion)) error { return ErrUnsupported }

func (*IOURingRuntime) Close() error { return nil }

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool {
	return false
}
