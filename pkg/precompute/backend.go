package precompute

import (
	"errors"
	"fmt"
)

var (
	// ErrKernelPanic wraps a panic raised by a kernel during Dispatch.
	ErrKernelPanic = errors.New("kernel panicked")
	// ErrBackendClosed is returned by Dispatch after Close.
	ErrBackendClosed = errors.New("backend closed")
)

// Grid is the extent of a dispatch, one kernel invocation per texel.
type Grid struct {
	Width, Height, Depth int
}

// Texels returns the number of kernel invocations.
func (g Grid) Texels() int {
	return g.Width * g.Height * g.Depth
}

// Backend runs a per-texel kernel over a grid. Dispatch returns only after
// every invocation has completed, so consecutive dispatches never overlap.
// Kernels write disjoint texels and may run in any order.
type Backend interface {
	Name() string
	Dispatch(grid Grid, kernel func(x, y, z int)) error
}

// SerialBackend runs kernels in order on the calling goroutine.
type SerialBackend struct{}

func (SerialBackend) Name() string { return "serial" }

func (SerialBackend) Dispatch(grid Grid, kernel func(x, y, z int)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrKernelPanic, r)
		}
	}()
	for z := 0; z < grid.Depth; z++ {
		for y := 0; y < grid.Height; y++ {
			for x := 0; x < grid.Width; x++ {
				kernel(x, y, z)
			}
		}
	}
	return nil
}

// NewBackend returns a backend by name: "serial" or "parallel".
func NewBackend(name string, workers int) (Backend, error) {
	switch name {
	case "", "parallel":
		return NewParallelBackend(workers), nil
	case "serial":
		return SerialBackend{}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
