package precompute

import (
	"fmt"
	"runtime"
	"sync"
)

// rowTask is one row of a dispatch grid.
type rowTask struct {
	y, z   int
	width  int
	kernel func(x, y, z int)
	batch  *batch
}

// batch tracks the rows of one Dispatch call.
type batch struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	panicked any
}

func (b *batch) fail(v any) {
	b.mu.Lock()
	if b.panicked == nil {
		b.panicked = v
	}
	b.mu.Unlock()
}

// ParallelBackend is a persistent worker pool. Each dispatch is split into
// rows that workers pull from a shared queue.
type ParallelBackend struct {
	tasks      chan rowTask
	numWorkers int
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewParallelBackend starts a pool with the given number of workers.
// workers <= 0 uses one worker per CPU.
func NewParallelBackend(workers int) *ParallelBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	b := &ParallelBackend{
		tasks:      make(chan rowTask, workers*4),
		numWorkers: workers,
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.run()
	}
	return b
}

func (b *ParallelBackend) Name() string { return "parallel" }

// Workers returns the number of workers in the pool.
func (b *ParallelBackend) Workers() int { return b.numWorkers }

// Dispatch queues every row of the grid and waits for all of them.
// Dispatches are serialized.
func (b *ParallelBackend) Dispatch(grid Grid, kernel func(x, y, z int)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}

	bt := &batch{}
	for z := 0; z < grid.Depth; z++ {
		for y := 0; y < grid.Height; y++ {
			bt.wg.Add(1)
			b.tasks <- rowTask{y: y, z: z, width: grid.Width, kernel: kernel, batch: bt}
		}
	}
	bt.wg.Wait()

	if bt.panicked != nil {
		return fmt.Errorf("%w: %v", ErrKernelPanic, bt.panicked)
	}
	return nil
}

// Close stops the workers. Dispatch fails afterwards.
func (b *ParallelBackend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.tasks)
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *ParallelBackend) run() {
	defer b.wg.Done()
	for task := range b.tasks {
		task.execute()
	}
}

func (t rowTask) execute() {
	defer t.batch.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.batch.fail(r)
		}
	}()
	for x := 0; x < t.width; x++ {
		t.kernel(x, t.y, t.z)
	}
}
