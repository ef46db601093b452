package viewer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
)

// Driver runs a precomputation a few units at a time from the frame loop.
type Driver struct {
	p    *precompute.Precomputer
	run  *precompute.Run
	done int
	log  *zap.Logger
}

// NewDriver returns a driver for p. No run is started.
func NewDriver(p *precompute.Precomputer, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{p: p, log: log}
}

// Start begins a new run. It fails with precompute.ErrBusy while a run is
// in progress.
func (d *Driver) Start() error {
	if d.run != nil {
		return precompute.ErrBusy
	}
	run, err := d.p.Begin()
	if err != nil {
		return err
	}
	d.run = run
	d.done = 0
	return nil
}

// Running reports whether a run is in progress.
func (d *Driver) Running() bool {
	return d.run != nil
}

// Progress returns the units completed by the current run and the plan
// length. total is 0 when nothing is running.
func (d *Driver) Progress() (done, total int) {
	if d.run == nil {
		return 0, 0
	}
	return d.done, len(d.p.Plan())
}

// Advance executes up to units units of the current run. When the run
// completes it returns the published set. A cancelled run ends with a nil
// set and no error; a failed run returns its error.
func (d *Driver) Advance(ctx context.Context, units int) (*atmosphere.LUTSet, error) {
	if d.run == nil {
		return nil, nil
	}
	for i := 0; i < units && !d.run.Done(); i++ {
		progress, err := d.run.Step(ctx)
		if err != nil {
			break
		}
		d.done = progress.Index + 1
	}
	if !d.run.Done() {
		return nil, nil
	}

	run := d.run
	d.run = nil
	switch run.State() {
	case precompute.StateComplete:
		set := run.Result()
		d.log.Info("precomputation complete", zap.Uint64("version", set.Version))
		return set, nil
	case precompute.StateCancelled:
		d.log.Info("precomputation cancelled")
		return nil, nil
	default:
		return nil, fmt.Errorf("precomputation failed: %w", run.Err())
	}
}

// Cancel stops the current run and drives it to its terminal state, which
// releases its scratch buffers and lets Start begin a new run.
func (d *Driver) Cancel() {
	if d.run == nil {
		return
	}
	d.run.Cancel()
	for !d.run.Done() {
		if _, err := d.run.Step(context.Background()); err != nil {
			break
		}
	}
	d.log.Info("precomputation cancelled", zap.Int("units_done", d.done))
	d.run = nil
}
