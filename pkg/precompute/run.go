package precompute

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

// Run is one precomputation in progress. Step executes the units one at a
// time; the run's outputs are published only when the last unit succeeds.
type Run struct {
	p       *Precomputer
	set     *atmosphere.LUTSet
	started time.Time

	// stepMu is held for the duration of a unit.
	stepMu          sync.Mutex
	next            int
	state           State
	err             error
	cancelRequested atomic.Bool
}

// Done reports whether the run has ended.
func (r *Run) Done() bool {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	return r.state != StateRunning
}

// State returns the run state.
func (r *Run) State() State {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	return r.state
}

// Err returns the error that ended the run, if any.
func (r *Run) Err() error {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	return r.err
}

// Remaining returns the number of units left.
func (r *Run) Remaining() int {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	return len(r.p.plan) - r.next
}

// Result returns the published set of a complete run, nil otherwise.
func (r *Run) Result() *atmosphere.LUTSet {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	if r.state != StateComplete {
		return nil
	}
	return r.set
}

// Cancel stops the run. A unit in progress finishes first; its buffers are
// released afterwards. Cancel is safe to call from any goroutine.
func (r *Run) Cancel() {
	r.cancelRequested.Store(true)
	if !r.stepMu.TryLock() {
		// Step observes the request once the current unit completes.
		return
	}
	defer r.stepMu.Unlock()
	if r.state == StateRunning {
		r.end(StateCancelled, ErrCancelled)
	}
}

// Step executes the next unit. Cancellation, through Cancel or ctx, is
// observed before and after the unit, never during it.
func (r *Run) Step(ctx context.Context) (Progress, error) {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	if r.state != StateRunning {
		return Progress{}, ErrRunFinished
	}
	if err := r.checkCancel(ctx); err != nil {
		return Progress{}, err
	}

	unit := r.p.plan[r.next]
	start := time.Now()
	if err := r.execute(unit); err != nil {
		err = fmt.Errorf("%s: %w", unit, err)
		r.end(StateFailed, err)
		return Progress{}, err
	}
	progress := Progress{Unit: unit, Index: r.next, Total: len(r.p.plan), Elapsed: time.Since(start)}
	r.next++
	r.p.log.Debug("unit complete",
		zap.Stringer("unit", unit),
		zap.Int("index", progress.Index),
		zap.Int("total", progress.Total),
		zap.Duration("elapsed", progress.Elapsed))

	if err := r.checkCancel(ctx); err != nil {
		return progress, err
	}
	if r.next == len(r.p.plan) {
		r.end(StateComplete, nil)
	}
	return progress, nil
}

func (r *Run) checkCancel(ctx context.Context) error {
	if r.cancelRequested.Load() {
		r.end(StateCancelled, ErrCancelled)
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
		r.end(StateCancelled, err)
		return err
	}
	return nil
}

// end must be called with stepMu held.
func (r *Run) end(state State, err error) {
	r.state = state
	r.err = err
	r.p.finish(r, state, err)
}

func (r *Run) dispatch(grid Grid, kernel func(x, y, z int)) error {
	return r.p.backend.Dispatch(grid, kernel)
}

// orderInputs returns the buffers holding the radiance of the given order.
func (r *Run) orderInputs(order int) (atmosphere.OrderInputs, error) {
	a := r.p.arena
	irradiance, err := a.Acquire(DeltaIrradiance)
	if err != nil {
		return atmosphere.OrderInputs{}, err
	}
	in := atmosphere.OrderInputs{Irradiance: irradiance}
	if order == 1 {
		if in.SingleRayleigh, err = a.Acquire(DeltaRayleighScattering); err != nil {
			return in, err
		}
		if in.SingleMie, err = a.Acquire(DeltaMieScattering); err != nil {
			return in, err
		}
		return in, nil
	}
	in.Multiple, err = a.Acquire(DeltaMultipleScattering)
	return in, err
}

func (r *Run) execute(u Unit) error {
	m := r.p.model
	a := r.p.arena
	set := r.set
	sz := m.Sizes
	transmittance := set.Transmittance

	transmittanceGrid := Grid{sz.TransmittanceWidth, sz.TransmittanceHeight, 1}
	irradianceGrid := Grid{sz.IrradianceWidth, sz.IrradianceHeight, 1}
	scatteringGrid := Grid{sz.ScatteringWidth(), sz.ScatteringMu, sz.ScatteringR}

	switch u.Stage {
	case StageTransmittance:
		return r.dispatch(transmittanceGrid, func(x, y, _ int) {
			transmittance.SetTexel(x, y, 0, m.TransmittanceTexel(x, y), 0)
		})

	case StageDirectIrradiance:
		deltaIrradiance, err := a.Acquire(DeltaIrradiance)
		if err != nil {
			return err
		}
		deltaIrradiance.Clear()
		// The irradiance LUT holds only indirect irradiance.
		set.Irradiance.Clear()
		return r.dispatch(irradianceGrid, func(x, y, _ int) {
			deltaIrradiance.SetTexel(x, y, 0, m.DirectIrradianceTexel(transmittance, x, y), 0)
		})

	case StageSingleScattering:
		deltaRayleigh, err := a.Acquire(DeltaRayleighScattering)
		if err != nil {
			return err
		}
		deltaMie, err := a.Acquire(DeltaMieScattering)
		if err != nil {
			return err
		}
		deltaRayleigh.Clear()
		deltaMie.Clear()
		scattering := set.Scattering
		singleMie := set.SingleMieScattering
		return r.dispatch(scatteringGrid, func(x, y, z int) {
			rayleigh, mie, _ := m.SingleScatteringTexel(transmittance, x, y, z)
			deltaRayleigh.SetTexel(x, y, z, rayleigh, 0)
			deltaMie.SetTexel(x, y, z, mie, 0)
			scattering.SetTexel(x, y, z, rayleigh, mie[0])
			if singleMie != nil {
				singleMie.SetTexel(x, y, z, mie, 0)
			}
		})

	case StageScatteringDensity:
		in, err := r.orderInputs(u.Order - 1)
		if err != nil {
			return err
		}
		density, err := a.Acquire(DeltaScatteringDensity)
		if err != nil {
			return err
		}
		density.Clear()
		order := u.Order
		return r.dispatch(scatteringGrid, func(x, y, z int) {
			density.SetTexel(x, y, z, m.ScatteringDensityTexel(transmittance, in, x, y, z, order), 0)
		})

	case StageIndirectIrradiance:
		in, err := r.orderInputs(u.Order - 1)
		if err != nil {
			return err
		}
		// The previous order's ground irradiance was consumed by the density
		// stage; the buffer now receives this order's.
		deltaIrradiance := in.Irradiance
		deltaIrradiance.Clear()
		in.Irradiance = nil
		irradiance := set.Irradiance
		order := u.Order - 1
		return r.dispatch(irradianceGrid, func(x, y, _ int) {
			e := m.IndirectIrradianceTexel(in, x, y, order)
			deltaIrradiance.SetTexel(x, y, 0, e, 0)
			irradiance.AddTexel(x, y, 0, e, 0)
		})

	case StageMultipleScattering:
		if u.Order == 2 {
			// Single scattering is fully consumed; its Rayleigh storage
			// becomes the multiple scattering delta.
			if err := a.Release(DeltaRayleighScattering); err != nil {
				return err
			}
			if err := a.Release(DeltaMieScattering); err != nil {
				return err
			}
		}
		deltaMultiple, err := a.Acquire(DeltaMultipleScattering)
		if err != nil {
			return err
		}
		density, err := a.Acquire(DeltaScatteringDensity)
		if err != nil {
			return err
		}
		deltaMultiple.Clear()
		scattering := set.Scattering
		higherOrder := set.HigherOrderScattering
		return r.dispatch(scatteringGrid, func(x, y, z int) {
			delta, nu := m.MultipleScatteringTexel(transmittance, density, x, y, z)
			deltaMultiple.SetTexel(x, y, z, delta, 0)
			stored := delta.Scale(1 / atmosphere.RayleighPhase(nu))
			scattering.AddTexel(x, y, z, stored, 0)
			if higherOrder != nil {
				higherOrder.AddTexel(x, y, z, stored, 0)
			}
		})
	}
	return fmt.Errorf("unknown stage %v", u.Stage)
}
