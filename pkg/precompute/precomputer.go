package precompute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

var (
	// ErrBusy is returned by Begin while another run is active.
	ErrBusy = errors.New("precomputation already running")
	// ErrCancelled is returned by a run stopped by Cancel or its context.
	ErrCancelled = errors.New("precomputation cancelled")
	// ErrRunFinished is returned by Step once a run has ended.
	ErrRunFinished = errors.New("run already finished")
	// ErrNotPublished is returned when no LUT set has been published yet.
	ErrNotPublished = errors.New("no LUT set published")
)

// State is the lifecycle state of a Precomputer or Run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Precomputer. Zero values select the defaults.
type Options struct {
	Sizes            atmosphere.TextureSizes
	Features         atmosphere.Features
	ScatteringOrders int
	Backend          Backend
	Logger           *zap.Logger
}

// Progress reports a finished unit.
type Progress struct {
	Unit    Unit
	Index   int
	Total   int
	Elapsed time.Duration
}

// Precomputer builds LUT sets for one atmosphere configuration and
// publishes the latest complete set.
type Precomputer struct {
	model   *atmosphere.Model
	plan    []Unit
	orders  int
	backend Backend
	log     *zap.Logger
	arena   *Arena

	mu     sync.Mutex
	active *Run
	state  State

	published atomic.Pointer[atmosphere.LUTSet]
	version   atomic.Uint64
}

// New validates the configuration and allocates the scratch buffers.
// Invalid parameters or sizes fail with an *atmosphere.ConfigError before
// any work is done.
func New(params atmosphere.Parameters, opts Options) (*Precomputer, error) {
	if opts.Sizes == (atmosphere.TextureSizes{}) {
		opts.Sizes = atmosphere.DefaultTextureSizes()
	}
	if opts.ScatteringOrders == 0 {
		opts.ScatteringOrders = DefaultScatteringOrders
	}
	if opts.Backend == nil {
		opts.Backend = SerialBackend{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	model, err := atmosphere.NewModel(params, opts.Sizes, opts.Features)
	if err != nil {
		return nil, err
	}
	plan, err := Plan(opts.ScatteringOrders)
	if err != nil {
		return nil, &atmosphere.ConfigError{Field: "scattering_orders", Reason: err.Error()}
	}

	p := &Precomputer{
		model:   model,
		plan:    plan,
		orders:  opts.ScatteringOrders,
		backend: opts.Backend,
		log:     opts.Logger.Named("precompute"),
		arena:   NewArena(model),
	}
	p.log.Debug("precomputer ready",
		zap.String("backend", p.backend.Name()),
		zap.Int("orders", p.orders),
		zap.Int("units", len(p.plan)),
		zap.Int("scratch_bytes", p.arena.Bytes()))
	return p, nil
}

// Model returns the validated model.
func (p *Precomputer) Model() *atmosphere.Model { return p.model }

// Plan returns the units every run executes.
func (p *Precomputer) Plan() []Unit { return append([]Unit(nil), p.plan...) }

// Arena returns the scratch buffers.
func (p *Precomputer) Arena() *Arena { return p.arena }

// State returns the state of the current or last run.
func (p *Precomputer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Published returns the latest complete LUT set, or nil. The set is
// read-only.
func (p *Precomputer) Published() *atmosphere.LUTSet {
	return p.published.Load()
}

// Version returns the version of the latest published set, 0 if none.
func (p *Precomputer) Version() uint64 {
	if set := p.published.Load(); set != nil {
		return set.Version
	}
	return 0
}

// Sampler returns a sampler over the latest published set.
func (p *Precomputer) Sampler() (*atmosphere.Sampler, error) {
	set := p.published.Load()
	if set == nil {
		return nil, ErrNotPublished
	}
	return atmosphere.NewSampler(p.model.Params, set)
}

// Begin starts a run. Only one run may be active at a time.
func (p *Precomputer) Begin() (*Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return nil, ErrBusy
	}
	r := &Run{
		p:       p,
		set:     p.model.NewLUTSet(),
		state:   StateRunning,
		started: time.Now(),
	}
	p.active = r
	p.state = StateRunning
	p.log.Info("precomputation started", zap.Int("units", len(p.plan)))
	return r, nil
}

// Precompute runs every unit and returns the published set.
func (p *Precomputer) Precompute(ctx context.Context) (*atmosphere.LUTSet, error) {
	run, err := p.Begin()
	if err != nil {
		return nil, err
	}
	for !run.Done() {
		if _, err := run.Step(ctx); err != nil {
			return nil, err
		}
	}
	if set := run.Result(); set != nil {
		return set, nil
	}
	return nil, run.Err()
}

// PrecomputeAsync runs every unit on a new goroutine. Progress is sent after
// each unit; a failure is sent on the error channel. Both channels are
// closed when the run ends.
func (p *Precomputer) PrecomputeAsync(ctx context.Context) (<-chan Progress, <-chan error) {
	progressChan := make(chan Progress, len(p.plan))
	errChan := make(chan error, 1)

	run, err := p.Begin()
	if err != nil {
		errChan <- err
		close(progressChan)
		close(errChan)
		return progressChan, errChan
	}

	go func() {
		defer close(progressChan)
		defer close(errChan)

		for !run.Done() {
			progress, err := run.Step(ctx)
			if err != nil {
				errChan <- err
				return
			}
			select {
			case progressChan <- progress:
			case <-ctx.Done():
				// The run notices the context on its next step.
			}
		}
		if run.State() != StateComplete {
			errChan <- run.Err()
		}
	}()

	return progressChan, errChan
}

// finish ends the active run.
func (p *Precomputer) finish(r *Run, state State, err error) {
	p.arena.ReleaseAll()

	if state == StateComplete {
		r.set.Orders = p.orders
		r.set.Version = p.version.Add(1)
		p.published.Store(r.set)
	}

	p.mu.Lock()
	if p.active == r {
		p.active = nil
	}
	p.state = state
	p.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("state", state),
		zap.Duration("elapsed", time.Since(r.started)),
	}
	switch state {
	case StateComplete:
		p.log.Info("precomputation complete", append(fields, zap.Uint64("version", r.set.Version))...)
	case StateCancelled:
		p.log.Warn("precomputation cancelled", fields...)
	default:
		p.log.Error("precomputation failed", append(fields, zap.Error(err))...)
	}
}
