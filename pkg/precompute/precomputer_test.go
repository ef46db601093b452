package precompute

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

func tinySizes() atmosphere.TextureSizes {
	return atmosphere.TextureSizes{
		TransmittanceWidth:  32,
		TransmittanceHeight: 8,
		IrradianceWidth:     8,
		IrradianceHeight:    4,
		ScatteringR:         4,
		ScatteringMu:        8,
		ScatteringMuS:       4,
		ScatteringNu:        2,
	}
}

func newTestPrecomputer(t *testing.T, opts Options) *Precomputer {
	t.Helper()
	if opts.Sizes == (atmosphere.TextureSizes{}) {
		opts.Sizes = tinySizes()
	}
	if opts.ScatteringOrders == 0 {
		opts.ScatteringOrders = 2
	}
	p, err := New(atmosphere.Earth(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

// failingBackend fails the dispatch with the given 1-based index.
type failingBackend struct {
	mu     sync.Mutex
	failAt int
	calls  int
}

var errDeviceLost = errors.New("device lost")

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) Dispatch(grid Grid, kernel func(x, y, z int)) error {
	b.mu.Lock()
	b.calls++
	fail := b.calls == b.failAt
	b.mu.Unlock()
	if fail {
		return errDeviceLost
	}
	return SerialBackend{}.Dispatch(grid, kernel)
}

// blockingBackend parks inside Dispatch until released.
type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Name() string { return "blocking" }

func (b *blockingBackend) Dispatch(grid Grid, kernel func(x, y, z int)) error {
	b.entered <- struct{}{}
	<-b.release
	return SerialBackend{}.Dispatch(grid, kernel)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	params := atmosphere.Earth()
	params.BottomRadius = params.TopRadius

	if _, err := New(params, Options{Sizes: tinySizes()}); !errors.Is(err, atmosphere.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for bad radii, got %v", err)
	}

	sizes := tinySizes()
	sizes.ScatteringMu = 7
	if _, err := New(atmosphere.Earth(), Options{Sizes: sizes}); !errors.Is(err, atmosphere.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for odd mu size, got %v", err)
	}

	if _, err := New(atmosphere.Earth(), Options{Sizes: tinySizes(), ScatteringOrders: 99}); !errors.Is(err, atmosphere.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for too many orders, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(atmosphere.Earth(), Options{Sizes: tinySizes()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(p.Plan()) != 12 {
		t.Errorf("expected 12 units by default, got %d", len(p.Plan()))
	}
	if p.State() != StateIdle {
		t.Errorf("expected idle state, got %s", p.State())
	}
	if p.Published() != nil || p.Version() != 0 {
		t.Error("expected nothing published before the first run")
	}
	if _, err := p.Sampler(); !errors.Is(err, ErrNotPublished) {
		t.Errorf("expected ErrNotPublished, got %v", err)
	}
}

func TestPrecompute_PublishesAndVersions(t *testing.T) {
	p := newTestPrecomputer(t, Options{})

	first, err := p.Precompute(context.Background())
	if err != nil {
		t.Fatalf("Precompute failed: %v", err)
	}
	if first.Version != 1 || p.Version() != 1 {
		t.Errorf("expected version 1, got %d/%d", first.Version, p.Version())
	}
	if first.Orders != 2 {
		t.Errorf("expected 2 orders, got %d", first.Orders)
	}
	if p.Published() != first {
		t.Error("expected the returned set to be published")
	}
	if p.State() != StateComplete {
		t.Errorf("expected complete state, got %s", p.State())
	}
	if err := first.Validate(); err != nil {
		t.Errorf("expected a valid set, got %v", err)
	}

	second, err := p.Precompute(context.Background())
	if err != nil {
		t.Fatalf("second Precompute failed: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}
	if second == first {
		t.Error("expected a fresh set per run")
	}
	if !second.Scattering.Equal(first.Scattering) {
		t.Error("expected identical runs to produce identical LUTs")
	}

	if _, err := p.Sampler(); err != nil {
		t.Errorf("expected a sampler over the published set, got %v", err)
	}
}

func TestPrecompute_SerialMatchesParallel(t *testing.T) {
	features := atmosphere.Features{HigherOrderScatteringTexture: true}
	serial := newTestPrecomputer(t, Options{Features: features, Backend: SerialBackend{}})

	pool := NewParallelBackend(4)
	defer pool.Close()
	parallel := newTestPrecomputer(t, Options{Features: features, Backend: pool})

	a, err := serial.Precompute(context.Background())
	if err != nil {
		t.Fatalf("serial Precompute failed: %v", err)
	}
	b, err := parallel.Precompute(context.Background())
	if err != nil {
		t.Fatalf("parallel Precompute failed: %v", err)
	}

	pairs := []struct {
		name string
		a, b *atmosphere.Texture
	}{
		{"transmittance", a.Transmittance, b.Transmittance},
		{"irradiance", a.Irradiance, b.Irradiance},
		{"scattering", a.Scattering, b.Scattering},
		{"single mie", a.SingleMieScattering, b.SingleMieScattering},
		{"higher order", a.HigherOrderScattering, b.HigherOrderScattering},
	}
	for _, pair := range pairs {
		if !pair.a.Equal(pair.b) {
			t.Errorf("expected %s LUTs to match across backends", pair.name)
		}
	}
}

func TestPrecompute_EnergyMonotonicInOrder(t *testing.T) {
	pool := NewParallelBackend(0)
	defer pool.Close()
	p := newTestPrecomputer(t, Options{ScatteringOrders: 4, Backend: pool})

	run, err := p.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	sum := func(tex *atmosphere.Texture) float64 {
		s := 0.0
		for _, v := range tex.Data {
			s += float64(v)
		}
		return s
	}

	previous := -1.0
	for !run.Done() {
		progress, err := run.Step(context.Background())
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		switch progress.Unit.Stage {
		case StageSingleScattering, StageMultipleScattering:
			total := sum(run.set.Scattering)
			if math.IsNaN(total) || total < previous {
				t.Errorf("after %s: expected scattering energy to grow, got %v after %v", progress.Unit, total, previous)
			}
			previous = total
		}
		if progress.Unit.Stage == StageMultipleScattering {
			delta := p.arena.buffers[slotRayleighMultiple]
			for _, v := range delta.Data {
				if v < 0 {
					t.Fatalf("after %s: expected non-negative delta, got %v", progress.Unit, v)
				}
			}
		}
	}
	if run.State() != StateComplete {
		t.Fatalf("expected complete run, got %s", run.State())
	}
	if sum(run.Result().Irradiance) <= 0 {
		t.Error("expected indirect irradiance to accumulate")
	}
}

func TestPrecompute_SingleOrderLeavesIrradianceEmpty(t *testing.T) {
	p := newTestPrecomputer(t, Options{ScatteringOrders: 1, Features: atmosphere.Features{CombinedScatteringTextures: true}})

	set, err := p.Precompute(context.Background())
	if err != nil {
		t.Fatalf("Precompute failed: %v", err)
	}
	for _, v := range set.Irradiance.Data {
		if v != 0 {
			t.Fatalf("expected no indirect irradiance with one order, got %v", v)
		}
	}
	if set.SingleMieScattering != nil {
		t.Error("expected single mie to be packed into the scattering alpha")
	}
	if set.Scattering.Channels != 4 {
		t.Errorf("expected 4 channels, got %d", set.Scattering.Channels)
	}
}

func TestBegin_RejectsConcurrentRuns(t *testing.T) {
	p := newTestPrecomputer(t, Options{})

	run, err := p.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := p.Begin(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if _, err := p.Precompute(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy from Precompute, got %v", err)
	}

	run.Cancel()
	if _, err := p.Begin(); err != nil {
		t.Errorf("expected Begin to succeed after cancel, got %v", err)
	}
}

func TestRun_CancelBetweenUnits(t *testing.T) {
	p := newTestPrecomputer(t, Options{})

	run, err := p.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := run.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	run.Cancel()

	if run.State() != StateCancelled {
		t.Errorf("expected cancelled run, got %s", run.State())
	}
	if _, err := run.Step(context.Background()); !errors.Is(err, ErrRunFinished) {
		t.Errorf("expected ErrRunFinished, got %v", err)
	}
	if p.Published() != nil {
		t.Error("expected a cancelled run not to publish")
	}
	if p.State() != StateCancelled {
		t.Errorf("expected precomputer to report cancelled, got %s", p.State())
	}
	if p.Arena().Held(DeltaIrradiance) {
		t.Error("expected scratch buffers to be released")
	}

	next, err := p.Begin()
	if err != nil {
		t.Fatalf("expected a new run after cancelling, got %v", err)
	}
	next.Cancel()
}

func TestRun_CancelMidUnitDefersTeardown(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	p := newTestPrecomputer(t, Options{Backend: backend})

	run, err := p.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	type result struct {
		progress Progress
		err      error
	}
	done := make(chan result, 1)
	go func() {
		progress, err := run.Step(context.Background())
		done <- result{progress, err}
	}()

	<-backend.entered
	run.Cancel()
	if p.State() != StateRunning {
		t.Errorf("expected the run to keep going until the unit ends, got %s", p.State())
	}
	close(backend.release)

	res := <-done
	if !errors.Is(res.err, ErrCancelled) {
		t.Errorf("expected ErrCancelled after the unit, got %v", res.err)
	}
	if res.progress.Unit.Stage != StageTransmittance {
		t.Errorf("expected the in-flight unit to complete, got %v", res.progress.Unit)
	}
	if run.State() != StateCancelled {
		t.Errorf("expected cancelled run, got %s", run.State())
	}
	if p.Arena().Held(DeltaIrradiance) {
		t.Error("expected scratch buffers to be released after the unit")
	}
	if _, err := p.Begin(); err != nil {
		t.Errorf("expected a new run after the cancelled one, got %v", err)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	p := newTestPrecomputer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Precompute(ctx)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ErrCancelled wrapping context.Canceled, got %v", err)
	}
	if p.Published() != nil {
		t.Error("expected nothing published")
	}
}

func TestRun_FailureKeepsPublishedSet(t *testing.T) {
	backend := &failingBackend{}
	p := newTestPrecomputer(t, Options{Backend: backend})

	first, err := p.Precompute(context.Background())
	if err != nil {
		t.Fatalf("Precompute failed: %v", err)
	}
	snapshot := first.Scattering.Clone()

	backend.mu.Lock()
	backend.calls = 0
	backend.failAt = 5
	backend.mu.Unlock()

	_, err = p.Precompute(context.Background())
	if !errors.Is(err, errDeviceLost) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("expected failed state, got %s", p.State())
	}
	if p.Published() != first || p.Version() != 1 {
		t.Error("expected the failed run to leave the published set untouched")
	}
	if !first.Scattering.Equal(snapshot) {
		t.Error("expected published LUT contents to be unchanged")
	}
	if _, err := p.Begin(); err != nil {
		t.Errorf("expected a new run after failure, got %v", err)
	}
}

func TestPrecomputeAsync_Progress(t *testing.T) {
	p := newTestPrecomputer(t, Options{})

	progressChan, errChan := p.PrecomputeAsync(context.Background())
	var seen []Progress
	for progress := range progressChan {
		seen = append(seen, progress)
	}
	for err := range errChan {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != len(p.Plan()) {
		t.Fatalf("expected %d progress events, got %d", len(p.Plan()), len(seen))
	}
	for i, progress := range seen {
		if progress.Index != i || progress.Total != len(p.Plan()) {
			t.Errorf("expected progress %d/%d, got %d/%d", i, len(p.Plan()), progress.Index, progress.Total)
		}
	}
	if p.Version() != 1 {
		t.Errorf("expected version 1, got %d", p.Version())
	}
}

func TestPrecomputeAsync_Busy(t *testing.T) {
	p := newTestPrecomputer(t, Options{})
	run, err := p.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer run.Cancel()

	progressChan, errChan := p.PrecomputeAsync(context.Background())
	if _, ok := <-progressChan; ok {
		t.Error("expected no progress while busy")
	}
	if err := <-errChan; !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestPrecompute_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := newTestPrecomputer(t, Options{Logger: zap.New(core)})

	if _, err := p.Precompute(context.Background()); err != nil {
		t.Fatalf("Precompute failed: %v", err)
	}
	if n := logs.FilterMessage("unit complete").Len(); n != len(p.Plan()) {
		t.Errorf("expected %d unit logs, got %d", len(p.Plan()), n)
	}
	if logs.FilterMessage("precomputation complete").Len() != 1 {
		t.Error("expected a completion log")
	}
}
