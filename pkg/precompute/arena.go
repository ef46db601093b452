package precompute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

// Role names a scratch buffer.
type Role int

const (
	DeltaIrradiance Role = iota
	DeltaRayleighScattering
	DeltaMieScattering
	DeltaScatteringDensity
	// DeltaMultipleScattering shares storage with DeltaRayleighScattering.
	DeltaMultipleScattering
)

var roleNames = [...]string{
	DeltaIrradiance:         "delta_irradiance",
	DeltaRayleighScattering: "delta_rayleigh_scattering",
	DeltaMieScattering:      "delta_mie_scattering",
	DeltaScatteringDensity:  "delta_scattering_density",
	DeltaMultipleScattering: "delta_multiple_scattering",
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

var (
	// ErrBufferAliased is returned when a role's storage is held by the
	// role it aliases.
	ErrBufferAliased = errors.New("scratch buffer held by an aliased role")
	// ErrBufferNotHeld is returned when releasing a role that is not held.
	ErrBufferNotHeld = errors.New("scratch buffer not held")
)

type slot int

const (
	slotIrradiance slot = iota
	slotRayleighMultiple
	slotMie
	slotDensity
	numSlots
)

func (r Role) slot() slot {
	switch r {
	case DeltaIrradiance:
		return slotIrradiance
	case DeltaRayleighScattering, DeltaMultipleScattering:
		return slotRayleighMultiple
	case DeltaMieScattering:
		return slotMie
	case DeltaScatteringDensity:
		return slotDensity
	}
	panic(fmt.Sprintf("precompute: unknown role %d", int(r)))
}

// Arena owns the scratch buffers of a Precomputer. They are allocated once
// and reused by every order and every run. A slot can be held by one role at
// a time, which enforces that an aliased buffer is never live under two names.
type Arena struct {
	mu      sync.Mutex
	buffers [numSlots]*atmosphere.Texture
	holders [numSlots]Role
	held    [numSlots]bool
}

// NewArena allocates the scratch buffers for the model's texture sizes.
func NewArena(m *atmosphere.Model) *Arena {
	a := &Arena{}
	a.buffers[slotIrradiance] = m.NewIrradianceTexture()
	a.buffers[slotRayleighMultiple] = m.NewScatteringTexture()
	a.buffers[slotMie] = m.NewScatteringTexture()
	a.buffers[slotDensity] = m.NewScatteringTexture()
	return a
}

// Acquire returns the buffer for role. Acquiring a role already held
// returns the same buffer.
func (a *Arena) Acquire(role Role) (*atmosphere.Texture, error) {
	s := role.slot()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.held[s] && a.holders[s] != role {
		return nil, fmt.Errorf("%w: %s is held as %s", ErrBufferAliased, role, a.holders[s])
	}
	a.held[s] = true
	a.holders[s] = role
	return a.buffers[s], nil
}

// Release ends the lifetime of role, freeing its storage for an alias.
func (a *Arena) Release(role Role) error {
	s := role.slot()
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.held[s] || a.holders[s] != role {
		return fmt.Errorf("%w: %s", ErrBufferNotHeld, role)
	}
	a.held[s] = false
	return nil
}

// Held reports whether role currently holds its storage.
func (a *Arena) Held(role Role) bool {
	s := role.slot()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held[s] && a.holders[s] == role
}

// ReleaseAll releases every slot.
func (a *Arena) ReleaseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.held {
		a.held[i] = false
	}
}

// Bytes returns the memory used by the scratch buffers.
func (a *Arena) Bytes() int {
	n := 0
	for _, b := range a.buffers {
		n += len(b.Data) * 4
	}
	return n
}
