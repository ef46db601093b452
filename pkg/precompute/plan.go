// Package precompute sequences the stages that build an atmosphere LUT set.
//
// A Precomputer owns the scratch buffers and a compute Backend. Each call to
// Begin starts a Run: an explicit iterator over the units of the plan, so a
// host loop can interleave precomputation with its own work and cancel
// between units.
package precompute

import "fmt"

// Stage identifies one kind of precomputation pass.
type Stage int

const (
	StageTransmittance Stage = iota
	StageDirectIrradiance
	StageSingleScattering
	StageScatteringDensity
	StageIndirectIrradiance
	StageMultipleScattering
)

var stageNames = [...]string{
	StageTransmittance:      "transmittance",
	StageDirectIrradiance:   "direct_irradiance",
	StageSingleScattering:   "single_scattering",
	StageScatteringDensity:  "scattering_density",
	StageIndirectIrradiance: "indirect_irradiance",
	StageMultipleScattering: "multiple_scattering",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Unit is one step of a run: a stage at a given scattering order.
type Unit struct {
	Stage Stage
	Order int
}

func (u Unit) String() string {
	switch u.Stage {
	case StageScatteringDensity, StageIndirectIrradiance, StageMultipleScattering:
		return fmt.Sprintf("%s(%d)", u.Stage, u.Order)
	}
	return u.Stage.String()
}

const (
	// DefaultScatteringOrders gives 12 units of work.
	DefaultScatteringOrders = 4
	MaxScatteringOrders     = 16
)

// Plan returns the units for the given number of scattering orders:
// transmittance, direct irradiance and single scattering, then density,
// indirect irradiance and multiple scattering for every order from 2.
func Plan(orders int) ([]Unit, error) {
	if orders < 1 || orders > MaxScatteringOrders {
		return nil, fmt.Errorf("scattering orders must be in [1, %d], got %d", MaxScatteringOrders, orders)
	}
	units := []Unit{
		{Stage: StageTransmittance},
		{Stage: StageDirectIrradiance, Order: 1},
		{Stage: StageSingleScattering, Order: 1},
	}
	for n := 2; n <= orders; n++ {
		units = append(units,
			Unit{Stage: StageScatteringDensity, Order: n},
			Unit{Stage: StageIndirectIrradiance, Order: n},
			Unit{Stage: StageMultipleScattering, Order: n},
		)
	}
	return units, nil
}
