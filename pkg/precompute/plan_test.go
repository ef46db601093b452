package precompute

import (
	"testing"
)

func TestPlan_DefaultOrders(t *testing.T) {
	units, err := Plan(DefaultScatteringOrders)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(units) != 12 {
		t.Fatalf("expected 12 units, got %d", len(units))
	}

	expected := []Unit{
		{StageTransmittance, 0},
		{StageDirectIrradiance, 1},
		{StageSingleScattering, 1},
		{StageScatteringDensity, 2},
		{StageIndirectIrradiance, 2},
		{StageMultipleScattering, 2},
		{StageScatteringDensity, 3},
		{StageIndirectIrradiance, 3},
		{StageMultipleScattering, 3},
		{StageScatteringDensity, 4},
		{StageIndirectIrradiance, 4},
		{StageMultipleScattering, 4},
	}
	for i, u := range units {
		if u != expected[i] {
			t.Errorf("unit %d: expected %v, got %v", i, expected[i], u)
		}
	}
}

func TestPlan_Bounds(t *testing.T) {
	tests := []struct {
		orders  int
		units   int
		wantErr bool
	}{
		{1, 3, false},
		{2, 6, false},
		{MaxScatteringOrders, 3 + 3*(MaxScatteringOrders-1), false},
		{0, 0, true},
		{-1, 0, true},
		{MaxScatteringOrders + 1, 0, true},
	}

	for _, tt := range tests {
		units, err := Plan(tt.orders)
		if (err != nil) != tt.wantErr {
			t.Errorf("orders %d: expected error %v, got %v", tt.orders, tt.wantErr, err)
			continue
		}
		if len(units) != tt.units {
			t.Errorf("orders %d: expected %d units, got %d", tt.orders, tt.units, len(units))
		}
	}
}

func TestUnit_String(t *testing.T) {
	tests := []struct {
		unit     Unit
		expected string
	}{
		{Unit{StageTransmittance, 0}, "transmittance"},
		{Unit{StageSingleScattering, 1}, "single_scattering"},
		{Unit{StageScatteringDensity, 3}, "scattering_density(3)"},
		{Unit{StageMultipleScattering, 2}, "multiple_scattering(2)"},
		{Unit{Stage(42), 0}, "stage(42)"},
	}

	for _, tt := range tests {
		if got := tt.unit.String(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}
