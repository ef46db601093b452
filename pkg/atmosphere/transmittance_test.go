package atmosphere

import (
	"math"
	"testing"
)

// verticalOpticalDepth integrates the Earth profiles analytically from
// altitude h0 to the top of the atmosphere.
func verticalOpticalDepth(p Parameters, h0 float64) Spectrum {
	hTop := p.TopRadius - p.BottomRadius
	exponential := func(scale float64) float64 {
		return scale * (math.Exp(-h0/scale) - math.Exp(-hTop/scale))
	}
	// The ozone tent between 10 and 40 km has unit height: area 15 km.
	ozone := 15000.0
	return p.RayleighScattering.Scale(exponential(8000)).
		Add(p.MieExtinction.Scale(exponential(1200))).
		Add(p.AbsorptionExtinction.Scale(ozone))
}

func buildTransmittance(m *Model) *Texture {
	tex := m.NewTransmittanceTexture()
	for y := 0; y < tex.Height; y++ {
		for x := 0; x < tex.Width; x++ {
			tex.SetTexel(x, y, 0, m.TransmittanceTexel(x, y), 0)
		}
	}
	return tex
}

func assertSpectrumNear(t *testing.T, what string, expected, got Spectrum, relTol float64) {
	t.Helper()
	for i := range expected {
		diff := math.Abs(expected[i] - got[i])
		if diff > relTol*math.Abs(expected[i]) && diff > 1e-12 {
			t.Errorf("%s: expected %v, got %v (channel %d)", what, expected, got, i)
			return
		}
	}
}

func TestTransmittance_VerticalClosedForm(t *testing.T) {
	m := newTestModel(t, Features{})
	p := m.Params
	r := p.BottomRadius + 1000

	expected := verticalOpticalDepth(p, 1000).ExpNeg()
	direct := m.ComputeTransmittanceToTopAtmosphereBoundary(r, 1)
	assertSpectrumNear(t, "direct integration", expected, direct, 1e-3)

	for _, log := range []bool{false, true} {
		m := newTestModel(t, Features{LogEncodedTransmittance: log})
		tex := buildTransmittance(m)
		got := m.TransmittanceToTopAtmosphereBoundary(tex, r, 1)
		assertSpectrumNear(t, "LUT lookup", expected, got, 0.02)
	}
}

func TestTransmittance_Range(t *testing.T) {
	m, err := NewModel(Earth(), testSizes(), Features{})
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}
	tex := buildTransmittance(m)
	for i, v := range tex.Data {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("expected transmittance in [0,1], got %v at %d", v, i)
		}
	}

	p := &m.Params
	for _, alt := range []float64{0, 500, 10000, 60000, 1e6} {
		for _, mu := range []float64{-1, -0.3, -0.01, 0, 0.01, 0.4, 1} {
			T := m.TransmittanceToTopAtmosphereBoundary(tex, p.BottomRadius+alt, mu)
			for _, c := range T {
				if c < 0 || c > 1 || math.IsNaN(c) {
					t.Errorf("expected transmittance in [0,1] at alt=%v mu=%v, got %v", alt, mu, T)
				}
			}
		}
	}
}

func TestTransmittance_LogEncodedStoresDepth(t *testing.T) {
	sizes := testSizes()
	linear, _ := NewModel(Earth(), sizes, Features{})
	logged, _ := NewModel(Earth(), sizes, Features{LogEncodedTransmittance: true})

	for _, xy := range [][2]int{{0, 0}, {10, 3}, {63, 15}} {
		T := linear.TransmittanceTexel(xy[0], xy[1])
		tau := logged.TransmittanceTexel(xy[0], xy[1])
		assertSpectrumNear(t, "log texel", T, tau.ExpNeg(), 1e-12)
	}
}

func TestTransmittance_Composition(t *testing.T) {
	for _, log := range []bool{false, true} {
		m := newTestModel(t, Features{LogEncodedTransmittance: log})
		p := &m.Params
		tex := buildTransmittance(m)

		r := p.BottomRadius + 1000
		for _, mu := range []float64{1, 0.5, 0.2} {
			for _, d := range []float64{2000, 10000, 30000} {
				rd, mud := p.pointAlongRay(r, mu, d)
				expected := m.OpticalDepthToTopAtmosphereBoundary(r, mu).
					Sub(m.OpticalDepthToTopAtmosphereBoundary(rd, mud)).ExpNeg()
				got := m.Transmittance(tex, r, mu, d, false)
				assertSpectrumNear(t, "segment transmittance", expected, got, 0.02)

				whole := m.TransmittanceToTopAtmosphereBoundary(tex, r, mu)
				product := got.Mul(m.TransmittanceToTopAtmosphereBoundary(tex, rd, mud))
				assertSpectrumNear(t, "composition", whole, product, 0.02)
			}
		}
	}
}

func TestTransmittance_GroundRay(t *testing.T) {
	m := newTestModel(t, Features{})
	p := &m.Params
	tex := buildTransmittance(m)

	r := p.BottomRadius + 2000
	mu := -0.5
	d := p.DistanceToBottomAtmosphereBoundary(r, mu)
	T := m.Transmittance(tex, r, mu, d, true)
	for _, c := range T {
		if c <= 0 || c > 1 {
			t.Errorf("expected ground transmittance in (0,1], got %v", T)
		}
	}
	if got := m.Transmittance(tex, r, mu, 0, true); math.Abs(got[0]-1) > 1e-3 {
		t.Errorf("expected unit transmittance over zero distance, got %v", got)
	}
}

func TestTransmittanceToSun_Horizon(t *testing.T) {
	m := newTestModel(t, Features{})
	p := &m.Params
	tex := buildTransmittance(m)
	r := p.BottomRadius

	if got := m.TransmittanceToSun(tex, r, -0.5); !got.IsZero() {
		t.Errorf("expected no sunlight below the horizon, got %v", got)
	}
	high := m.TransmittanceToSun(tex, r, 0.9)
	expected := m.TransmittanceToTopAtmosphereBoundary(tex, r, 0.9)
	assertSpectrumNear(t, "sun above horizon", expected, high, 1e-12)

	half := m.TransmittanceToSun(tex, r, 0)
	full := m.TransmittanceToTopAtmosphereBoundary(tex, r, 0)
	assertSpectrumNear(t, "sun on horizon", full.Scale(0.5), half, 1e-9)
}
