package atmosphere

import (
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	testLUTsMu sync.Mutex
	testLUTs   = map[Features]*LUTSet{}
)

// buildTestLUTs runs every stage serially on small textures. Results are
// cached per feature set.
func buildTestLUTs(t testing.TB, features Features) (*Model, *LUTSet) {
	t.Helper()
	m, err := NewModel(Earth(), testSizes(), features)
	if err != nil {
		t.Fatalf("NewModel failed: %v", err)
	}

	testLUTsMu.Lock()
	defer testLUTsMu.Unlock()
	if set, ok := testLUTs[features]; ok {
		return m, set
	}

	const orders = 2
	sz := m.Sizes
	set := m.NewLUTSet()
	set.Orders = orders

	transmittance := set.Transmittance
	for y := 0; y < sz.TransmittanceHeight; y++ {
		for x := 0; x < sz.TransmittanceWidth; x++ {
			transmittance.SetTexel(x, y, 0, m.TransmittanceTexel(x, y), 0)
		}
	}

	deltaIrradiance := m.NewIrradianceTexture()
	for y := 0; y < sz.IrradianceHeight; y++ {
		for x := 0; x < sz.IrradianceWidth; x++ {
			deltaIrradiance.SetTexel(x, y, 0, m.DirectIrradianceTexel(transmittance, x, y), 0)
		}
	}

	deltaRayleigh := m.NewScatteringTexture()
	deltaMie := m.NewScatteringTexture()
	forEachScatteringTexel(sz, func(x, y, z int) {
		rayleigh, mie, _ := m.SingleScatteringTexel(transmittance, x, y, z)
		deltaRayleigh.SetTexel(x, y, z, rayleigh, 0)
		deltaMie.SetTexel(x, y, z, mie, 0)
		set.Scattering.SetTexel(x, y, z, rayleigh, mie[0])
		if set.SingleMieScattering != nil {
			set.SingleMieScattering.SetTexel(x, y, z, mie, 0)
		}
	})

	density := m.NewScatteringTexture()
	for order := 2; order <= orders; order++ {
		in := OrderInputs{SingleRayleigh: deltaRayleigh, SingleMie: deltaMie, Multiple: deltaRayleigh, Irradiance: deltaIrradiance}
		forEachScatteringTexel(sz, func(x, y, z int) {
			density.SetTexel(x, y, z, m.ScatteringDensityTexel(transmittance, in, x, y, z, order), 0)
		})
		for y := 0; y < sz.IrradianceHeight; y++ {
			for x := 0; x < sz.IrradianceWidth; x++ {
				e := m.IndirectIrradianceTexel(in, x, y, order-1)
				deltaIrradiance.SetTexel(x, y, 0, e, 0)
				set.Irradiance.AddTexel(x, y, 0, e, 0)
			}
		}
		forEachScatteringTexel(sz, func(x, y, z int) {
			delta, nu := m.MultipleScatteringTexel(transmittance, density, x, y, z)
			deltaRayleigh.SetTexel(x, y, z, delta, 0)
			stored := delta.Scale(1 / RayleighPhase(nu))
			set.Scattering.AddTexel(x, y, z, stored, 0)
			if set.HigherOrderScattering != nil {
				set.HigherOrderScattering.AddTexel(x, y, z, stored, 0)
			}
		})
	}

	testLUTs[features] = set
	return m, set
}

func forEachScatteringTexel(sz TextureSizes, fn func(x, y, z int)) {
	for z := 0; z < sz.ScatteringR; z++ {
		for y := 0; y < sz.ScatteringMu; y++ {
			for x := 0; x < sz.ScatteringWidth(); x++ {
				fn(x, y, z)
			}
		}
	}
}

func newTestSampler(t *testing.T, features Features) *Sampler {
	t.Helper()
	m, set := buildTestLUTs(t, features)
	s, err := NewSampler(m.Params, set)
	if err != nil {
		t.Fatalf("NewSampler failed: %v", err)
	}
	return s
}

func assertFiniteNonNegative(t *testing.T, what string, s Spectrum) {
	t.Helper()
	if !s.IsFinite() {
		t.Fatalf("%s: expected finite values, got %v", what, s)
	}
	for _, c := range s {
		if c < 0 {
			t.Fatalf("%s: expected non-negative values, got %v", what, s)
		}
	}
}

func TestNewSampler_Errors(t *testing.T) {
	if _, err := NewSampler(Earth(), nil); err != ErrNoLUTs {
		t.Errorf("expected ErrNoLUTs, got %v", err)
	}
	m, _ := NewModel(Earth(), testSizes(), Features{})
	set := m.NewLUTSet()
	set.Transmittance = nil
	if _, err := NewSampler(Earth(), set); err == nil {
		t.Error("expected error for incomplete LUT set")
	}
}

func TestSkyRadiance_Daylight(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	camera := r3.Vec{Z: p.BottomRadius + 1000}
	sun := r3.Vec{Z: 1}

	up, T := s.SkyRadiance(camera, r3.Vec{Z: 1}, 0, sun)
	assertFiniteNonNegative(t, "zenith radiance", up)
	if up.Sum() <= 0 {
		t.Errorf("expected a lit sky, got %v", up)
	}
	if up[2] <= up[0] {
		t.Errorf("expected a blue zenith, got %v", up)
	}
	expected := verticalOpticalDepth(p, 1000).ExpNeg()
	assertSpectrumNear(t, "zenith transmittance", expected, T, 0.05)

	_, T = s.SkyRadiance(camera, r3.Vec{Z: -1}, 0, sun)
	if !T.IsZero() {
		t.Errorf("expected zero transmittance for a ground ray, got %v", T)
	}
}

func TestSkyRadiance_MissReturnsVacuum(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	camera := r3.Vec{Z: p.TopRadius + 100000}

	radiance, T := s.SkyRadiance(camera, r3.Vec{Z: 1}, 0, r3.Vec{Z: 1})
	if !radiance.IsZero() || T != Uniform(1) {
		t.Errorf("expected (0, 1) for a ray leaving the planet, got %v %v", radiance, T)
	}
	radiance, T = s.SkyRadiance(camera, r3.Vec{X: 1}, 0, r3.Vec{Z: 1})
	if !radiance.IsZero() || T != Uniform(1) {
		t.Errorf("expected (0, 1) for a ray missing the atmosphere, got %v %v", radiance, T)
	}
}

func TestSkyRadiance_SpaceCameraEntersAtmosphere(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	sun := r3.Vec{X: 0.6, Z: 0.8}

	fromSpace, _ := s.SkyRadiance(r3.Vec{Z: p.TopRadius + 50000}, r3.Vec{Z: -1}, 0, sun)
	fromTop, _ := s.SkyRadiance(r3.Vec{Z: p.TopRadius}, r3.Vec{Z: -1}, 0, sun)
	assertSpectrumNear(t, "space camera", fromTop, fromSpace, 1e-9)
}

func TestSkyRadiance_BelowGroundSnapped(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	view := r3.Unit(r3.Vec{X: 1, Z: 1})
	sun := r3.Vec{Z: 1}

	ground, _ := s.SkyRadiance(r3.Vec{Z: p.BottomRadius}, view, 0, sun)
	below, _ := s.SkyRadiance(r3.Vec{Z: p.BottomRadius - 500}, view, 0, sun)
	assertSpectrumNear(t, "below ground", ground, below, 1e-9)

	nan, _ := s.SkyRadiance(r3.Vec{X: math.NaN()}, view, 0, sun)
	assertFiniteNonNegative(t, "nan camera", nan)
}

func TestSkyRadiance_ZeroShadowMatchesUnshadowed(t *testing.T) {
	for _, features := range []Features{{}, {CombinedScatteringTextures: true}, {HigherOrderScatteringTexture: true}} {
		s := newTestSampler(t, features)
		m := s.Model()
		p := m.Params
		camera := r3.Vec{Z: p.BottomRadius + 500}
		sun := r3.Unit(r3.Vec{X: 1, Z: 0.3})

		for _, view := range []r3.Vec{{Z: 1}, r3.Unit(r3.Vec{X: 1, Z: 0.1}), r3.Unit(r3.Vec{Y: 1, Z: -0.2})} {
			got, _ := s.SkyRadiance(camera, view, 0, sun)

			r := r3.Norm(camera)
			mu := r3.Dot(camera, view) / r
			muS := r3.Dot(camera, sun) / r
			nu := r3.Dot(view, sun)
			scattering, mie := m.CombinedScattering(s.LUTs(), r, mu, muS, nu, p.RayIntersectsGround(r, mu))
			expected := scattering.Scale(RayleighPhase(nu)).Add(mie.Scale(MiePhase(p.MiePhaseFunctionG, nu)))
			assertSpectrumNear(t, "unshadowed radiance", expected, got, 1e-12)
		}
	}
}

func TestSkyRadiance_ShadowDarkens(t *testing.T) {
	for _, features := range []Features{{}, {HigherOrderScatteringTexture: true}} {
		s := newTestSampler(t, features)
		p := s.Model().Params
		camera := r3.Vec{Z: p.BottomRadius + 500}
		view := r3.Unit(r3.Vec{X: 1, Z: 0.2})
		sun := r3.Unit(r3.Vec{X: -1, Z: 0.5})

		lit, _ := s.SkyRadiance(camera, view, 0, sun)
		shadowed, _ := s.SkyRadiance(camera, view, 20000, sun)
		assertFiniteNonNegative(t, "shadowed", shadowed)
		if shadowed.Sum() > lit.Sum() {
			t.Errorf("expected shadow to remove light: lit %v, shadowed %v", lit, shadowed)
		}
		if features.HigherOrderScatteringTexture && shadowed.IsZero() {
			t.Error("expected higher orders to survive the shadow")
		}
	}
}

func TestSkyRadianceToPoint_VerticalMatchesSky(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	camera := r3.Vec{Z: p.BottomRadius + 1000}
	point := r3.Vec{Z: p.TopRadius - 1}
	sun := r3.Vec{Z: 1}

	sky, skyT := s.SkyRadiance(camera, r3.Vec{Z: 1}, 0, sun)
	seg, segT := s.SkyRadianceToPoint(camera, point, 0, sun)
	assertSpectrumNear(t, "segment radiance", sky, seg, 0.05)
	assertSpectrumNear(t, "segment transmittance", skyT, segT, 0.01)

	expected := verticalOpticalDepth(p, 1000).ExpNeg()
	assertSpectrumNear(t, "closed form", expected, segT, 0.05)
}

func TestSkyRadianceToPoint_Degenerate(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	sun := r3.Vec{Z: 1}

	radiance, T := s.SkyRadianceToPoint(r3.Vec{Z: p.BottomRadius - 10}, r3.Vec{X: 100, Z: p.BottomRadius - 20}, 0, sun)
	if !radiance.IsZero() || T != Uniform(1) {
		t.Errorf("expected (0, 1) for a buried segment, got %v %v", radiance, T)
	}

	camera := r3.Vec{Z: p.BottomRadius + 100}
	radiance, T = s.SkyRadianceToPoint(camera, camera, 0, sun)
	if !radiance.IsZero() || T != Uniform(1) {
		t.Errorf("expected (0, 1) for an empty segment, got %v %v", radiance, T)
	}
}

func TestSkyRadianceToPoint_ClipsAtGround(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	camera := r3.Vec{Z: p.BottomRadius + 1000}
	sun := r3.Unit(r3.Vec{X: 1, Z: 1})

	surface := r3.Vec{X: 2000, Z: math.Sqrt(p.BottomRadius*p.BottomRadius - 2000*2000)}
	buried := r3.Add(camera, r3.Scale(1.5, r3.Sub(surface, camera)))

	a, aT := s.SkyRadianceToPoint(camera, surface, 0, sun)
	b, bT := s.SkyRadianceToPoint(camera, buried, 0, sun)
	assertSpectrumNear(t, "clipped radiance", a, b, 1e-6)
	assertSpectrumNear(t, "clipped transmittance", aT, bT, 1e-6)
}

// horizonSegment returns a camera at the given altitude, a unit view ray at
// zenith cosine mu and the point length meters along it.
func horizonSegment(p Parameters, altitude, mu, length float64) (camera, view, point r3.Vec) {
	camera = r3.Vec{Z: p.BottomRadius + altitude}
	view = r3.Vec{X: math.Sqrt(1 - mu*mu), Z: mu}
	return camera, view, r3.Add(camera, r3.Scale(length, view))
}

func horizonCosine(p Parameters, altitude float64) float64 {
	ratio := p.BottomRadius / (p.BottomRadius + altitude)
	return -math.Sqrt(1 - ratio*ratio)
}

// continuousAcrossHorizon reports whether two radiances sampled on either
// side of the horizon agree within the resolution of the test LUTs.
func continuousAcrossHorizon(below, above Spectrum) bool {
	b, a := below.Sum(), above.Sum()
	if b <= 0 || a <= 0 {
		return false
	}
	ratio := b / a
	return ratio >= 0.8 && ratio <= 1.25
}

// withGroundHalfCleared returns a copy of set whose scattering LUTs are zero
// for every ray hitting the ground.
func withGroundHalfCleared(set *LUTSet) *LUTSet {
	c := *set
	for _, tex := range []**Texture{&c.Scattering, &c.SingleMieScattering, &c.HigherOrderScattering} {
		if *tex == nil {
			continue
		}
		cleared := (*tex).Clone()
		for z := 0; z < cleared.Depth; z++ {
			for y := 0; y < cleared.Height/2; y++ {
				for x := 0; x < cleared.Width; x++ {
					cleared.SetTexel(x, y, z, Spectrum{}, 0)
				}
			}
		}
		*tex = cleared
	}
	return &c
}

func TestSkyRadianceToPoint_HorizonContinuity(t *testing.T) {
	const offset = 1e-4
	tests := []struct {
		name     string
		altitude float64
		length   float64
	}{
		{"1km altitude 1km segment", 1000, 1000},
		{"1km altitude 10km segment", 1000, 10000},
		{"10km altitude 1km segment", 10000, 1000},
		{"10km altitude 20km segment", 10000, 20000},
	}
	sun := r3.Unit(r3.Vec{X: 1, Z: 0.5})

	for _, features := range []Features{{}, {CombinedScatteringTextures: true}} {
		s := newTestSampler(t, features)
		p := s.Model().Params
		for _, tt := range tests {
			muHorizon := horizonCosine(p, tt.altitude)
			var results, transmittances [2]Spectrum
			for i, mu := range []float64{muHorizon - offset, muHorizon + offset} {
				camera, _, point := horizonSegment(p, tt.altitude, mu, tt.length)
				radiance, T := s.SkyRadianceToPoint(camera, point, 0, sun)
				assertFiniteNonNegative(t, tt.name+" radiance", radiance)
				assertFiniteNonNegative(t, tt.name+" transmittance", T)
				results[i] = radiance
				transmittances[i] = T
			}
			assertSpectrumNear(t, tt.name+" transmittance", transmittances[0], transmittances[1], 0.05)
			if !continuousAcrossHorizon(results[0], results[1]) {
				t.Errorf("%s (%+v): expected continuous radiance across the horizon, got %v vs %v",
					tt.name, features, results[0], results[1])
			}
		}
	}
}

func TestSkyRadianceToPoint_HorizonBlendsBothHalves(t *testing.T) {
	_, set := buildTestLUTs(t, Features{})
	s, err := NewSampler(Earth(), withGroundHalfCleared(set))
	if err != nil {
		t.Fatalf("NewSampler failed: %v", err)
	}
	p := s.Model().Params
	sun := r3.Unit(r3.Vec{X: 1, Z: 0.5})
	const altitude, length, offset = 10000, 1000, 1e-4
	muHorizon := horizonCosine(p, altitude)
	r := p.BottomRadius + altitude

	// Looked up directly, the cleared ground half leaves a hard seam.
	var raw [2]Spectrum
	for i, mu := range []float64{muHorizon - offset, muHorizon + offset} {
		_, view, _ := horizonSegment(p, altitude, mu, length)
		raw[i], _ = s.segmentRadiance(r, mu, sun.Z, r3.Dot(view, sun), length, 0, i == 0)
	}
	if continuousAcrossHorizon(raw[0], raw[1]) {
		t.Fatalf("expected a seam between the LUT halves, got %v vs %v", raw[0], raw[1])
	}

	var blended [2]Spectrum
	for i, mu := range []float64{muHorizon - offset, muHorizon + offset} {
		camera, _, point := horizonSegment(p, altitude, mu, length)
		blended[i], _ = s.SkyRadianceToPoint(camera, point, 0, sun)
	}
	if !continuousAcrossHorizon(blended[0], blended[1]) {
		t.Errorf("expected the horizon blend to hide the seam, got %v vs %v", blended[0], blended[1])
	}

	// Away from the horizon the ground half is used as is.
	camera, _, point := horizonSegment(p, altitude, muHorizon-0.05, length)
	if radiance, _ := s.SkyRadianceToPoint(camera, point, 0, sun); !radiance.IsZero() {
		t.Errorf("expected no radiance from the cleared ground half, got %v", radiance)
	}
}

func TestSunAndSkyIrradiance(t *testing.T) {
	s := newTestSampler(t, Features{})
	m := s.Model()
	p := m.Params
	point := r3.Vec{Z: p.BottomRadius}
	sun := r3.Vec{Z: 1}

	sunE, skyE := s.SunAndSkyIrradiance(point, r3.Vec{Z: 1}, sun)
	expected := p.SolarIrradiance.Mul(m.TransmittanceToTopAtmosphereBoundary(s.LUTs().Transmittance, p.BottomRadius, 1))
	assertSpectrumNear(t, "sun irradiance", expected, sunE, 1e-9)
	if skyE.Sum() <= 0 {
		t.Errorf("expected positive sky irradiance, got %v", skyE)
	}

	sunE, skyE = s.SunAndSkyIrradiance(point, r3.Vec{Z: -1}, sun)
	if !sunE.IsZero() || !skyE.IsZero() {
		t.Errorf("expected no light on a downward surface, got %v %v", sunE, skyE)
	}
}

func TestSolarRadianceAndLuminance(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params

	alpha := p.SunAngularRadius
	expected := p.SolarIrradiance.Scale(1 / (math.Pi * alpha * alpha))
	assertSpectrumNear(t, "solar radiance", expected, s.SolarRadiance(), 1e-12)
	assertSpectrumNear(t, "solar luminance", expected.Mul(p.SunRadianceToLuminance), s.SolarLuminance(), 1e-12)

	camera := r3.Vec{Z: p.BottomRadius + 10}
	radiance, _ := s.SkyRadiance(camera, r3.Vec{Z: 1}, 0, r3.Vec{Z: 1})
	luminance, _ := s.SkyLuminance(camera, r3.Vec{Z: 1}, 0, r3.Vec{Z: 1})
	assertSpectrumNear(t, "sky luminance", radiance.Mul(p.SkyRadianceToLuminance), luminance, 1e-12)
}

func TestSampler_ConcurrentUse(t *testing.T) {
	s := newTestSampler(t, Features{})
	p := s.Model().Params
	camera := r3.Vec{Z: p.BottomRadius + 200}
	view := r3.Unit(r3.Vec{X: 1, Y: 1, Z: 0.3})
	sun := r3.Unit(r3.Vec{X: -1, Z: 0.4})
	expected, _ := s.SkyRadiance(camera, view, 0, sun)

	var wg sync.WaitGroup
	errs := make(chan Spectrum, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, _ := s.SkyRadiance(camera, view, 0, sun)
				if got != expected {
					errs <- got
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("expected %v from every goroutine, got %v", expected, got)
	}
}
