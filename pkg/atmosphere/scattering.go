package atmosphere

import "math"

// RayleighPhase is the Rayleigh phase function for the scattering angle cosine nu.
func RayleighPhase(nu float64) float64 {
	k := 3 / (16 * math.Pi)
	return k * (1 + nu*nu)
}

// MiePhase is the Cornette-Shanks phase function with asymmetry g.
func MiePhase(g, nu float64) float64 {
	k := 3 / (8 * math.Pi) * (1 - g*g) / (2 + g*g)
	return k * (1 + nu*nu) / math.Pow(1+g*g-2*g*nu, 1.5)
}

func (m *Model) singleScatteringIntegrand(t *Texture, r, mu, muS, nu, d float64, intersectsGround bool) (rayleigh, mie Spectrum) {
	p := &m.Params
	rd := p.ClampRadius(math.Sqrt(d*d + 2*r*mu*d + r*r))
	muSd := ClampCosine((r*muS + d*nu) / rd)
	transmittance := m.Transmittance(t, r, mu, d, intersectsGround).
		Mul(m.TransmittanceToSun(t, rd, muSd))
	altitude := rd - p.BottomRadius
	rayleigh = transmittance.Scale(p.RayleighDensity.Density(altitude))
	mie = transmittance.Scale(p.MieDensity.Density(altitude))
	return rayleigh, mie
}

// ComputeSingleScattering integrates single scattered Rayleigh and Mie
// radiance along the view ray to the nearest atmosphere boundary. Phase
// functions are not applied.
func (m *Model) ComputeSingleScattering(t *Texture, r, mu, muS, nu float64, intersectsGround bool) (rayleigh, mie Spectrum) {
	p := &m.Params
	dx := p.DistanceToNearestAtmosphereBoundary(r, mu, intersectsGround) / scatteringSamples
	for i := 0; i <= scatteringSamples; i++ {
		di := float64(i) * dx
		ri, mi := m.singleScatteringIntegrand(t, r, mu, muS, nu, di, intersectsGround)
		weight := 1.0
		if i == 0 || i == scatteringSamples {
			weight = 0.5
		}
		rayleigh = rayleigh.Add(ri.Scale(weight))
		mie = mie.Add(mi.Scale(weight))
	}
	rayleigh = rayleigh.Scale(dx).Mul(p.SolarIrradiance).Mul(p.RayleighScattering)
	mie = mie.Scale(dx).Mul(p.SolarIrradiance).Mul(p.MieScattering)
	return rayleigh, mie
}

// SingleScatteringTexel computes texel (x, y, z) of the single scattering LUTs.
func (m *Model) SingleScatteringTexel(t *Texture, x, y, z int) (rayleigh, mie Spectrum, nu float64) {
	r, mu, muS, nu, ground := m.ScatteringTexelParams(x, y, z)
	rayleigh, mie = m.ComputeSingleScattering(t, r, mu, muS, nu, ground)
	return rayleigh, mie, nu
}

// sampleScattering reads a scattering-layout LUT, interpolating nu by hand
// between the two nu slices packed along x.
func (m *Model) sampleScattering(t *Texture, r, mu, muS, nu float64, intersectsGround bool) (Spectrum, float64) {
	c := m.ScatteringUVWZ(r, mu, muS, nu, intersectsGround)
	n := float64(m.Sizes.ScatteringNu)
	texCoordX := c.Nu * (n - 1)
	texX := math.Floor(texCoordX)
	f := texCoordX - texX
	rgb0, a0 := t.Sample3D((texX+c.MuS)/n, c.Mu, c.R)
	rgb1, a1 := t.Sample3D((texX+1+c.MuS)/n, c.Mu, c.R)
	return lerpSpectrum(rgb0, rgb1, f), lerp(a0, a1, f)
}

// Scattering looks up a 3-channel scattering-layout LUT.
func (m *Model) Scattering(t *Texture, r, mu, muS, nu float64, intersectsGround bool) Spectrum {
	rgb, _ := m.sampleScattering(t, r, mu, muS, nu, intersectsGround)
	return rgb
}

// OrderInputs are the textures holding the radiance of the previous
// scattering order and the ground irradiance it produced.
type OrderInputs struct {
	SingleRayleigh *Texture
	SingleMie      *Texture
	Multiple       *Texture
	Irradiance     *Texture
}

// ScatteringForOrder returns the phase-weighted radiance of the given order.
// Order 1 is rebuilt from the single Rayleigh and Mie LUTs, higher orders
// come from the multiple scattering LUT.
func (m *Model) ScatteringForOrder(in OrderInputs, r, mu, muS, nu float64, intersectsGround bool, order int) Spectrum {
	if order == 1 {
		rayleigh := m.Scattering(in.SingleRayleigh, r, mu, muS, nu, intersectsGround)
		mie := m.Scattering(in.SingleMie, r, mu, muS, nu, intersectsGround)
		return rayleigh.Scale(RayleighPhase(nu)).Add(mie.Scale(MiePhase(m.Params.MiePhaseFunctionG, nu)))
	}
	return m.Scattering(in.Multiple, r, mu, muS, nu, intersectsGround)
}

// ExtrapolatedSingleMie rebuilds single Mie scattering from a combined texel,
// whose alpha channel holds the red channel of single Mie.
func (m *Model) ExtrapolatedSingleMie(scattering Spectrum, alpha float64) Spectrum {
	p := &m.Params
	if scattering[0] <= 0 || p.MieScattering[0] == 0 {
		return Spectrum{}
	}
	k := alpha / scattering[0] * (p.RayleighScattering[0] / p.MieScattering[0])
	return scattering.Scale(k).Mul(p.MieScattering.Div(p.RayleighScattering))
}

// CombinedScattering looks up the accumulated scattering and single Mie
// LUTs of a finished set.
func (m *Model) CombinedScattering(luts *LUTSet, r, mu, muS, nu float64, intersectsGround bool) (scattering, singleMie Spectrum) {
	if luts.Features.CombinedScatteringTextures {
		rgb, alpha := m.sampleScattering(luts.Scattering, r, mu, muS, nu, intersectsGround)
		return rgb, m.ExtrapolatedSingleMie(rgb, alpha)
	}
	scattering = m.Scattering(luts.Scattering, r, mu, muS, nu, intersectsGround)
	singleMie = m.Scattering(luts.SingleMieScattering, r, mu, muS, nu, intersectsGround)
	return scattering, singleMie
}
