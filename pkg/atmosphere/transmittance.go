package atmosphere

import "math"

const (
	transmittanceSamples = 500
	scatteringSamples    = 50
)

// opticalLengthToTop integrates a density profile along the ray (r, mu) up to
// the top atmosphere boundary with the trapezoidal rule.
func (m *Model) opticalLengthToTop(profile DensityProfile, r, mu float64) float64 {
	p := &m.Params
	dx := p.DistanceToTopAtmosphereBoundary(r, mu) / transmittanceSamples
	result := 0.0
	for i := 0; i <= transmittanceSamples; i++ {
		di := float64(i) * dx
		ri := math.Sqrt(di*di + 2*r*mu*di + r*r)
		yi := profile.Density(ri - p.BottomRadius)
		weight := 1.0
		if i == 0 || i == transmittanceSamples {
			weight = 0.5
		}
		result += yi * weight * dx
	}
	return result
}

// OpticalDepthToTopAtmosphereBoundary returns the extinction integrated
// along the ray (r, mu) up to the top boundary, ignoring the ground.
func (m *Model) OpticalDepthToTopAtmosphereBoundary(r, mu float64) Spectrum {
	p := &m.Params
	rayleigh := p.RayleighScattering.Scale(m.opticalLengthToTop(p.RayleighDensity, r, mu))
	mie := p.MieExtinction.Scale(m.opticalLengthToTop(p.MieDensity, r, mu))
	absorption := p.AbsorptionExtinction.Scale(m.opticalLengthToTop(p.AbsorptionDensity, r, mu))
	return rayleigh.Add(mie).Add(absorption)
}

// ComputeTransmittanceToTopAtmosphereBoundary integrates the transmittance
// directly, without a LUT.
func (m *Model) ComputeTransmittanceToTopAtmosphereBoundary(r, mu float64) Spectrum {
	return m.OpticalDepthToTopAtmosphereBoundary(r, mu).ExpNeg()
}

// TransmittanceTexel computes texel (x, y) of the transmittance LUT. With
// log-encoded transmittance the texel holds the optical depth.
func (m *Model) TransmittanceTexel(x, y int) Spectrum {
	r, mu := m.transmittanceTexelRMu(x, y)
	depth := m.OpticalDepthToTopAtmosphereBoundary(r, mu)
	if m.Features.LogEncodedTransmittance {
		return depth
	}
	return depth.ExpNeg()
}

// opticalDepthLookup returns the optical depth stored in a log-encoded LUT,
// interpolated in optical-depth space.
func (m *Model) opticalDepthLookup(t *Texture, r, mu float64) Spectrum {
	u, v := m.TransmittanceUV(r, mu)
	taps, fx, fy := t.Fetch2D(u, v, 0)
	return lerpSpectrum(lerpSpectrum(taps[0], taps[1], fx), lerpSpectrum(taps[2], taps[3], fx), fy)
}

// TransmittanceToTopAtmosphereBoundary looks up the transmittance of the ray
// (r, mu) up to the top boundary.
func (m *Model) TransmittanceToTopAtmosphereBoundary(t *Texture, r, mu float64) Spectrum {
	if m.Features.LogEncodedTransmittance {
		return m.opticalDepthLookup(t, r, mu).ExpNeg()
	}
	u, v := m.TransmittanceUV(r, mu)
	rgb, _ := t.Sample2D(u, v)
	return rgb
}

// Transmittance returns the transmittance between the point at radius r and
// the point at distance d along the ray with zenith cosine mu. The result is
// the ratio of two boundary lookups, reversed for ground rays so that the
// looked-up rays never hit the ground.
func (m *Model) Transmittance(t *Texture, r, mu, d float64, intersectsGround bool) Spectrum {
	rd, mud := m.Params.pointAlongRay(r, mu, d)
	if m.Features.LogEncodedTransmittance {
		var tau Spectrum
		if intersectsGround {
			tau = m.opticalDepthLookup(t, rd, -mud).Sub(m.opticalDepthLookup(t, r, -mu))
		} else {
			tau = m.opticalDepthLookup(t, r, mu).Sub(m.opticalDepthLookup(t, rd, mud))
		}
		return tau.ExpNeg().Min(1)
	}
	if intersectsGround {
		return m.TransmittanceToTopAtmosphereBoundary(t, rd, -mud).
			Div(m.TransmittanceToTopAtmosphereBoundary(t, r, -mu)).Min(1)
	}
	return m.TransmittanceToTopAtmosphereBoundary(t, r, mu).
		Div(m.TransmittanceToTopAtmosphereBoundary(t, rd, mud)).Min(1)
}

// TransmittanceToSun returns the transmittance to the sun, scaled by the
// visible fraction of the solar disc above the horizon.
func (m *Model) TransmittanceToSun(t *Texture, r, muS float64) Spectrum {
	p := &m.Params
	sinThetaH := p.BottomRadius / r
	cosThetaH := -math.Sqrt(math.Max(1-sinThetaH*sinThetaH, 0))
	alpha := p.SunAngularRadius
	visible := smoothstep(-sinThetaH*alpha, sinThetaH*alpha, muS-cosThetaH)
	return m.TransmittanceToTopAtmosphereBoundary(t, r, muS).Scale(visible)
}
