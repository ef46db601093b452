package atmosphere

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// indirectIrradianceSamples sets the hemisphere resolution: half as many
// polar steps and twice as many azimuth steps.
const indirectIrradianceSamples = 32

// ComputeDirectIrradiance returns the irradiance received from the sun at
// radius r on a horizontal surface, averaging the cosine factor over the
// solar disc.
func (m *Model) ComputeDirectIrradiance(t *Texture, r, muS float64) Spectrum {
	p := &m.Params
	alpha := p.SunAngularRadius
	var averageCos float64
	switch {
	case muS < -alpha:
		averageCos = 0
	case muS > alpha:
		averageCos = muS
	default:
		averageCos = (muS + alpha) * (muS + alpha) / (4 * alpha)
	}
	return p.SolarIrradiance.Mul(m.TransmittanceToTopAtmosphereBoundary(t, r, muS)).Scale(averageCos)
}

// DirectIrradianceTexel computes texel (x, y) of the direct irradiance LUT.
func (m *Model) DirectIrradianceTexel(t *Texture, x, y int) Spectrum {
	r, muS := m.irradianceTexelRMuS(x, y)
	return m.ComputeDirectIrradiance(t, r, muS)
}

// ComputeIndirectIrradiance integrates the sky radiance of the given order
// over the upper hemisphere of a horizontal surface.
func (m *Model) ComputeIndirectIrradiance(in OrderInputs, r, muS float64, order int) Spectrum {
	const dPhi = math.Pi / indirectIrradianceSamples
	const dTheta = math.Pi / indirectIrradianceSamples

	omegaS := r3.Vec{X: math.Sqrt(1 - muS*muS), Z: muS}
	var result Spectrum
	for j := 0; j < indirectIrradianceSamples/2; j++ {
		theta := (float64(j) + 0.5) * dTheta
		sinTheta, cosTheta := math.Sincos(theta)
		for i := 0; i < 2*indirectIrradianceSamples; i++ {
			phi := (float64(i) + 0.5) * dPhi
			sinPhi, cosPhi := math.Sincos(phi)
			omega := r3.Vec{X: cosPhi * sinTheta, Y: sinPhi * sinTheta, Z: cosTheta}
			domega := dTheta * dPhi * sinTheta
			nu := r3.Dot(omega, omegaS)
			radiance := m.ScatteringForOrder(in, r, omega.Z, muS, nu, false, order)
			result = result.Add(radiance.Scale(omega.Z * domega))
		}
	}
	return result
}

// IndirectIrradianceTexel computes texel (x, y) of the irradiance produced
// by the given scattering order.
func (m *Model) IndirectIrradianceTexel(in OrderInputs, x, y, order int) Spectrum {
	r, muS := m.irradianceTexelRMuS(x, y)
	return m.ComputeIndirectIrradiance(in, r, muS, order)
}

// Irradiance looks up an irradiance LUT.
func (m *Model) Irradiance(t *Texture, r, muS float64) Spectrum {
	u, v := m.IrradianceUV(r, muS)
	rgb, _ := t.Sample2D(u, v)
	return rgb
}
