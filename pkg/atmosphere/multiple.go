package atmosphere

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const densitySamples = 16

var zenith = r3.Vec{Z: 1}

// ComputeScatteringDensity returns the radiance scattered towards the view
// direction at radius r by light of the previous order arriving from every
// direction, including light reflected by the ground.
func (m *Model) ComputeScatteringDensity(t *Texture, in OrderInputs, r, mu, muS, nu float64, order int) Spectrum {
	p := &m.Params
	omega := r3.Vec{X: math.Sqrt(1 - mu*mu), Z: mu}
	sunX := 0.0
	if omega.X != 0 {
		sunX = (nu - mu*muS) / omega.X
	}
	omegaS := r3.Vec{X: sunX, Y: math.Sqrt(math.Max(1-sunX*sunX-muS*muS, 0)), Z: muS}

	const dPhi = math.Pi / densitySamples
	const dTheta = math.Pi / densitySamples

	altitude := r - p.BottomRadius
	rayleighDensity := p.RayleighDensity.Density(altitude)
	mieDensity := p.MieDensity.Density(altitude)

	var result Spectrum
	for l := 0; l < densitySamples; l++ {
		theta := (float64(l) + 0.5) * dTheta
		sinTheta, cosTheta := math.Sincos(theta)
		rayHitsGround := p.RayIntersectsGround(r, cosTheta)

		var distanceToGround float64
		var transmittanceToGround, groundAlbedo Spectrum
		if rayHitsGround {
			distanceToGround = p.DistanceToBottomAtmosphereBoundary(r, cosTheta)
			transmittanceToGround = m.Transmittance(t, r, cosTheta, distanceToGround, true)
			groundAlbedo = p.GroundAlbedo
		}

		for k := 0; k < 2*densitySamples; k++ {
			phi := (float64(k) + 0.5) * dPhi
			sinPhi, cosPhi := math.Sincos(phi)
			omegaI := r3.Vec{X: cosPhi * sinTheta, Y: sinPhi * sinTheta, Z: cosTheta}
			domegaI := dTheta * dPhi * sinTheta

			nu1 := r3.Dot(omegaS, omegaI)
			incident := m.ScatteringForOrder(in, r, omegaI.Z, muS, nu1, rayHitsGround, order-1)

			if rayHitsGround {
				groundNormal := r3.Unit(r3.Add(r3.Scale(r, zenith), r3.Scale(distanceToGround, omegaI)))
				groundIrradiance := m.Irradiance(in.Irradiance, p.BottomRadius, r3.Dot(groundNormal, omegaS))
				incident = incident.Add(transmittanceToGround.Mul(groundAlbedo).Mul(groundIrradiance).Scale(1 / math.Pi))
			}

			nu2 := r3.Dot(omega, omegaI)
			weight := p.RayleighScattering.Scale(rayleighDensity * RayleighPhase(nu2)).
				Add(p.MieScattering.Scale(mieDensity * MiePhase(p.MiePhaseFunctionG, nu2)))
			result = result.Add(incident.Mul(weight).Scale(domegaI))
		}
	}
	return result
}

// ScatteringDensityTexel computes texel (x, y, z) of the scattering density
// LUT for the given order (>= 2).
func (m *Model) ScatteringDensityTexel(t *Texture, in OrderInputs, x, y, z, order int) Spectrum {
	r, mu, muS, nu, _ := m.ScatteringTexelParams(x, y, z)
	return m.ComputeScatteringDensity(t, in, r, mu, muS, nu, order)
}

// ComputeMultipleScattering integrates a scattering density LUT along the
// view ray to the nearest atmosphere boundary.
func (m *Model) ComputeMultipleScattering(t, density *Texture, r, mu, muS, nu float64, intersectsGround bool) Spectrum {
	p := &m.Params
	dx := p.DistanceToNearestAtmosphereBoundary(r, mu, intersectsGround) / scatteringSamples
	var result Spectrum
	for i := 0; i <= scatteringSamples; i++ {
		di := float64(i) * dx
		ri := p.ClampRadius(math.Sqrt(di*di + 2*r*mu*di + r*r))
		mui := ClampCosine((r*mu + di) / ri)
		muSi := ClampCosine((r*muS + di*nu) / ri)
		sample := m.Scattering(density, ri, mui, muSi, nu, intersectsGround).
			Mul(m.Transmittance(t, r, mu, di, intersectsGround)).Scale(dx)
		weight := 1.0
		if i == 0 || i == scatteringSamples {
			weight = 0.5
		}
		result = result.Add(sample.Scale(weight))
	}
	return result
}

// MultipleScatteringTexel computes texel (x, y, z) of the delta multiple
// scattering LUT and returns nu so callers can divide out the Rayleigh phase.
func (m *Model) MultipleScatteringTexel(t, density *Texture, x, y, z int) (Spectrum, float64) {
	r, mu, muS, nu, ground := m.ScatteringTexelParams(x, y, z)
	return m.ComputeMultipleScattering(t, density, r, mu, muS, nu, ground), nu
}
