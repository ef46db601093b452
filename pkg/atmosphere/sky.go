package atmosphere

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// horizonEpsilon keeps aerial perspective lookups away from the exact
// horizon, where the two halves of the mu axis meet. Rays closer than this
// blend a lookup on each side.
const horizonEpsilon = 0.004

// ErrNoLUTs is returned by NewSampler when no LUT set is given.
var ErrNoLUTs = errors.New("no LUT set")

// Sampler reconstructs radiance and irradiance from a finished LUT set.
// It holds no mutable state and is safe for concurrent use.
type Sampler struct {
	model *Model
	luts  *LUTSet
}

// NewSampler binds parameters to a finished LUT set. The parameters must be
// the ones the set was computed with.
func NewSampler(params Parameters, luts *LUTSet) (*Sampler, error) {
	if luts == nil {
		return nil, ErrNoLUTs
	}
	if err := luts.Validate(); err != nil {
		return nil, err
	}
	model, err := NewModel(params, luts.Sizes, luts.Features)
	if err != nil {
		return nil, err
	}
	return &Sampler{model: model, luts: luts}, nil
}

// Model returns the model the sampler evaluates.
func (s *Sampler) Model() *Model { return s.model }

// LUTs returns the sampled LUT set.
func (s *Sampler) LUTs() *LUTSet { return s.luts }

// snapToGround moves NaN or below-ground positions onto the bottom sphere.
func (s *Sampler) snapToGround(position r3.Vec) (r3.Vec, float64) {
	bottom := s.model.Params.BottomRadius
	r := r3.Norm(position)
	if math.IsNaN(r) || r == 0 {
		return r3.Scale(bottom, zenith), bottom
	}
	if r < bottom {
		return r3.Scale(bottom/r, position), bottom
	}
	return position, r
}

// enterAtmosphere advances a camera above the atmosphere to the point where
// the view ray enters it. ok is false when the ray misses the atmosphere.
func (s *Sampler) enterAtmosphere(camera, viewRay r3.Vec, r float64) (cam r3.Vec, rOut, rMu float64, ok bool) {
	top := s.model.Params.TopRadius
	rMu = r3.Dot(camera, viewRay)
	if r <= top {
		return camera, r, rMu, true
	}
	disc := rMu*rMu - r*r + top*top
	if disc < 0 {
		return camera, r, rMu, false
	}
	distanceToTop := -rMu - math.Sqrt(disc)
	if distanceToTop <= 0 {
		return camera, r, rMu, false
	}
	camera = r3.Add(camera, r3.Scale(distanceToTop, viewRay))
	return camera, top, rMu + distanceToTop, true
}

func (s *Sampler) higherOrder(r, mu, muS, nu float64, intersectsGround bool) Spectrum {
	return s.model.Scattering(s.luts.HigherOrderScattering, r, mu, muS, nu, intersectsGround)
}

// SkyRadiance returns the radiance of the sky seen from camera in the unit
// direction viewRay, and the transmittance to the top of the atmosphere (0
// for rays hitting the ground). The first shadowLength meters of the ray are
// treated as occluded from the sun. Positions are relative to the planet
// center.
func (s *Sampler) SkyRadiance(camera, viewRay r3.Vec, shadowLength float64, sun r3.Vec) (radiance, transmittance Spectrum) {
	m := s.model
	p := &m.Params

	camera, r := s.snapToGround(camera)
	camera, r, rMu, ok := s.enterAtmosphere(camera, viewRay, r)
	if !ok {
		return Spectrum{}, Uniform(1)
	}
	mu := ClampCosine(rMu / r)
	muS := ClampCosine(r3.Dot(camera, sun) / r)
	nu := ClampCosine(r3.Dot(viewRay, sun))
	ground := p.RayIntersectsGround(r, mu)

	if !ground {
		transmittance = m.TransmittanceToTopAtmosphereBoundary(s.luts.Transmittance, r, mu)
	}

	var scattering, singleMie Spectrum
	if shadowLength == 0 {
		scattering, singleMie = m.CombinedScattering(s.luts, r, mu, muS, nu, ground)
	} else {
		d := shadowLength
		rP := p.ClampRadius(math.Sqrt(d*d + 2*r*mu*d + r*r))
		muP := (r*mu + d) / rP
		muSP := (r*muS + d*nu) / rP
		scatteringP, singleMieP := m.CombinedScattering(s.luts, rP, muP, muSP, nu, ground)
		shadowTransmittance := m.Transmittance(s.luts.Transmittance, r, mu, d, ground)
		if s.luts.HigherOrderScattering != nil {
			// Only single scattering is occluded; higher orders come unshadowed
			// from the camera.
			higher := s.higherOrder(r, mu, muS, nu, ground)
			higherP := s.higherOrder(rP, muP, muSP, nu, ground)
			scattering = higher.Add(scatteringP.Sub(higherP).Mul(shadowTransmittance))
		} else {
			scattering = scatteringP.Mul(shadowTransmittance)
		}
		singleMie = singleMieP.Mul(shadowTransmittance)
	}

	radiance = scattering.Scale(RayleighPhase(nu)).
		Add(singleMie.Scale(MiePhase(p.MiePhaseFunctionG, nu)))
	return radiance, transmittance
}

// clipSegment clips the segment camera-point against the bottom sphere.
// ok is false when both ends are below the ground.
func (s *Sampler) clipSegment(camera, point r3.Vec) (r3.Vec, r3.Vec, bool) {
	bottom := s.model.Params.BottomRadius
	rc := r3.Norm(camera)
	rp := r3.Norm(point)
	if math.IsNaN(rc) {
		camera, rc = r3.Scale(bottom, zenith), bottom
	}
	camBelow := rc < bottom
	pointBelow := rp < bottom
	if camBelow && pointBelow {
		return camera, point, false
	}
	if !camBelow && !pointBelow {
		return camera, point, true
	}

	seg := r3.Sub(point, camera)
	length := r3.Norm(seg)
	if length == 0 {
		return camera, point, false
	}
	v := r3.Scale(1/length, seg)
	cv := r3.Dot(camera, v)
	disc := cv*cv - rc*rc + bottom*bottom
	if camBelow {
		if disc < 0 {
			camera, _ = s.snapToGround(camera)
			return camera, point, true
		}
		exit := -cv + math.Sqrt(disc)
		return r3.Add(camera, r3.Scale(math.Min(exit, length), v)), point, true
	}
	if disc < 0 {
		point, _ = s.snapToGround(point)
		return camera, point, true
	}
	entry := -cv - math.Sqrt(disc)
	return camera, r3.Add(camera, r3.Scale(clamp(entry, 0, length), v)), true
}

// SkyRadianceToPoint returns the radiance scattered towards the camera along
// the segment from camera to point, and the transmittance of that segment.
// Light on the last shadowLength meters before point is treated as occluded.
func (s *Sampler) SkyRadianceToPoint(camera, point r3.Vec, shadowLength float64, sun r3.Vec) (radiance, transmittance Spectrum) {
	m := s.model
	p := &m.Params

	camera, point, ok := s.clipSegment(camera, point)
	if !ok {
		return Spectrum{}, Uniform(1)
	}
	seg := r3.Sub(point, camera)
	if r3.Norm(seg) == 0 {
		return Spectrum{}, Uniform(1)
	}
	viewRay := r3.Unit(seg)

	camera, r := s.snapToGround(camera)
	camera, r, rMu, ok := s.enterAtmosphere(camera, viewRay, r)
	if !ok {
		return Spectrum{}, Uniform(1)
	}
	mu := ClampCosine(rMu / r)
	muS := ClampCosine(r3.Dot(camera, sun) / r)
	nu := ClampCosine(r3.Dot(viewRay, sun))
	d := r3.Norm(r3.Sub(point, camera))
	if r3.Dot(r3.Sub(point, camera), viewRay) <= 0 {
		// Point lies outside the atmosphere, before the entry point.
		return Spectrum{}, Uniform(1)
	}
	ground := p.RayIntersectsGround(r, mu)

	muHorizon := -SafeSqrt(1 - (p.BottomRadius/r)*(p.BottomRadius/r))
	if math.Abs(mu-muHorizon) >= horizonEpsilon {
		return s.segmentRadiance(r, mu, muS, nu, d, shadowLength, ground)
	}
	below, belowT := s.segmentRadiance(r, muHorizon-horizonEpsilon, muS, nu, d, shadowLength, true)
	above, aboveT := s.segmentRadiance(r, muHorizon+horizonEpsilon, muS, nu, d, shadowLength, false)
	w := (mu - muHorizon + horizonEpsilon) / (2 * horizonEpsilon)
	radiance = below.Scale(1 - w).Add(above.Scale(w))
	transmittance = belowT.Scale(1 - w).Add(aboveT.Scale(w))
	return radiance, transmittance
}

// segmentRadiance differences the scattering lookups at both ends of a
// segment of length d starting at (r, mu).
func (s *Sampler) segmentRadiance(r, mu, muS, nu, d, shadowLength float64, ground bool) (radiance, transmittance Spectrum) {
	m := s.model
	p := &m.Params

	tex := s.luts.Transmittance
	transmittance = m.Transmittance(tex, r, mu, d, ground)

	scattering, singleMie, alpha := s.rawCombined(r, mu, muS, nu, ground)

	dP := math.Max(d-shadowLength, 0)
	rP := p.ClampRadius(math.Sqrt(dP*dP + 2*r*mu*dP + r*r))
	muP := (r*mu + dP) / rP
	muSP := (r*muS + dP*nu) / rP
	scatteringP, singleMieP, alphaP := s.rawCombined(rP, muP, muSP, nu, ground)

	shadowTransmittance := transmittance
	if shadowLength > 0 {
		shadowTransmittance = m.Transmittance(tex, r, mu, dP, ground)
	}

	if shadowLength > 0 && s.luts.HigherOrderScattering != nil {
		higher := s.higherOrder(r, mu, muS, nu, ground)
		higherP := s.higherOrder(rP, muP, muSP, nu, ground)
		rEnd, muEnd := p.pointAlongRay(r, mu, d)
		muSEnd := ClampCosine((r*muS + d*nu) / rEnd)
		higherEnd := s.higherOrder(rEnd, muEnd, muSEnd, nu, ground)
		single := scattering.Sub(higher).Sub(scatteringP.Sub(higherP).Mul(shadowTransmittance))
		scattering = higher.Sub(higherEnd.Mul(transmittance)).Add(single)
	} else {
		scattering = scattering.Sub(scatteringP.Mul(shadowTransmittance))
	}
	if s.luts.Features.CombinedScatteringTextures {
		singleMie = m.ExtrapolatedSingleMie(scattering, alpha-alphaP*shadowTransmittance[0])
	} else {
		singleMie = singleMie.Sub(singleMieP.Mul(shadowTransmittance))
	}
	singleMie = singleMie.Scale(smoothstep(0, 0.01, muS))

	radiance = scattering.Max(0).Scale(RayleighPhase(nu)).
		Add(singleMie.Max(0).Scale(MiePhase(p.MiePhaseFunctionG, nu)))
	return radiance, transmittance
}

// rawCombined looks up the scattering LUT without extrapolating single Mie,
// so that combined texels can be differenced before extrapolation.
func (s *Sampler) rawCombined(r, mu, muS, nu float64, intersectsGround bool) (scattering, singleMie Spectrum, alpha float64) {
	m := s.model
	if s.luts.Features.CombinedScatteringTextures {
		scattering, alpha = m.sampleScattering(s.luts.Scattering, r, mu, muS, nu, intersectsGround)
		return scattering, Spectrum{}, alpha
	}
	scattering = m.Scattering(s.luts.Scattering, r, mu, muS, nu, intersectsGround)
	singleMie = m.Scattering(s.luts.SingleMieScattering, r, mu, muS, nu, intersectsGround)
	return scattering, singleMie, 0
}

// SunAndSkyIrradiance returns the direct sun and the sky irradiance received
// at point by a surface with the given unit normal.
func (s *Sampler) SunAndSkyIrradiance(point, normal, sun r3.Vec) (sunIrradiance, skyIrradiance Spectrum) {
	m := s.model
	p := &m.Params
	point, r := s.snapToGround(point)
	r = p.ClampRadius(r)
	muS := ClampCosine(r3.Dot(point, sun) / r)

	skyIrradiance = m.Irradiance(s.luts.Irradiance, r, muS).
		Scale((1 + r3.Dot(normal, point)/r) * 0.5)
	sunIrradiance = p.SolarIrradiance.
		Mul(m.TransmittanceToSun(s.luts.Transmittance, r, muS)).
		Scale(math.Max(r3.Dot(normal, sun), 0))
	return sunIrradiance, skyIrradiance
}

// SolarRadiance returns the radiance of the solar disc outside the atmosphere.
func (s *Sampler) SolarRadiance() Spectrum {
	p := &s.model.Params
	return p.SolarIrradiance.Scale(1 / (math.Pi * p.SunAngularRadius * p.SunAngularRadius))
}

func (s *Sampler) skyLuminance(radiance Spectrum) Spectrum {
	p := &s.model.Params
	return radiance.Mul(p.SkyRadianceToLuminance).Scale(p.LuminanceScale)
}

func (s *Sampler) sunLuminance(radiance Spectrum) Spectrum {
	p := &s.model.Params
	return radiance.Mul(p.SunRadianceToLuminance).Scale(p.LuminanceScale)
}

// SkyLuminance is SkyRadiance converted to luminance.
func (s *Sampler) SkyLuminance(camera, viewRay r3.Vec, shadowLength float64, sun r3.Vec) (luminance, transmittance Spectrum) {
	radiance, transmittance := s.SkyRadiance(camera, viewRay, shadowLength, sun)
	return s.skyLuminance(radiance), transmittance
}

// SkyLuminanceToPoint is SkyRadianceToPoint converted to luminance.
func (s *Sampler) SkyLuminanceToPoint(camera, point r3.Vec, shadowLength float64, sun r3.Vec) (luminance, transmittance Spectrum) {
	radiance, transmittance := s.SkyRadianceToPoint(camera, point, shadowLength, sun)
	return s.skyLuminance(radiance), transmittance
}

// SunAndSkyIlluminance is SunAndSkyIrradiance converted to illuminance.
func (s *Sampler) SunAndSkyIlluminance(point, normal, sun r3.Vec) (sunIlluminance, skyIlluminance Spectrum) {
	sunIrradiance, skyIrradiance := s.SunAndSkyIrradiance(point, normal, sun)
	return s.sunLuminance(sunIrradiance), s.skyLuminance(skyIrradiance)
}

// SolarLuminance returns the luminance of the solar disc.
func (s *Sampler) SolarLuminance() Spectrum {
	return s.sunLuminance(s.SolarRadiance())
}
