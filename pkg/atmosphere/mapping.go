package atmosphere

import "math"

// TextureCoordFromUnitRange maps x in [0,1] to texel-center coordinates of a
// texture of n texels, so that 0 and 1 land on the first and last centers.
func TextureCoordFromUnitRange(x float64, n int) float64 {
	return 0.5/float64(n) + x*(1-1/float64(n))
}

// UnitRangeFromTextureCoord is the inverse of TextureCoordFromUnitRange.
func UnitRangeFromTextureCoord(u float64, n int) float64 {
	return (u - 0.5/float64(n)) / (1 - 1/float64(n))
}

// ScatteringCoord is a normalized 4D scattering LUT coordinate.
type ScatteringCoord struct {
	Nu, MuS, Mu, R float64
}

// TransmittanceUV maps (r, mu) to transmittance LUT coordinates.
func (m *Model) TransmittanceUV(r, mu float64) (u, v float64) {
	p := &m.Params
	h := p.horizonExtent()
	rho := SafeSqrt(r*r - p.BottomRadius*p.BottomRadius)
	d := p.DistanceToTopAtmosphereBoundary(r, mu)
	dMin := p.TopRadius - r
	dMax := rho + h
	xMu := 0.0
	if dMax != dMin {
		xMu = (d - dMin) / (dMax - dMin)
	}
	xR := rho / h
	return TextureCoordFromUnitRange(xMu, m.Sizes.TransmittanceWidth),
		TextureCoordFromUnitRange(xR, m.Sizes.TransmittanceHeight)
}

// TransmittanceRMu maps transmittance LUT coordinates back to (r, mu).
func (m *Model) TransmittanceRMu(u, v float64) (r, mu float64) {
	p := &m.Params
	xMu := UnitRangeFromTextureCoord(u, m.Sizes.TransmittanceWidth)
	xR := UnitRangeFromTextureCoord(v, m.Sizes.TransmittanceHeight)
	h := p.horizonExtent()
	rho := h * xR
	r = math.Sqrt(rho*rho + p.BottomRadius*p.BottomRadius)
	dMin := p.TopRadius - r
	dMax := rho + h
	d := dMin + xMu*(dMax-dMin)
	if d == 0 {
		return r, 1
	}
	return r, ClampCosine((h*h - rho*rho - d*d) / (2 * r * d))
}

// transmittanceTexelRMu returns (r, mu) at the center of texel (x, y).
func (m *Model) transmittanceTexelRMu(x, y int) (r, mu float64) {
	u := (float64(x) + 0.5) / float64(m.Sizes.TransmittanceWidth)
	v := (float64(y) + 0.5) / float64(m.Sizes.TransmittanceHeight)
	return m.TransmittanceRMu(u, v)
}

// muSDistanceRatio is the normalized distance from the ground to the top
// boundary along a ray with zenith cosine muS.
func (m *Model) muSDistanceRatio(muS float64) float64 {
	p := &m.Params
	d := p.DistanceToTopAtmosphereBoundary(p.BottomRadius, muS)
	dMin := p.TopRadius - p.BottomRadius
	dMax := p.horizonExtent()
	return (d - dMin) / (dMax - dMin)
}

// ScatteringUVWZ maps a view/sun configuration to scattering LUT coordinates.
// Rays hitting the ground use the lower half of the mu axis, the others the
// upper half.
func (m *Model) ScatteringUVWZ(r, mu, muS, nu float64, intersectsGround bool) ScatteringCoord {
	p := &m.Params
	h := p.horizonExtent()
	rho := SafeSqrt(r*r - p.BottomRadius*p.BottomRadius)
	uR := TextureCoordFromUnitRange(rho/h, m.Sizes.ScatteringR)

	rMu := r * mu
	disc := rMu*rMu - r*r + p.BottomRadius*p.BottomRadius
	halfMu := m.Sizes.ScatteringMu / 2
	var uMu float64
	if intersectsGround {
		d := -rMu - SafeSqrt(disc)
		dMin := r - p.BottomRadius
		dMax := rho
		x := 0.0
		if dMax != dMin {
			x = (d - dMin) / (dMax - dMin)
		}
		uMu = 0.5 - 0.5*TextureCoordFromUnitRange(x, halfMu)
	} else {
		d := -rMu + SafeSqrt(disc+h*h)
		dMin := p.TopRadius - r
		dMax := rho + h
		uMu = 0.5 + 0.5*TextureCoordFromUnitRange((d-dMin)/(dMax-dMin), halfMu)
	}

	a := m.muSDistanceRatio(muS)
	bigA := m.muSMinDistanceRatio
	x := 0.0
	if bigA > 0 {
		x = math.Max(1-a/bigA, 0) / (1 + a)
	}
	uMuS := TextureCoordFromUnitRange(x, m.Sizes.ScatteringMuS)

	return ScatteringCoord{Nu: (nu + 1) / 2, MuS: uMuS, Mu: uMu, R: uR}
}

// ScatteringRMuMuSNu maps scattering LUT coordinates back to the view/sun
// configuration.
func (m *Model) ScatteringRMuMuSNu(c ScatteringCoord) (r, mu, muS, nu float64, intersectsGround bool) {
	p := &m.Params
	h := p.horizonExtent()
	rho := h * UnitRangeFromTextureCoord(c.R, m.Sizes.ScatteringR)
	r = math.Sqrt(rho*rho + p.BottomRadius*p.BottomRadius)

	halfMu := m.Sizes.ScatteringMu / 2
	if c.Mu < 0.5 {
		dMin := r - p.BottomRadius
		dMax := rho
		d := dMin + (dMax-dMin)*UnitRangeFromTextureCoord(1-2*c.Mu, halfMu)
		if d == 0 {
			mu = -1
		} else {
			mu = ClampCosine(-(rho*rho + d*d) / (2 * r * d))
		}
		intersectsGround = true
	} else {
		dMin := p.TopRadius - r
		dMax := rho + h
		d := dMin + (dMax-dMin)*UnitRangeFromTextureCoord(2*c.Mu-1, halfMu)
		if d == 0 {
			mu = 1
		} else {
			mu = ClampCosine((h*h - rho*rho - d*d) / (2 * r * d))
		}
	}

	xMuS := UnitRangeFromTextureCoord(c.MuS, m.Sizes.ScatteringMuS)
	dMin := p.TopRadius - p.BottomRadius
	dMax := h
	bigA := m.muSMinDistanceRatio
	a := (bigA - xMuS*bigA) / (1 + xMuS*bigA)
	d := dMin + math.Min(a, bigA)*(dMax-dMin)
	if d == 0 {
		muS = 1
	} else {
		muS = ClampCosine((h*h - d*d) / (2 * p.BottomRadius * d))
	}

	nu = ClampCosine(c.Nu*2 - 1)
	return r, mu, muS, nu, intersectsGround
}

// ScatteringTexelParams returns the configuration at the center of texel
// (x, y, z) of a scattering-layout LUT. nu is clamped to the range allowed by
// mu and muS.
func (m *Model) ScatteringTexelParams(x, y, z int) (r, mu, muS, nu float64, intersectsGround bool) {
	sz := m.Sizes
	nuIndex := x / sz.ScatteringMuS
	muSIndex := x % sz.ScatteringMuS
	c := ScatteringCoord{
		Nu:  float64(nuIndex) / float64(sz.ScatteringNu-1),
		MuS: (float64(muSIndex) + 0.5) / float64(sz.ScatteringMuS),
		Mu:  (float64(y) + 0.5) / float64(sz.ScatteringMu),
		R:   (float64(z) + 0.5) / float64(sz.ScatteringR),
	}
	r, mu, muS, nu, intersectsGround = m.ScatteringRMuMuSNu(c)
	spread := math.Sqrt((1 - mu*mu) * (1 - muS*muS))
	nu = clamp(nu, mu*muS-spread, mu*muS+spread)
	return r, mu, muS, nu, intersectsGround
}

// IrradianceUV maps (r, muS) to irradiance LUT coordinates.
func (m *Model) IrradianceUV(r, muS float64) (u, v float64) {
	p := &m.Params
	xR := (r - p.BottomRadius) / (p.TopRadius - p.BottomRadius)
	xMuS := muS*0.5 + 0.5
	return TextureCoordFromUnitRange(xMuS, m.Sizes.IrradianceWidth),
		TextureCoordFromUnitRange(xR, m.Sizes.IrradianceHeight)
}

// IrradianceRMuS maps irradiance LUT coordinates back to (r, muS).
func (m *Model) IrradianceRMuS(u, v float64) (r, muS float64) {
	p := &m.Params
	xMuS := UnitRangeFromTextureCoord(u, m.Sizes.IrradianceWidth)
	xR := UnitRangeFromTextureCoord(v, m.Sizes.IrradianceHeight)
	r = p.BottomRadius + xR*(p.TopRadius-p.BottomRadius)
	return r, ClampCosine(2*xMuS - 1)
}

func (m *Model) irradianceTexelRMuS(x, y int) (r, muS float64) {
	u := (float64(x) + 0.5) / float64(m.Sizes.IrradianceWidth)
	v := (float64(y) + 0.5) / float64(m.Sizes.IrradianceHeight)
	return m.IrradianceRMuS(u, v)
}
