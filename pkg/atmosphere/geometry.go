package atmosphere

import "math"

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}

// smoothstep matches the GLSL builtin. edge0 == edge1 is a hard step.
func smoothstep(edge0, edge1, x float64) float64 {
	if edge0 == edge1 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

// ClampCosine clamps mu into [-1, 1].
func ClampCosine(mu float64) float64 {
	return clamp(mu, -1, 1)
}

// ClampDistance clamps d to be non-negative.
func ClampDistance(d float64) float64 {
	return math.Max(d, 0)
}

// SafeSqrt returns sqrt(max(a, 0)).
func SafeSqrt(a float64) float64 {
	return math.Sqrt(math.Max(a, 0))
}

// ClampRadius clamps r into [BottomRadius, TopRadius]. NaN maps to BottomRadius.
func (p *Parameters) ClampRadius(r float64) float64 {
	if math.IsNaN(r) {
		return p.BottomRadius
	}
	return clamp(r, p.BottomRadius, p.TopRadius)
}

// DistanceToTopAtmosphereBoundary returns the distance from a point at radius
// r along a ray with zenith cosine mu to the top atmosphere boundary.
func (p *Parameters) DistanceToTopAtmosphereBoundary(r, mu float64) float64 {
	disc := r*r*(mu*mu-1) + p.TopRadius*p.TopRadius
	return ClampDistance(-r*mu + SafeSqrt(disc))
}

// DistanceToBottomAtmosphereBoundary returns the distance to the ground along
// the ray. Only meaningful when RayIntersectsGround(r, mu).
func (p *Parameters) DistanceToBottomAtmosphereBoundary(r, mu float64) float64 {
	disc := r*r*(mu*mu-1) + p.BottomRadius*p.BottomRadius
	return ClampDistance(-r*mu - SafeSqrt(disc))
}

// RayIntersectsGround reports whether the ray (r, mu) hits the ground sphere.
func (p *Parameters) RayIntersectsGround(r, mu float64) bool {
	return mu < 0 && r*r*(mu*mu-1)+p.BottomRadius*p.BottomRadius >= 0
}

// DistanceToNearestAtmosphereBoundary picks the ground or the top boundary.
func (p *Parameters) DistanceToNearestAtmosphereBoundary(r, mu float64, intersectsGround bool) float64 {
	if intersectsGround {
		return p.DistanceToBottomAtmosphereBoundary(r, mu)
	}
	return p.DistanceToTopAtmosphereBoundary(r, mu)
}

// horizonExtent is sqrt(top² - bottom²), the distance to the top boundary of
// a horizontal ray at ground level.
func (p *Parameters) horizonExtent() float64 {
	return math.Sqrt(p.TopRadius*p.TopRadius - p.BottomRadius*p.BottomRadius)
}

// pointAlongRay returns the radius and zenith cosine at distance d along the
// ray (r, mu).
func (p *Parameters) pointAlongRay(r, mu, d float64) (rd, mud float64) {
	rd = p.ClampRadius(math.Sqrt(d*d + 2*r*mu*d + r*r))
	if rd == 0 {
		return rd, 1
	}
	return rd, ClampCosine((r*mu + d) / rd)
}
