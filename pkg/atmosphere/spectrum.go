package atmosphere

import "math"

// Spectrum is an RGB triple of radiometric quantities (radiance, irradiance,
// coefficients or transmittance).
type Spectrum [3]float64

// Uniform returns a spectrum with the same value in every channel.
func Uniform(v float64) Spectrum {
	return Spectrum{v, v, v}
}

// Add returns s + o.
func (s Spectrum) Add(o Spectrum) Spectrum {
	return Spectrum{s[0] + o[0], s[1] + o[1], s[2] + o[2]}
}

// Sub returns s - o.
func (s Spectrum) Sub(o Spectrum) Spectrum {
	return Spectrum{s[0] - o[0], s[1] - o[1], s[2] - o[2]}
}

// Mul returns the componentwise product.
func (s Spectrum) Mul(o Spectrum) Spectrum {
	return Spectrum{s[0] * o[0], s[1] * o[1], s[2] * o[2]}
}

// Div returns the componentwise quotient. Channels with a zero divisor are 0.
func (s Spectrum) Div(o Spectrum) Spectrum {
	var r Spectrum
	for i := range s {
		if o[i] != 0 {
			r[i] = s[i] / o[i]
		}
	}
	return r
}

// Scale returns s * k.
func (s Spectrum) Scale(k float64) Spectrum {
	return Spectrum{s[0] * k, s[1] * k, s[2] * k}
}

// ExpNeg returns exp(-s) componentwise, used to turn optical depth into transmittance.
func (s Spectrum) ExpNeg() Spectrum {
	return Spectrum{math.Exp(-s[0]), math.Exp(-s[1]), math.Exp(-s[2])}
}

// Min returns the componentwise minimum of s and v.
func (s Spectrum) Min(v float64) Spectrum {
	return Spectrum{math.Min(s[0], v), math.Min(s[1], v), math.Min(s[2], v)}
}

// Max returns the componentwise maximum of s and v.
func (s Spectrum) Max(v float64) Spectrum {
	return Spectrum{math.Max(s[0], v), math.Max(s[1], v), math.Max(s[2], v)}
}

// Sum returns the sum of all channels.
func (s Spectrum) Sum() float64 {
	return s[0] + s[1] + s[2]
}

// IsZero reports whether every channel is zero.
func (s Spectrum) IsZero() bool {
	return s[0] == 0 && s[1] == 0 && s[2] == 0
}

// IsFinite reports whether no channel is NaN or infinite.
func (s Spectrum) IsFinite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
