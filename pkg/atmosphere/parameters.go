// Package atmosphere implements a precomputed model of light scattering in a
// planetary atmosphere: the physical parameters, the texture parametrizations
// of the lookup tables, the per-texel math of every precomputation stage and
// the runtime functions that reconstruct sky radiance, aerial perspective and
// surface illuminance from the finished tables.
//
// Lengths are in meters, scattering and extinction coefficients in 1/m.
package atmosphere

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid atmosphere configuration")

// ConfigError reports an invalid atmosphere parameter or texture size.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// DensityProfileLayer is one altitude band of a density profile:
// ExpTerm*exp(ExpScale*h) + LinearTerm*h + ConstantTerm, clamped to [0,1].
type DensityProfileLayer struct {
	Width        float64 `yaml:"width"`
	ExpTerm      float64 `yaml:"exp_term"`
	ExpScale     float64 `yaml:"exp_scale"`
	LinearTerm   float64 `yaml:"linear_term"`
	ConstantTerm float64 `yaml:"constant_term"`
}

// Density returns the relative density at the given altitude.
func (l DensityProfileLayer) Density(altitude float64) float64 {
	d := l.ExpTerm*math.Exp(l.ExpScale*altitude) + l.LinearTerm*altitude + l.ConstantTerm
	return clamp(d, 0, 1)
}

// DensityProfile is made of two layers. Layer 0 applies below its Width,
// layer 1 above it.
type DensityProfile struct {
	Layers [2]DensityProfileLayer `yaml:"layers"`
}

// Density returns the relative density of the species at the given altitude.
func (p DensityProfile) Density(altitude float64) float64 {
	if altitude < p.Layers[0].Width {
		return p.Layers[0].Density(altitude)
	}
	return p.Layers[1].Density(altitude)
}

// ExponentialProfile returns a single exponential profile with the given
// scale height.
func ExponentialProfile(scaleHeight float64) DensityProfile {
	return DensityProfile{Layers: [2]DensityProfileLayer{
		{},
		{ExpTerm: 1, ExpScale: -1 / scaleHeight},
	}}
}

// Parameters is the physical description of an atmosphere. It is read-only
// for the lifetime of a LUT set; changing it requires a new precomputation.
type Parameters struct {
	// SolarIrradiance at the top of the atmosphere.
	SolarIrradiance Spectrum `yaml:"solar_irradiance"`
	// SunAngularRadius in radians. Must be small (< 0.1).
	SunAngularRadius float64 `yaml:"sun_angular_radius"`
	BottomRadius     float64 `yaml:"bottom_radius"`
	TopRadius        float64 `yaml:"top_radius"`

	RayleighDensity    DensityProfile `yaml:"rayleigh_density"`
	RayleighScattering Spectrum       `yaml:"rayleigh_scattering"`

	MieDensity        DensityProfile `yaml:"mie_density"`
	MieScattering     Spectrum       `yaml:"mie_scattering"`
	MieExtinction     Spectrum       `yaml:"mie_extinction"`
	MiePhaseFunctionG float64        `yaml:"mie_phase_function_g"`

	AbsorptionDensity    DensityProfile `yaml:"absorption_density"`
	AbsorptionExtinction Spectrum       `yaml:"absorption_extinction"`

	GroundAlbedo Spectrum `yaml:"ground_albedo"`
	// MinCosSun is the cosine of the largest sun zenith angle stored in the
	// scattering LUT.
	MinCosSun float64 `yaml:"min_cos_sun"`

	SunRadianceToLuminance Spectrum `yaml:"sun_radiance_to_luminance"`
	SkyRadianceToLuminance Spectrum `yaml:"sky_radiance_to_luminance"`
	LuminanceScale         float64  `yaml:"luminance_scale"`
}

// Earth returns the reference Earth atmosphere.
func Earth() Parameters {
	return Parameters{
		SolarIrradiance:    Spectrum{1.474, 1.8504, 1.91198},
		SunAngularRadius:   0.004675,
		BottomRadius:       6360000,
		TopRadius:          6420000,
		RayleighDensity:    ExponentialProfile(8000),
		RayleighScattering: Spectrum{5.802e-6, 13.558e-6, 33.1e-6},
		MieDensity:         ExponentialProfile(1200),
		MieScattering:      Uniform(3.996e-6),
		MieExtinction:      Uniform(4.44e-6),
		MiePhaseFunctionG:  0.8,
		// Ozone: a tent between 10 km and 40 km peaking at 25 km.
		AbsorptionDensity: DensityProfile{Layers: [2]DensityProfileLayer{
			{Width: 25000, LinearTerm: 1.0 / 15000, ConstantTerm: -2.0 / 3.0},
			{LinearTerm: -1.0 / 15000, ConstantTerm: 8.0 / 3.0},
		}},
		AbsorptionExtinction:   Spectrum{0.65e-6, 1.881e-6, 0.085e-6},
		GroundAlbedo:           Uniform(0.1),
		MinCosSun:              math.Cos(120 * math.Pi / 180),
		SunRadianceToLuminance: Spectrum{98242.786222, 69954.398112, 66475.012354},
		SkyRadianceToLuminance: Spectrum{114974.916437, 71305.954816, 65310.548555},
		LuminanceScale:         1,
	}
}

// Validate checks the invariants of the parameters.
func (p *Parameters) Validate() error {
	scalars := []struct {
		name  string
		value float64
	}{
		{"sun_angular_radius", p.SunAngularRadius},
		{"bottom_radius", p.BottomRadius},
		{"top_radius", p.TopRadius},
		{"mie_phase_function_g", p.MiePhaseFunctionG},
		{"min_cos_sun", p.MinCosSun},
		{"luminance_scale", p.LuminanceScale},
	}
	for _, s := range scalars {
		if math.IsNaN(s.value) || math.IsInf(s.value, 0) {
			return &ConfigError{Field: s.name, Reason: "must be finite"}
		}
	}

	if p.BottomRadius <= 0 {
		return &ConfigError{Field: "bottom_radius", Reason: "must be positive"}
	}
	if p.BottomRadius >= p.TopRadius {
		return &ConfigError{Field: "top_radius", Reason: "must be greater than bottom_radius"}
	}
	if p.SunAngularRadius <= 0 || p.SunAngularRadius >= 0.1 {
		return &ConfigError{Field: "sun_angular_radius", Reason: "must be in (0, 0.1)"}
	}
	if p.MiePhaseFunctionG <= -1 || p.MiePhaseFunctionG >= 1 {
		return &ConfigError{Field: "mie_phase_function_g", Reason: "must be in (-1, 1)"}
	}
	if p.MinCosSun < -1 || p.MinCosSun > 1 {
		return &ConfigError{Field: "min_cos_sun", Reason: "must be in [-1, 1]"}
	}
	if p.LuminanceScale < 0 {
		return &ConfigError{Field: "luminance_scale", Reason: "must not be negative"}
	}

	spectra := []struct {
		name  string
		value Spectrum
	}{
		{"solar_irradiance", p.SolarIrradiance},
		{"rayleigh_scattering", p.RayleighScattering},
		{"mie_scattering", p.MieScattering},
		{"mie_extinction", p.MieExtinction},
		{"absorption_extinction", p.AbsorptionExtinction},
		{"ground_albedo", p.GroundAlbedo},
		{"sun_radiance_to_luminance", p.SunRadianceToLuminance},
		{"sky_radiance_to_luminance", p.SkyRadianceToLuminance},
	}
	for _, s := range spectra {
		if !s.value.IsFinite() {
			return &ConfigError{Field: s.name, Reason: "must be finite"}
		}
		for _, v := range s.value {
			if v < 0 {
				return &ConfigError{Field: s.name, Reason: "must not be negative"}
			}
		}
	}

	profiles := []struct {
		name    string
		profile DensityProfile
	}{
		{"rayleigh_density", p.RayleighDensity},
		{"mie_density", p.MieDensity},
		{"absorption_density", p.AbsorptionDensity},
	}
	for _, pr := range profiles {
		for i, l := range pr.profile.Layers {
			for _, v := range []float64{l.Width, l.ExpTerm, l.ExpScale, l.LinearTerm, l.ConstantTerm} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return &ConfigError{Field: fmt.Sprintf("%s.layers[%d]", pr.name, i), Reason: "must be finite"}
				}
			}
			if l.Width < 0 {
				return &ConfigError{Field: fmt.Sprintf("%s.layers[%d].width", pr.name, i), Reason: "must not be negative"}
			}
		}
	}

	return nil
}
