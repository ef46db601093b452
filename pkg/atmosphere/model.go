package atmosphere

import "fmt"

// TextureSizes holds the resolution of every LUT.
type TextureSizes struct {
	TransmittanceWidth  int `yaml:"transmittance_width"`
	TransmittanceHeight int `yaml:"transmittance_height"`
	IrradianceWidth     int `yaml:"irradiance_width"`
	IrradianceHeight    int `yaml:"irradiance_height"`
	ScatteringR         int `yaml:"scattering_r"`
	ScatteringMu        int `yaml:"scattering_mu"`
	ScatteringMuS       int `yaml:"scattering_mu_s"`
	ScatteringNu        int `yaml:"scattering_nu"`
}

// DefaultTextureSizes returns the reference resolutions.
func DefaultTextureSizes() TextureSizes {
	return TextureSizes{
		TransmittanceWidth:  256,
		TransmittanceHeight: 64,
		IrradianceWidth:     64,
		IrradianceHeight:    16,
		ScatteringR:         32,
		ScatteringMu:        128,
		ScatteringMuS:       32,
		ScatteringNu:        8,
	}
}

// ScatteringWidth is the size of the combined (nu, mu_s) axis.
func (s TextureSizes) ScatteringWidth() int {
	return s.ScatteringNu * s.ScatteringMuS
}

// Validate checks every size is usable by the coordinate mappings.
func (s TextureSizes) Validate() error {
	sizes := []struct {
		name  string
		value int
	}{
		{"transmittance_width", s.TransmittanceWidth},
		{"transmittance_height", s.TransmittanceHeight},
		{"irradiance_width", s.IrradianceWidth},
		{"irradiance_height", s.IrradianceHeight},
		{"scattering_r", s.ScatteringR},
		{"scattering_mu", s.ScatteringMu},
		{"scattering_mu_s", s.ScatteringMuS},
		{"scattering_nu", s.ScatteringNu},
	}
	for _, sz := range sizes {
		if sz.value < 2 {
			return &ConfigError{Field: sz.name, Reason: fmt.Sprintf("must be at least 2, got %d", sz.value)}
		}
	}
	if s.ScatteringMu%2 != 0 || s.ScatteringMu < 4 {
		return &ConfigError{Field: "scattering_mu", Reason: fmt.Sprintf("must be even and at least 4, got %d", s.ScatteringMu)}
	}
	return nil
}

// Features toggles optional LUT encodings and layouts.
type Features struct {
	// LogEncodedTransmittance stores optical depth instead of transmittance.
	LogEncodedTransmittance bool `yaml:"log_encoded_transmittance"`
	// CombinedScatteringTextures packs single Mie red into the scattering alpha.
	CombinedScatteringTextures bool `yaml:"combined_scattering_textures"`
	// HigherOrderScatteringTexture keeps orders >= 2 in a separate LUT.
	HigherOrderScatteringTexture bool `yaml:"higher_order_scattering_texture"`
}

// ScatteringChannels returns the channel count of the scattering LUT.
func (f Features) ScatteringChannels() int {
	if f.CombinedScatteringTextures {
		return 4
	}
	return 3
}

// Model binds validated parameters to a LUT layout. It holds the per-texel
// kernels of every precomputation stage and is safe for concurrent use.
type Model struct {
	Params   Parameters
	Sizes    TextureSizes
	Features Features

	muSMinDistanceRatio float64
}

// NewModel validates the configuration and returns a Model.
func NewModel(params Parameters, sizes TextureSizes, features Features) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := sizes.Validate(); err != nil {
		return nil, err
	}
	m := &Model{Params: params, Sizes: sizes, Features: features}
	m.muSMinDistanceRatio = m.muSDistanceRatio(params.MinCosSun)
	return m, nil
}

// NewTransmittanceTexture allocates an empty transmittance LUT.
func (m *Model) NewTransmittanceTexture() *Texture {
	return NewTexture(m.Sizes.TransmittanceWidth, m.Sizes.TransmittanceHeight, 1, 3)
}

// NewIrradianceTexture allocates an empty irradiance LUT.
func (m *Model) NewIrradianceTexture() *Texture {
	return NewTexture(m.Sizes.IrradianceWidth, m.Sizes.IrradianceHeight, 1, 3)
}

// NewScatteringTexture allocates an empty 3-channel scattering-layout LUT.
func (m *Model) NewScatteringTexture() *Texture {
	return m.newScatteringTexture(3)
}

func (m *Model) newScatteringTexture(channels int) *Texture {
	return NewTexture(m.Sizes.ScatteringWidth(), m.Sizes.ScatteringMu, m.Sizes.ScatteringR, channels)
}

// LUTSet is a finished, read-only set of lookup tables.
type LUTSet struct {
	Sizes    TextureSizes
	Features Features
	// Orders is the number of scattering orders accumulated.
	Orders int
	// Version increases with every published precomputation.
	Version uint64

	Transmittance *Texture
	Irradiance    *Texture
	Scattering    *Texture
	// SingleMieScattering is nil when Features.CombinedScatteringTextures.
	SingleMieScattering *Texture
	// HigherOrderScattering is nil unless Features.HigherOrderScatteringTexture.
	HigherOrderScattering *Texture
}

// NewLUTSet allocates the final LUTs for the model's layout and features.
func (m *Model) NewLUTSet() *LUTSet {
	set := &LUTSet{
		Sizes:         m.Sizes,
		Features:      m.Features,
		Transmittance: m.NewTransmittanceTexture(),
		Irradiance:    m.NewIrradianceTexture(),
		Scattering:    m.newScatteringTexture(m.Features.ScatteringChannels()),
	}
	if !m.Features.CombinedScatteringTextures {
		set.SingleMieScattering = m.NewScatteringTexture()
	}
	if m.Features.HigherOrderScatteringTexture {
		set.HigherOrderScattering = m.NewScatteringTexture()
	}
	return set
}

// Validate checks the textures match the declared sizes and features.
func (s *LUTSet) Validate() error {
	check := func(name string, t *Texture, w, h, d, c int) error {
		if t == nil {
			return fmt.Errorf("%s LUT missing", name)
		}
		if t.Width != w || t.Height != h || t.Depth != d || t.Channels != c || len(t.Data) != w*h*d*c {
			return fmt.Errorf("%s LUT has shape %s, expected %dx%dx%dx%d", name, t.Shape(), w, h, d, c)
		}
		return nil
	}
	sz := s.Sizes
	if err := check("transmittance", s.Transmittance, sz.TransmittanceWidth, sz.TransmittanceHeight, 1, 3); err != nil {
		return err
	}
	if err := check("irradiance", s.Irradiance, sz.IrradianceWidth, sz.IrradianceHeight, 1, 3); err != nil {
		return err
	}
	if err := check("scattering", s.Scattering, sz.ScatteringWidth(), sz.ScatteringMu, sz.ScatteringR, s.Features.ScatteringChannels()); err != nil {
		return err
	}
	if !s.Features.CombinedScatteringTextures {
		if err := check("single mie", s.SingleMieScattering, sz.ScatteringWidth(), sz.ScatteringMu, sz.ScatteringR, 3); err != nil {
			return err
		}
	}
	if s.Features.HigherOrderScatteringTexture {
		if err := check("higher order", s.HigherOrderScattering, sz.ScatteringWidth(), sz.ScatteringMu, sz.ScatteringR, 3); err != nil {
			return err
		}
	}
	return nil
}
