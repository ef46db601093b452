package viewer

import (
	"fmt"
	"math"

	"github.com/Faultbox/midgard-atmosphere/internal/skyimage"
	"github.com/Faultbox/midgard-atmosphere/internal/sun"
)

// Key is a viewer command bound to a keyboard key.
type Key int

const (
	KeyNone Key = iota
	KeyQuit
	KeyNextMode
	KeyAzimuthDown
	KeyAzimuthUp
	KeySunUp
	KeySunDown
	KeySliceUp
	KeySliceDown
	KeyExposureUp
	KeyExposureDown
	KeyProjection
	KeyLuminance
	KeyRecompute
	KeyCancel
	KeySave
)

// Action is what the application must do after a key press.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionRecompute
	ActionCancel
	ActionSave
)

// Mode selects what the viewer shows.
type Mode int

const (
	ModeSky Mode = iota
	ModeTransmittance
	ModeIrradiance
	ModeScattering
	ModeSingleMie
	modeCount
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSky:
		return "sky"
	case ModeTransmittance:
		return "transmittance"
	case ModeIrradiance:
		return "irradiance"
	case ModeScattering:
		return "scattering"
	case ModeSingleMie:
		return "single mie"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Is3D reports whether the mode shows a slice of a 3D LUT.
func (m Mode) Is3D() bool {
	return m == ModeScattering || m == ModeSingleMie
}

// lutExposure is the base exposure of each LUT view.
func (m Mode) lutExposure() float64 {
	switch m {
	case ModeTransmittance:
		return 2
	case ModeIrradiance:
		return 20
	default:
		return 10
	}
}

// State is the interactive state of the viewer.
type State struct {
	Mode       Mode
	SunZenith  float64
	SunAzimuth float64
	// ExposureScale multiplies the default exposure of the current view.
	ExposureScale float64
	// Slice selects the depth of 3D LUT views, 0 to 1.
	Slice      float64
	Projection skyimage.Projection
	Luminance  bool
	// HasSingleMie enables the single Mie view.
	HasSingleMie bool
	// Dirty is set when the sky image must be rendered again.
	Dirty bool
}

// NewState returns the initial state for a sun position.
func NewState(zenith, azimuth float64, projection skyimage.Projection, luminance bool) State {
	return State{
		Mode:          ModeSky,
		SunZenith:     zenith,
		SunAzimuth:    azimuth,
		ExposureScale: 1,
		Slice:         0.5,
		Projection:    projection,
		Luminance:     luminance,
		Dirty:         true,
	}
}

// Sun returns the sun position.
func (s *State) Sun() sun.Position {
	return sun.FromZenith(s.SunZenith, s.SunAzimuth)
}

// Exposure returns the exposure of the current view.
func (s *State) Exposure(configured float64) float64 {
	base := configured
	if s.Mode != ModeSky || base == 0 {
		base = s.Mode.lutExposure()
		if s.Mode == ModeSky {
			base = skyimage.DefaultExposure(s.Luminance)
		}
	}
	return base * s.ExposureScale
}

// HandleKey updates the state for a key press and returns the action the
// application must take.
func (s *State) HandleKey(k Key) Action {
	switch k {
	case KeyQuit:
		return ActionQuit
	case KeyRecompute:
		return ActionRecompute
	case KeyCancel:
		return ActionCancel
	case KeySave:
		return ActionSave
	case KeyNextMode:
		s.Mode = (s.Mode + 1) % modeCount
		if s.Mode == ModeSingleMie && !s.HasSingleMie {
			s.Mode = (s.Mode + 1) % modeCount
		}
		s.Dirty = true
	case KeyAzimuthDown:
		s.SunAzimuth = math.Mod(s.SunAzimuth+355, 360)
		s.Dirty = true
	case KeyAzimuthUp:
		s.SunAzimuth = math.Mod(s.SunAzimuth+5, 360)
		s.Dirty = true
	case KeySunUp:
		s.SunZenith = math.Max(s.SunZenith-1, 0)
		s.Dirty = true
	case KeySunDown:
		s.SunZenith = math.Min(s.SunZenith+1, 120)
		s.Dirty = true
	case KeySliceUp:
		s.Slice = math.Min(s.Slice+1.0/32, 1)
	case KeySliceDown:
		s.Slice = math.Max(s.Slice-1.0/32, 0)
	case KeyExposureUp:
		s.ExposureScale *= 1.25
		s.Dirty = true
	case KeyExposureDown:
		s.ExposureScale /= 1.25
		s.Dirty = true
	case KeyProjection:
		if s.Projection == skyimage.Fisheye {
			s.Projection = skyimage.Panorama
		} else {
			s.Projection = skyimage.Fisheye
		}
		s.Dirty = true
	case KeyLuminance:
		s.Luminance = !s.Luminance
		s.Dirty = true
	}
	return ActionNone
}

// Title formats the window title. done and total describe precomputation
// progress; total 0 means nothing is running.
func (s *State) Title(done, total int, version uint64) string {
	title := fmt.Sprintf("skyview - %s", s.Mode)
	switch s.Mode {
	case ModeSky:
		unit := "radiance"
		if s.Luminance {
			unit = "luminance"
		}
		title += fmt.Sprintf(" (%s, %s, sun zenith %.0f azimuth %.0f)", s.Projection, unit, s.SunZenith, s.SunAzimuth)
	case ModeScattering, ModeSingleMie:
		title += fmt.Sprintf(" (slice %.2f)", s.Slice)
	}
	if total > 0 {
		title += fmt.Sprintf(" - precomputing %d/%d", done, total)
	} else if version > 0 {
		title += fmt.Sprintf(" - LUT v%d", version)
	}
	return title
}
