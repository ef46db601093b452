// Package skyimage renders sky images on the CPU from a finished LUT set.
package skyimage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
)

// ErrInvalidSize is returned for images without pixels.
var ErrInvalidSize = errors.New("invalid image size")

// Projection maps pixels to view directions.
type Projection int

const (
	// Fisheye is an equidistant upper hemisphere with the zenith at the
	// center, north up and east left.
	Fisheye Projection = iota
	// Panorama is equirectangular: azimuth 0..360 left to right and
	// elevation 90..-90 top to bottom.
	Panorama
)

// String returns the projection name.
func (p Projection) String() string {
	switch p {
	case Fisheye:
		return "fisheye"
	case Panorama:
		return "panorama"
	}
	return fmt.Sprintf("projection(%d)", int(p))
}

// ParseProjection is the inverse of Projection.String.
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "fisheye", "":
		return Fisheye, nil
	case "panorama":
		return Panorama, nil
	}
	return 0, fmt.Errorf("unknown projection %q", s)
}

// Options controls a render. Sun is a unit vector in the local frame of the
// observer (X east, Y north, Z up).
type Options struct {
	Width      int
	Height     int
	Projection Projection
	// Altitude of the observer above the ground in meters.
	Altitude float64
	Sun      r3.Vec
	// Luminance renders photometric values instead of radiance.
	Luminance bool
	// ShadowLength occludes the first meters of every view ray from the sun.
	ShadowLength float64
	// HideSun omits the solar disc.
	HideSun bool
}

// Image is a linear HDR image, rows top to bottom.
type Image struct {
	Width  int
	Height int
	Pix    []atmosphere.Spectrum
}

// At returns the pixel at (x, y).
func (img *Image) At(x, y int) atmosphere.Spectrum {
	return img.Pix[y*img.Width+x]
}

// Renderer renders images from a sampler, one pixel per kernel invocation.
type Renderer struct {
	sampler *atmosphere.Sampler
	backend precompute.Backend
	log     *zap.Logger
}

// New returns a renderer. A nil backend renders serially and a nil logger
// discards output.
func New(sampler *atmosphere.Sampler, backend precompute.Backend, log *zap.Logger) *Renderer {
	if backend == nil {
		backend = precompute.SerialBackend{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{sampler: sampler, backend: backend, log: log.Named("skyimage")}
}

// Direction returns the view direction of pixel (x, y), and false for
// pixels outside the projection.
func Direction(p Projection, x, y, width, height int) (r3.Vec, bool) {
	u := (float64(x)+0.5)/float64(width)*2 - 1
	v := (float64(y)+0.5)/float64(height)*2 - 1
	switch p {
	case Panorama:
		azimuth := (u + 1) * math.Pi
		elevation := -v * math.Pi / 2
		return r3.Vec{
			X: math.Sin(azimuth) * math.Cos(elevation),
			Y: math.Cos(azimuth) * math.Cos(elevation),
			Z: math.Sin(elevation),
		}, true
	default:
		d := math.Hypot(u, v)
		if d > 1 {
			return r3.Vec{}, false
		}
		zenith := d * math.Pi / 2
		// North up, east left as seen from below.
		azimuth := math.Atan2(-u, -v)
		return r3.Vec{
			X: math.Sin(azimuth) * math.Sin(zenith),
			Y: math.Cos(azimuth) * math.Sin(zenith),
			Z: math.Cos(zenith),
		}, true
	}
}

// Render renders one image.
func (r *Renderer) Render(opts Options) (*Image, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if r3.Norm(opts.Sun) == 0 {
		opts.Sun = r3.Vec{Z: 1}
	}
	opts.Sun = r3.Unit(opts.Sun)

	start := time.Now()
	img := &Image{Width: opts.Width, Height: opts.Height, Pix: make([]atmosphere.Spectrum, opts.Width*opts.Height)}
	params := r.sampler.Model().Params
	camera := r3.Vec{Z: params.BottomRadius + math.Max(opts.Altitude, 0)}

	err := r.backend.Dispatch(precompute.Grid{Width: opts.Width, Height: opts.Height, Depth: 1}, func(x, y, _ int) {
		view, ok := Direction(opts.Projection, x, y, opts.Width, opts.Height)
		if !ok {
			return
		}
		img.Pix[y*opts.Width+x] = r.shade(camera, view, &opts)
	})
	if err != nil {
		return nil, fmt.Errorf("rendering sky: %w", err)
	}

	r.log.Debug("sky rendered",
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Stringer("projection", opts.Projection),
		zap.Duration("elapsed", time.Since(start)))
	return img, nil
}

// shade returns the radiance (or luminance) reaching camera along view.
func (r *Renderer) shade(camera, view r3.Vec, opts *Options) atmosphere.Spectrum {
	s := r.sampler
	params := s.Model().Params

	if d, ok := groundDistance(camera, view, params.BottomRadius); ok {
		point := r3.Add(camera, r3.Scale(d, view))
		normal := r3.Unit(point)
		var sunE, skyE, inscatter, transmittance atmosphere.Spectrum
		if opts.Luminance {
			sunE, skyE = s.SunAndSkyIlluminance(point, normal, opts.Sun)
			inscatter, transmittance = s.SkyLuminanceToPoint(camera, point, opts.ShadowLength, opts.Sun)
		} else {
			sunE, skyE = s.SunAndSkyIrradiance(point, normal, opts.Sun)
			inscatter, transmittance = s.SkyRadianceToPoint(camera, point, opts.ShadowLength, opts.Sun)
		}
		ground := params.GroundAlbedo.Scale(1 / math.Pi).Mul(sunE.Add(skyE))
		return ground.Mul(transmittance).Add(inscatter)
	}

	var sky, transmittance atmosphere.Spectrum
	if opts.Luminance {
		sky, transmittance = s.SkyLuminance(camera, view, opts.ShadowLength, opts.Sun)
	} else {
		sky, transmittance = s.SkyRadiance(camera, view, opts.ShadowLength, opts.Sun)
	}
	if !opts.HideSun && r3.Dot(view, opts.Sun) > math.Cos(params.SunAngularRadius) {
		disc := s.SolarRadiance()
		if opts.Luminance {
			disc = s.SolarLuminance()
		}
		sky = sky.Add(disc.Mul(transmittance))
	}
	return sky
}

// groundDistance returns the distance along view to the bottom sphere.
func groundDistance(camera, view r3.Vec, bottom float64) (float64, bool) {
	r := r3.Norm(camera)
	rMu := r3.Dot(camera, view)
	disc := rMu*rMu - r*r + bottom*bottom
	if disc < 0 {
		return 0, false
	}
	d := -rMu - math.Sqrt(disc)
	return d, d > 0
}

// ToneMap converts an HDR image to 8-bit sRGB with an exponential curve:
// 1 - exp(-exposure*L). Pixels outside the projection stay black.
func ToneMap(img *Image, exposure float64) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			l := img.At(x, y)
			c := colorful.LinearRgb(
				1-math.Exp(-exposure*l[0]),
				1-math.Exp(-exposure*l[1]),
				1-math.Exp(-exposure*l[2]),
			).Clamped()
			r, g, b := c.RGB255()
			out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out
}

// DefaultExposure returns the exposure used when none is configured.
func DefaultExposure(luminance bool) float64 {
	if luminance {
		return 1e-4
	}
	return 10
}

// WritePNG tone maps img and writes it to path.
func WritePNG(path string, img *Image, exposure float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}
	if err := png.Encode(f, ToneMap(img, exposure)); err != nil {
		f.Close()
		return fmt.Errorf("encoding png: %w", err)
	}
	return f.Close()
}
