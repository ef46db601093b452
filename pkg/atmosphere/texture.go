package atmosphere

import (
	"fmt"
	"math"
)

// Texture is a dense float32 lookup table. Data is row-major with x varying
// fastest: index = ((z*Height + y)*Width + x)*Channels + c.
type Texture struct {
	Width    int
	Height   int
	Depth    int
	Channels int
	Data     []float32
}

// NewTexture allocates a zeroed texture. Depth 1 makes a 2D texture.
func NewTexture(width, height, depth, channels int) *Texture {
	if depth < 1 {
		depth = 1
	}
	return &Texture{
		Width:    width,
		Height:   height,
		Depth:    depth,
		Channels: channels,
		Data:     make([]float32, width*height*depth*channels),
	}
}

// Texels returns the number of texels.
func (t *Texture) Texels() int {
	return t.Width * t.Height * t.Depth
}

// Shape returns a human-readable size, e.g. "256x64x1x3".
func (t *Texture) Shape() string {
	return fmt.Sprintf("%dx%dx%dx%d", t.Width, t.Height, t.Depth, t.Channels)
}

// Clear zeroes every texel.
func (t *Texture) Clear() {
	clear(t.Data)
}

// Clone returns a deep copy.
func (t *Texture) Clone() *Texture {
	c := *t
	c.Data = append([]float32(nil), t.Data...)
	return &c
}

// Equal reports whether both textures have the same shape and bit-identical data.
func (t *Texture) Equal(o *Texture) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Width != o.Width || t.Height != o.Height || t.Depth != o.Depth || t.Channels != o.Channels {
		return false
	}
	if len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Data {
		if math.Float32bits(t.Data[i]) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}

func (t *Texture) offset(x, y, z int) int {
	return ((z*t.Height+y)*t.Width + x) * t.Channels
}

// Texel returns the RGB channels and alpha (0 for 3-channel textures).
func (t *Texture) Texel(x, y, z int) (Spectrum, float64) {
	i := t.offset(x, y, z)
	rgb := Spectrum{float64(t.Data[i]), float64(t.Data[i+1]), float64(t.Data[i+2])}
	if t.Channels < 4 {
		return rgb, 0
	}
	return rgb, float64(t.Data[i+3])
}

// SetTexel overwrites a texel. Alpha is ignored for 3-channel textures.
func (t *Texture) SetTexel(x, y, z int, rgb Spectrum, alpha float64) {
	i := t.offset(x, y, z)
	t.Data[i] = float32(rgb[0])
	t.Data[i+1] = float32(rgb[1])
	t.Data[i+2] = float32(rgb[2])
	if t.Channels >= 4 {
		t.Data[i+3] = float32(alpha)
	}
}

// AddTexel accumulates into a texel.
func (t *Texture) AddTexel(x, y, z int, rgb Spectrum, alpha float64) {
	i := t.offset(x, y, z)
	t.Data[i] += float32(rgb[0])
	t.Data[i+1] += float32(rgb[1])
	t.Data[i+2] += float32(rgb[2])
	if t.Channels >= 4 {
		t.Data[i+3] += float32(alpha)
	}
}

// texelCoord converts a normalized coordinate into the two texel indices to
// blend and the weight of the second one, clamping to the edges.
func texelCoord(u float64, n int) (i0, i1 int, f float64) {
	x := u*float64(n) - 0.5
	if math.IsNaN(x) || x <= 0 {
		return 0, 0, 0
	}
	if x >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	fl := math.Floor(x)
	i0 = int(fl)
	return i0, i0 + 1, x - fl
}

// Fetch2D returns the four texels surrounding (u, v) on slice z and the
// bilinear weights (fx, fy), for reconstructions that must interpolate in a
// transformed space.
func (t *Texture) Fetch2D(u, v float64, z int) (taps [4]Spectrum, fx, fy float64) {
	x0, x1, fx := texelCoord(u, t.Width)
	y0, y1, fy := texelCoord(v, t.Height)
	taps[0], _ = t.Texel(x0, y0, z)
	taps[1], _ = t.Texel(x1, y0, z)
	taps[2], _ = t.Texel(x0, y1, z)
	taps[3], _ = t.Texel(x1, y1, z)
	return taps, fx, fy
}

// Sample2D bilinearly samples slice 0 at normalized coordinates (u, v).
func (t *Texture) Sample2D(u, v float64) (Spectrum, float64) {
	x0, x1, fx := texelCoord(u, t.Width)
	y0, y1, fy := texelCoord(v, t.Height)
	c00, a00 := t.Texel(x0, y0, 0)
	c10, a10 := t.Texel(x1, y0, 0)
	c01, a01 := t.Texel(x0, y1, 0)
	c11, a11 := t.Texel(x1, y1, 0)
	rgb := lerpSpectrum(lerpSpectrum(c00, c10, fx), lerpSpectrum(c01, c11, fx), fy)
	alpha := lerp(lerp(a00, a10, fx), lerp(a01, a11, fx), fy)
	return rgb, alpha
}

// Sample3D trilinearly samples the texture at normalized coordinates.
func (t *Texture) Sample3D(u, v, w float64) (Spectrum, float64) {
	x0, x1, fx := texelCoord(u, t.Width)
	y0, y1, fy := texelCoord(v, t.Height)
	z0, z1, fz := texelCoord(w, t.Depth)

	var rgb [2]Spectrum
	var alpha [2]float64
	for k, z := range [2]int{z0, z1} {
		c00, a00 := t.Texel(x0, y0, z)
		c10, a10 := t.Texel(x1, y0, z)
		c01, a01 := t.Texel(x0, y1, z)
		c11, a11 := t.Texel(x1, y1, z)
		rgb[k] = lerpSpectrum(lerpSpectrum(c00, c10, fx), lerpSpectrum(c01, c11, fx), fy)
		alpha[k] = lerp(lerp(a00, a10, fx), lerp(a01, a11, fx), fy)
	}
	return lerpSpectrum(rgb[0], rgb[1], fz), lerp(alpha[0], alpha[1], fz)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpSpectrum(a, b Spectrum, t float64) Spectrum {
	return Spectrum{lerp(a[0], b[0], t), lerp(a[1], b[1], t), lerp(a[2], b[2], t)}
}
