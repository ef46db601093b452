package viewer

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

// Screen draws a sky image or a LUT view over the whole window.
type Screen struct {
	programs *programCache
	vao      uint32

	image uint32
	luts  map[Mode]uint32
	depth map[Mode]int
	log   bool

	logger *zap.Logger
}

// NewScreen initializes OpenGL and creates the screen resources.
// A GL context must be current.
func NewScreen(log *zap.Logger) (*Screen, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	log.Info("OpenGL initialized", zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))))

	s := &Screen{
		programs: newProgramCache(log),
		luts:     make(map[Mode]uint32),
		depth:    make(map[Mode]int),
		logger:   log,
	}
	// The sky program is compiled up front, the others on first draw.
	if _, err := s.programs.get(viewImage); err != nil {
		return nil, err
	}

	// The triangle is generated from gl_VertexID, the VAO stays empty.
	gl.GenVertexArrays(1, &s.vao)

	gl.GenTextures(1, &s.image)
	gl.BindTexture(gl.TEXTURE_2D, s.image)
	setSamplerParams(gl.TEXTURE_2D)

	gl.ClearColor(0, 0, 0, 1)
	return s, nil
}

func setSamplerParams(target uint32) {
	gl.TexParameteri(target, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(target, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(target, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	if target == gl.TEXTURE_3D {
		gl.TexParameteri(target, gl.TEXTURE_WRAP_R, gl.CLAMP_TO_EDGE)
	}
}

// UploadImage replaces the sky image.
func (s *Screen) UploadImage(img *image.RGBA) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, s.image)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(b.Dx()), int32(b.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[0]))
}

// UploadLUTs replaces every LUT texture with the tables of set.
func (s *Screen) UploadLUTs(set *atmosphere.LUTSet) {
	s.deleteLUTs()
	s.log = set.Features.LogEncodedTransmittance

	s.upload(ModeTransmittance, set.Transmittance)
	s.upload(ModeIrradiance, set.Irradiance)
	s.upload(ModeScattering, set.Scattering)
	if set.SingleMieScattering != nil {
		s.upload(ModeSingleMie, set.SingleMieScattering)
	}
	s.logger.Debug("LUTs uploaded", zap.Uint64("version", set.Version), zap.Int("textures", len(s.luts)))
}

func (s *Screen) upload(mode Mode, tex *atmosphere.Texture) {
	if tex == nil || len(tex.Data) == 0 {
		return
	}
	internal, format := int32(gl.RGB32F), uint32(gl.RGB)
	if tex.Channels == 4 {
		internal, format = gl.RGBA32F, gl.RGBA
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	if mode.Is3D() {
		gl.BindTexture(gl.TEXTURE_3D, id)
		setSamplerParams(gl.TEXTURE_3D)
		gl.TexImage3D(gl.TEXTURE_3D, 0, internal, int32(tex.Width), int32(tex.Height), int32(tex.Depth), 0,
			format, gl.FLOAT, unsafe.Pointer(&tex.Data[0]))
	} else {
		gl.BindTexture(gl.TEXTURE_2D, id)
		setSamplerParams(gl.TEXTURE_2D)
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(tex.Width), int32(tex.Height), 0,
			format, gl.FLOAT, unsafe.Pointer(&tex.Data[0]))
	}
	s.luts[mode] = id
	s.depth[mode] = tex.Depth
}

// HasLUTs reports whether LUTs have been uploaded.
func (s *Screen) HasLUTs() bool {
	return len(s.luts) > 0
}

// Resize sets the viewport.
func (s *Screen) Resize(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

// Draw renders the view selected by state. LUT modes without an uploaded
// table draw nothing.
func (s *Screen) Draw(state *State, exposure float64) error {
	gl.Clear(gl.COLOR_BUFFER_BIT)

	tex := s.image
	if state.Mode != ModeSky {
		tex = s.luts[state.Mode]
	}
	if tex == 0 {
		return nil
	}

	v := viewFor(state.Mode, s.log)
	p, err := s.programs.get(v)
	if err != nil {
		return err
	}
	gl.UseProgram(p.id)
	gl.Uniform1i(p.locTex, 0)
	gl.Uniform1f(p.locExposure, float32(exposure))
	if v == viewLUT3D {
		gl.Uniform1f(p.locSlice, float32(sliceCoord(state.Slice, s.depth[state.Mode])))
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(v.target(), tex)

	gl.BindVertexArray(s.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	return nil
}

// sliceCoord maps a slice in [0, 1] to the center of the nearest layer.
func sliceCoord(slice float64, depth int) float64 {
	if depth <= 1 {
		return 0.5
	}
	layer := int(slice*float64(depth-1) + 0.5)
	return (float64(layer) + 0.5) / float64(depth)
}

func (s *Screen) deleteLUTs() {
	for mode, id := range s.luts {
		gl.DeleteTextures(1, &id)
		delete(s.luts, mode)
		delete(s.depth, mode)
	}
}

// Close releases GPU resources.
func (s *Screen) Close() {
	s.deleteLUTs()
	gl.DeleteTextures(1, &s.image)
	gl.DeleteVertexArrays(1, &s.vao)
	s.programs.Close()
}
