package viewer

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"
)

// view selects the fragment program a screen is drawn with.
type view int

const (
	viewImage view = iota
	viewLUT2D
	// viewOpticalDepth shows a log-encoded transmittance LUT as transmittance.
	viewOpticalDepth
	viewLUT3D
	viewCount
)

func (v view) String() string {
	switch v {
	case viewImage:
		return "image"
	case viewLUT2D:
		return "lut2d"
	case viewOpticalDepth:
		return "optical-depth"
	case viewLUT3D:
		return "lut3d"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// target is the texture target the view samples.
func (v view) target() uint32 {
	if v == viewLUT3D {
		return gl.TEXTURE_3D
	}
	return gl.TEXTURE_2D
}

// viewFor returns the view that displays mode.
func viewFor(mode Mode, logEncoded bool) view {
	switch {
	case mode == ModeSky:
		return viewImage
	case mode.Is3D():
		return viewLUT3D
	case mode == ModeTransmittance && logEncoded:
		return viewOpticalDepth
	default:
		return viewLUT2D
	}
}

const screenVertexShader = `
#version 410 core

out vec2 vUV;

void main() {
	// Fullscreen triangle from the vertex index.
	vec2 pos = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
	vUV = pos;
	gl_Position = vec4(pos * 2.0 - 1.0, 0.0, 1.0);
}
`

const imageFragmentShader = `
#version 410 core

in vec2 vUV;
out vec4 FragColor;

uniform sampler2D u_tex;

void main() {
	FragColor = vec4(texture(u_tex, vec2(vUV.x, 1.0 - vUV.y)).rgb, 1.0);
}
`

// lutFragmentTemplate takes the sampler type and the texel expression.
const lutFragmentTemplate = `
#version 410 core

in vec2 vUV;
out vec4 FragColor;

uniform %s u_tex;
uniform float u_slice;
uniform float u_exposure;

void main() {
	vec3 v = %s;
	vec3 mapped = vec3(1.0) - exp(-u_exposure * max(v, vec3(0.0)));
	FragColor = vec4(pow(mapped, vec3(1.0 / 2.2)), 1.0);
}
`

// fragmentSource returns the fragment shader of v.
func fragmentSource(v view) string {
	switch v {
	case viewImage:
		return imageFragmentShader
	case viewOpticalDepth:
		return fmt.Sprintf(lutFragmentTemplate, "sampler2D", "exp(-texture(u_tex, vUV).rgb)")
	case viewLUT3D:
		return fmt.Sprintf(lutFragmentTemplate, "sampler3D", "texture(u_tex, vec3(vUV, u_slice)).rgb")
	default:
		return fmt.Sprintf(lutFragmentTemplate, "sampler2D", "texture(u_tex, vUV).rgb")
	}
}

type program struct {
	id          uint32
	locTex      int32
	locSlice    int32
	locExposure int32
}

// programCache compiles the program of each view on first use.
type programCache struct {
	programs map[view]*program
	log      *zap.Logger
}

func newProgramCache(log *zap.Logger) *programCache {
	return &programCache{programs: make(map[view]*program), log: log}
}

func (c *programCache) get(v view) (*program, error) {
	if p, ok := c.programs[v]; ok {
		return p, nil
	}
	id, err := compileProgram(screenVertexShader, fragmentSource(v))
	if err != nil {
		return nil, fmt.Errorf("compiling %s program: %w", v, err)
	}
	p := &program{
		id:          id,
		locTex:      uniform(id, "u_tex"),
		locSlice:    uniform(id, "u_slice"),
		locExposure: uniform(id, "u_exposure"),
	}
	c.programs[v] = p
	c.log.Debug("screen program compiled", zap.Stringer("view", v))
	return p, nil
}

func (c *programCache) Close() {
	for v, p := range c.programs {
		gl.DeleteProgram(p.id)
		delete(c.programs, v)
	}
}

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vert, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vert)

	frag, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(frag)

	id := gl.CreateProgram()
	gl.AttachShader(id, vert)
	gl.AttachShader(id, frag)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetProgramInfoLog(id, n, nil, &msg[0])
		gl.DeleteProgram(id)
		return 0, fmt.Errorf("link: %s", gl.GoStr(&msg[0]))
	}
	return id, nil
}

func compileShader(source string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := make([]byte, n+1)
		gl.GetShaderInfoLog(shader, n, nil, &msg[0])
		gl.DeleteShader(shader)
		return 0, errors.New(gl.GoStr(&msg[0]))
	}
	return shader, nil
}

func uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}
