package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/mrjoshuak/go-openexr/half"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
)

// LUT format errors.
var (
	ErrInvalidLUTMagic       = errors.New("invalid LUT magic: expected 'ALUT'")
	ErrUnsupportedLUTVersion = errors.New("unsupported LUT version")
	ErrTruncatedLUTData      = errors.New("truncated LUT data")
	ErrInvalidLUTShape       = errors.New("invalid LUT shape")
)

const (
	lutMagic      = "ALUT"
	lutHeaderSize = 28

	// maxLUTValues bounds the channel values of one LUT, 1 GiB as float32.
	maxLUTValues = 1 << 28

	// LUTFlagLogEncoded marks a transmittance LUT storing optical depth.
	LUTFlagLogEncoded uint8 = 1 << 0
)

// LUTVersion represents the LUT file version.
type LUTVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v LUTVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentLUTVersion is written by Encode.
var CurrentLUTVersion = LUTVersion{Major: 1, Minor: 0}

// LUTKind identifies which table a file holds.
type LUTKind uint8

// LUT kinds.
const (
	LUTTransmittance LUTKind = iota
	LUTIrradiance
	LUTScattering
	LUTSingleMie
	LUTHigherOrder
)

// String returns the kind name used in file names and manifests.
func (k LUTKind) String() string {
	switch k {
	case LUTTransmittance:
		return "transmittance"
	case LUTIrradiance:
		return "irradiance"
	case LUTScattering:
		return "scattering"
	case LUTSingleMie:
		return "single_mie"
	case LUTHigherOrder:
		return "higher_order"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// ParseLUTKind is the inverse of LUTKind.String.
func ParseLUTKind(s string) (LUTKind, error) {
	for k := LUTTransmittance; k <= LUTHigherOrder; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown LUT kind %q", s)
}

// LUTEncoding is the storage type of the payload.
type LUTEncoding uint8

// Payload encodings.
const (
	EncodingFloat32 LUTEncoding = iota
	EncodingHalf
)

// String returns the encoding name.
func (e LUTEncoding) String() string {
	switch e {
	case EncodingFloat32:
		return "float32"
	case EncodingHalf:
		return "half"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(e))
	}
}

// ParseLUTEncoding is the inverse of LUTEncoding.String.
func ParseLUTEncoding(s string) (LUTEncoding, error) {
	switch s {
	case "float32", "float", "":
		return EncodingFloat32, nil
	case "half", "float16":
		return EncodingHalf, nil
	}
	return 0, fmt.Errorf("unknown LUT encoding %q", s)
}

// BytesPerValue returns the payload size of one channel value.
func (e LUTEncoding) BytesPerValue() int {
	if e == EncodingHalf {
		return 2
	}
	return 4
}

// LUT is a parsed lookup table file.
type LUT struct {
	Version  LUTVersion
	Kind     LUTKind
	Encoding LUTEncoding
	Flags    uint8
	Width    uint32
	Height   uint32
	Depth    uint32
	Channels uint32
	// Data holds the decoded values, x varying fastest.
	Data []float32
}

// LogEncoded reports whether a transmittance LUT stores optical depth.
func (l *LUT) LogEncoded() bool {
	return l.Flags&LUTFlagLogEncoded != 0
}

// Values returns the number of channel values in the payload, 0 when the
// shape exceeds the LUT size limit.
func (l *LUT) Values() int {
	n, err := l.valueCount()
	if err != nil {
		return 0
	}
	return n
}

// valueCount multiplies the dimensions in uint64, failing as soon as the
// product passes maxLUTValues. Each factor is below 2^32 and the running
// product below 2^28, so no step can overflow.
func (l *LUT) valueCount() (int, error) {
	n := uint64(1)
	for _, d := range [...]uint32{l.Width, l.Height, l.Depth, l.Channels} {
		n *= uint64(d)
		if n > maxLUTValues {
			return 0, fmt.Errorf("%w: %dx%dx%dx%d exceeds %d values",
				ErrInvalidLUTShape, l.Width, l.Height, l.Depth, l.Channels, maxLUTValues)
		}
	}
	return int(n), nil
}

// NewLUT wraps a texture. The texture data is shared, not copied.
func NewLUT(kind LUTKind, tex *atmosphere.Texture, encoding LUTEncoding, logEncoded bool) *LUT {
	l := &LUT{
		Version:  CurrentLUTVersion,
		Kind:     kind,
		Encoding: encoding,
		Width:    uint32(tex.Width),
		Height:   uint32(tex.Height),
		Depth:    uint32(tex.Depth),
		Channels: uint32(tex.Channels),
		Data:     tex.Data,
	}
	if logEncoded {
		l.Flags |= LUTFlagLogEncoded
	}
	return l
}

// Texture returns a texture holding a copy of the LUT data.
func (l *LUT) Texture() *atmosphere.Texture {
	tex := atmosphere.NewTexture(int(l.Width), int(l.Height), int(l.Depth), int(l.Channels))
	copy(tex.Data, l.Data)
	return tex
}

func (l *LUT) validateShape() error {
	if l.Width == 0 || l.Height == 0 || l.Depth == 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrInvalidLUTShape, l.Width, l.Height, l.Depth)
	}
	if l.Channels != 3 && l.Channels != 4 {
		return fmt.Errorf("%w: %d channels", ErrInvalidLUTShape, l.Channels)
	}
	if l.Kind > LUTHigherOrder {
		return fmt.Errorf("%w: %s kind", ErrInvalidLUTShape, l.Kind)
	}
	if l.Encoding > EncodingHalf {
		return fmt.Errorf("%w: %s encoding", ErrInvalidLUTShape, l.Encoding)
	}
	_, err := l.valueCount()
	return err
}

// ParseLUT parses a LUT file from raw bytes.
func ParseLUT(data []byte) (*LUT, error) {
	if len(data) < lutHeaderSize {
		return nil, ErrTruncatedLUTData
	}

	if string(data[0:4]) != lutMagic {
		return nil, ErrInvalidLUTMagic
	}

	// Version is stored as [minor, major]
	version := LUTVersion{
		Major: data[5],
		Minor: data[4],
	}
	if version.Major != CurrentLUTVersion.Major {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLUTVersion, version)
	}

	lut := &LUT{
		Version:  version,
		Kind:     LUTKind(data[6]),
		Encoding: LUTEncoding(data[7]),
		Flags:    data[8],
	}

	// 3 bytes of padding keep the dimensions 4-byte aligned.
	r := bytes.NewReader(data[12:])

	dims := []struct {
		name string
		dst  *uint32
	}{
		{"width", &lut.Width},
		{"height", &lut.Height},
		{"depth", &lut.Depth},
		{"channels", &lut.Channels},
	}
	for _, d := range dims {
		if err := binary.Read(r, binary.LittleEndian, d.dst); err != nil {
			return nil, fmt.Errorf("%w: reading %s", ErrTruncatedLUTData, d.name)
		}
	}
	if err := lut.validateShape(); err != nil {
		return nil, err
	}

	payload := data[lutHeaderSize:]
	n, err := lut.valueCount()
	if err != nil {
		return nil, err
	}
	if len(payload)/lut.Encoding.BytesPerValue() < n {
		need := n * lut.Encoding.BytesPerValue()
		return nil, fmt.Errorf("%w: payload has %d bytes, expected %d", ErrTruncatedLUTData, len(payload), need)
	}

	lut.Data = make([]float32, n)
	switch lut.Encoding {
	case EncodingHalf:
		for i := range lut.Data {
			h := half.Half(binary.LittleEndian.Uint16(payload[i*2:]))
			lut.Data[i] = h.Float32()
		}
	default:
		for i := range lut.Data {
			lut.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
	}

	return lut, nil
}

// ParseLUTFile parses a LUT file from disk.
func ParseLUTFile(path string) (*LUT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading LUT file: %w", err)
	}
	return ParseLUT(data)
}

// Encode serializes the LUT. Half encoding rounds every value to the
// nearest binary16; values beyond its range become infinities.
func (l *LUT) Encode() ([]byte, error) {
	if err := l.validateShape(); err != nil {
		return nil, err
	}
	if len(l.Data) != l.Values() {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%dx%d", ErrInvalidLUTShape, len(l.Data), l.Width, l.Height, l.Depth, l.Channels)
	}

	out := make([]byte, lutHeaderSize+len(l.Data)*l.Encoding.BytesPerValue())
	copy(out, lutMagic)
	out[4] = CurrentLUTVersion.Minor
	out[5] = CurrentLUTVersion.Major
	out[6] = uint8(l.Kind)
	out[7] = uint8(l.Encoding)
	out[8] = l.Flags
	binary.LittleEndian.PutUint32(out[12:], l.Width)
	binary.LittleEndian.PutUint32(out[16:], l.Height)
	binary.LittleEndian.PutUint32(out[20:], l.Depth)
	binary.LittleEndian.PutUint32(out[24:], l.Channels)

	payload := out[lutHeaderSize:]
	switch l.Encoding {
	case EncodingHalf:
		for i, v := range l.Data {
			binary.LittleEndian.PutUint16(payload[i*2:], uint16(half.FromFloat32(v)))
		}
	default:
		for i, v := range l.Data {
			binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
		}
	}
	return out, nil
}

// WriteFile encodes the LUT and writes it to path.
func (l *LUT) WriteFile(path string) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing LUT file: %w", err)
	}
	return nil
}
