// Package lutstore persists finished LUT sets as bundles: a manifest.yaml
// describing the atmosphere plus one LUT file per table.
package lutstore

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/bundle"
	"github.com/Faultbox/midgard-atmosphere/pkg/formats"
)

// FormatVersion is written to every manifest.
const FormatVersion = 1

// ManifestName is the manifest path inside a bundle.
const ManifestName = "manifest.yaml"

var (
	// ErrUnsupportedManifest is returned for an unknown manifest version.
	ErrUnsupportedManifest = errors.New("unsupported manifest version")
	// ErrMissingLUT is returned when a table required by the manifest is absent.
	ErrMissingLUT = errors.New("missing LUT")
	// ErrShapeMismatch is returned when a LUT disagrees with the manifest.
	ErrShapeMismatch = errors.New("LUT does not match manifest")
)

// Manifest describes a stored LUT set.
type Manifest struct {
	FormatVersion    int                     `yaml:"format_version"`
	LUTVersion       uint64                  `yaml:"lut_version"`
	Created          time.Time               `yaml:"created"`
	Encoding         string                  `yaml:"encoding"`
	ScatteringOrders int                     `yaml:"scattering_orders"`
	Sizes            atmosphere.TextureSizes `yaml:"sizes"`
	Features         atmosphere.Features     `yaml:"features"`
	Parameters       atmosphere.Parameters   `yaml:"parameters"`
	Files            []string                `yaml:"files"`
}

// FileName returns the bundle path of a LUT kind.
func FileName(kind formats.LUTKind) string {
	return kind.String() + ".lut"
}

// Tables returns the LUTs present in a set keyed by kind.
func Tables(set *atmosphere.LUTSet) map[formats.LUTKind]*atmosphere.Texture {
	tables := map[formats.LUTKind]*atmosphere.Texture{
		formats.LUTTransmittance: set.Transmittance,
		formats.LUTIrradiance:    set.Irradiance,
		formats.LUTScattering:    set.Scattering,
	}
	if set.SingleMieScattering != nil {
		tables[formats.LUTSingleMie] = set.SingleMieScattering
	}
	if set.HigherOrderScattering != nil {
		tables[formats.LUTHigherOrder] = set.HigherOrderScattering
	}
	return tables
}

// Save writes set and the parameters it was computed with to a bundle at path.
// The bundle is written to a temporary file in the same directory and renamed
// over path once complete, so a failed save leaves an existing bundle intact.
func Save(path string, set *atmosphere.LUTSet, params atmosphere.Parameters, encoding formats.LUTEncoding) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("saving LUT set: %w", err)
	}

	tmp := path + ".tmp"
	if err := writeBundle(tmp, set, params, encoding); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func writeBundle(path string, set *atmosphere.LUTSet, params atmosphere.Parameters, encoding formats.LUTEncoding) error {

	manifest := Manifest{
		FormatVersion:    FormatVersion,
		LUTVersion:       set.Version,
		Created:          time.Now().UTC().Truncate(time.Second),
		Encoding:         encoding.String(),
		ScatteringOrders: set.Orders,
		Sizes:            set.Sizes,
		Features:         set.Features,
		Parameters:       params,
	}

	w, err := bundle.Create(path)
	if err != nil {
		return err
	}

	tables := Tables(set)
	for kind := formats.LUTTransmittance; kind <= formats.LUTHigherOrder; kind++ {
		tex, ok := tables[kind]
		if !ok {
			continue
		}
		logEncoded := kind == formats.LUTTransmittance && set.Features.LogEncodedTransmittance
		data, err := formats.NewLUT(kind, tex, encoding, logEncoded).Encode()
		if err != nil {
			w.Close()
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		if err := w.Add(FileName(kind), data); err != nil {
			w.Close()
			return err
		}
		manifest.Files = append(manifest.Files, FileName(kind))
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		w.Close()
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := w.Add(ManifestName, data); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

// ReadManifest returns the manifest of the bundle at path.
func ReadManifest(path string) (*Manifest, error) {
	archive, err := bundle.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	return readManifest(archive)
}

func readManifest(archive *bundle.Archive) (*Manifest, error) {
	data, err := archive.Read(ManifestName)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedManifest, m.FormatVersion)
	}
	return &m, nil
}

// Load reads a bundle written by Save. The parameters and sizes are
// validated and every LUT is checked against the manifest.
func Load(path string) (*atmosphere.LUTSet, *Manifest, error) {
	archive, err := bundle.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer archive.Close()

	manifest, err := readManifest(archive)
	if err != nil {
		return nil, nil, err
	}

	model, err := atmosphere.NewModel(manifest.Parameters, manifest.Sizes, manifest.Features)
	if err != nil {
		return nil, nil, err
	}

	set := model.NewLUTSet()
	set.Orders = manifest.ScatteringOrders
	set.Version = manifest.LUTVersion

	for kind, dst := range Tables(set) {
		lut, err := readLUT(archive, kind)
		if err != nil {
			return nil, nil, err
		}
		if lut.Kind != kind {
			return nil, nil, fmt.Errorf("%w: %s holds a %s LUT", ErrShapeMismatch, FileName(kind), lut.Kind)
		}
		if kind == formats.LUTTransmittance && lut.LogEncoded() != manifest.Features.LogEncodedTransmittance {
			return nil, nil, fmt.Errorf("%w: transmittance log encoding flag", ErrShapeMismatch)
		}
		if int(lut.Width) != dst.Width || int(lut.Height) != dst.Height || int(lut.Depth) != dst.Depth || int(lut.Channels) != dst.Channels {
			return nil, nil, fmt.Errorf("%w: %s is %dx%dx%dx%d, expected %s",
				ErrShapeMismatch, kind, lut.Width, lut.Height, lut.Depth, lut.Channels, dst.Shape())
		}
		copy(dst.Data, lut.Data)
	}

	return set, manifest, nil
}

func readLUT(archive *bundle.Archive, kind formats.LUTKind) (*formats.LUT, error) {
	name := FileName(kind)
	if !archive.Contains(name) {
		return nil, fmt.Errorf("%w: %s", ErrMissingLUT, name)
	}
	data, err := archive.Read(name)
	if err != nil {
		return nil, err
	}
	lut, err := formats.ParseLUT(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return lut, nil
}

// ReadLUT returns a single table from the bundle at path.
func ReadLUT(path string, kind formats.LUTKind) (*formats.LUT, error) {
	archive, err := bundle.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	return readLUT(archive, kind)
}
