// luttool is a CLI utility for inspecting and converting atmosphere LUT
// bundles.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Faultbox/midgard-atmosphere/internal/config"
	"github.com/Faultbox/midgard-atmosphere/internal/logger"
	"github.com/Faultbox/midgard-atmosphere/internal/lutstore"
	"github.com/Faultbox/midgard-atmosphere/internal/skyimage"
	"github.com/Faultbox/midgard-atmosphere/internal/sun"
	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/bundle"
	"github.com/Faultbox/midgard-atmosphere/pkg/formats"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
)

// usageError reports wrong arguments; the message is the usage line.
type usageError string

func (e usageError) Error() string { return string(e) }

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one command and returns the process exit code. Deferred
// cleanup in the commands runs before main exits.
func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "stats":
		err = cmdStats(args)
	case "extract", "x":
		err = cmdExtract(args)
	case "convert":
		err = cmdConvert(args)
	case "render":
		err = cmdRender(args)
	case "init-config":
		err = cmdInitConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return 1
	}

	var usage usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		return 2
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

func printUsage() {
	fmt.Println(`luttool - atmosphere LUT bundle utility

Usage:
  luttool <command> [options]

Commands:
  info <bundle>                          Show manifest and contents
  stats <bundle> [kind]                  Per-channel statistics of the LUTs
  extract <bundle> <kind> [out.lut]      Extract one LUT file
  convert [-half] <in> <out>             Re-encode a bundle
  render [options] <bundle> <out.png>    Render a sky image
  init-config [path]                     Write the default config

Kinds: transmittance, irradiance, scattering, single_mie, higher_order

Examples:
  luttool info earth.luts
  luttool stats earth.luts scattering
  luttool convert -half earth.luts earth-half.luts
  luttool render -zenith 85 -projection panorama earth.luts sunset.png
  luttool render -time 2024-06-21T05:00:00Z -lat 48.85 -lon 2.35 earth.luts paris.png`)
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return usageError("luttool info <bundle>")
	}

	archive, err := bundle.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	m, err := lutstore.ReadManifest(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Bundle:    %s\n", args[0])
	fmt.Printf("Format:    %d\n", m.FormatVersion)
	fmt.Printf("Version:   %d\n", m.LUTVersion)
	fmt.Printf("Created:   %s\n", m.Created.Format(time.RFC3339))
	fmt.Printf("Encoding:  %s\n", m.Encoding)
	fmt.Printf("Orders:    %d\n", m.ScatteringOrders)
	fmt.Printf("Radii:     %.0f m - %.0f m\n", m.Parameters.BottomRadius, m.Parameters.TopRadius)
	fmt.Printf("Features:  log_transmittance=%v combined=%v higher_order=%v\n",
		m.Features.LogEncodedTransmittance, m.Features.CombinedScatteringTextures, m.Features.HigherOrderScatteringTexture)
	fmt.Println()
	fmt.Println("Files:")

	var total uint64
	for _, name := range archive.List() {
		e, err := archive.Stat(name)
		if err != nil {
			return err
		}
		total += uint64(e.UncompressedSize)
		ratio := 100.0
		if e.UncompressedSize > 0 {
			ratio = 100 * float64(e.CompressedSize) / float64(e.UncompressedSize)
		}
		fmt.Printf("  %-20s %10d bytes  %5.1f%%\n", name, e.UncompressedSize, ratio)
	}
	fmt.Printf("Total:     %.2f MB\n", float64(total)/(1024*1024))
	return nil
}

func cmdStats(args []string) error {
	if len(args) < 1 {
		return usageError("luttool stats <bundle> [kind]")
	}

	set, _, err := lutstore.Load(args[0])
	if err != nil {
		return err
	}

	tables := lutstore.Tables(set)
	for kind := formats.LUTTransmittance; kind <= formats.LUTHigherOrder; kind++ {
		tex, ok := tables[kind]
		if !ok || (len(args) > 1 && args[1] != kind.String()) {
			continue
		}
		fmt.Printf("%s (%s)\n", kind, tex.Shape())
		for c, s := range channelStats(tex) {
			fmt.Printf("  %s  min %-12.5g max %-12.5g mean %-12.5g stddev %-12.5g\n",
				channelNames[c], s.Min, s.Max, s.Mean, s.StdDev)
		}
	}
	return nil
}

func cmdExtract(args []string) error {
	if len(args) < 2 {
		return usageError("luttool extract <bundle> <kind> [out.lut]")
	}

	kind, err := formats.ParseLUTKind(args[1])
	if err != nil {
		return err
	}
	lut, err := lutstore.ReadLUT(args[0], kind)
	if err != nil {
		return err
	}

	out := lutstore.FileName(kind)
	if len(args) > 2 {
		out = args[2]
	}
	if err := lut.WriteFile(out); err != nil {
		return err
	}
	fmt.Printf("Extracted %s (%dx%dx%dx%d, %s) to %s\n",
		kind, lut.Width, lut.Height, lut.Depth, lut.Channels, lut.Encoding, out)
	return nil
}

func cmdConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	half := fs.Bool("half", false, "Store LUTs as half floats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 2 {
		return usageError("luttool convert [-half] <in> <out>")
	}

	set, manifest, err := lutstore.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	encoding := formats.EncodingFloat32
	if *half {
		encoding = formats.EncodingHalf
	}
	if err := lutstore.Save(fs.Arg(1), set, manifest.Parameters, encoding); err != nil {
		return err
	}
	fmt.Printf("Converted %s to %s (%s)\n", fs.Arg(0), fs.Arg(1), encoding)
	return nil
}

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	width := fs.Int("width", 512, "Image width")
	height := fs.Int("height", 512, "Image height")
	projection := fs.String("projection", "fisheye", "fisheye or panorama")
	zenith := fs.Float64("zenith", 60, "Sun zenith angle in degrees")
	azimuth := fs.Float64("azimuth", 180, "Sun azimuth in degrees from north")
	at := fs.String("time", "", "RFC 3339 time; with -lat/-lon overrides -zenith/-azimuth")
	lat := fs.Float64("lat", 0, "Observer latitude in degrees")
	lon := fs.Float64("lon", 0, "Observer longitude in degrees")
	altitude := fs.Float64("altitude", 1, "Observer altitude in meters")
	exposure := fs.Float64("exposure", 0, "Exposure (0 = default)")
	luminance := fs.Bool("luminance", false, "Render luminance instead of radiance")
	shadow := fs.Float64("shadow", 0, "Shadow length in meters")
	workers := fs.Int("workers", 0, "Worker goroutines (0 = one per CPU)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 2 {
		return usageError("luttool render [options] <bundle> <out.png>")
	}

	level := "warn"
	if *debug {
		level = "debug"
	}
	if err := logger.Init(level, ""); err != nil {
		return err
	}
	defer logger.Sync()

	proj, err := skyimage.ParseProjection(*projection)
	if err != nil {
		return err
	}

	pos := sun.FromZenith(*zenith, *azimuth)
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("parsing -time: %w", err)
		}
		pos = sun.At(t, *lat, *lon)
	}

	set, manifest, err := lutstore.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	sampler, err := atmosphere.NewSampler(manifest.Parameters, set)
	if err != nil {
		return err
	}

	backend := precompute.NewParallelBackend(*workers)
	defer backend.Close()

	start := time.Now()
	img, err := skyimage.New(sampler, backend, logger.Named("render")).Render(skyimage.Options{
		Width:        *width,
		Height:       *height,
		Projection:   proj,
		Altitude:     *altitude,
		Sun:          pos.Direction(),
		Luminance:    *luminance,
		ShadowLength: *shadow,
	})
	if err != nil {
		return err
	}

	if *exposure == 0 {
		*exposure = skyimage.DefaultExposure(*luminance)
	}
	if err := skyimage.WritePNG(fs.Arg(1), img, *exposure); err != nil {
		return err
	}
	fmt.Printf("Rendered %dx%d %s sky (sun elevation %.1f, azimuth %.1f) to %s in %v\n",
		*width, *height, proj, pos.Elevation, pos.Azimuth, fs.Arg(1), time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdInitConfig(args []string) error {
	cfg := config.Default()
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", args[0])
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", config.ConfigDir())
	return nil
}
