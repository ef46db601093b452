package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagOutput  = flag.String("output", "", "LUT bundle path")
	flagOrders  = flag.Int("orders", 0, "Number of scattering orders")
	flagWorkers = flag.Int("workers", -1, "Worker goroutines (0 = one per CPU)")
	flagHalf    = flag.Bool("half", false, "Store LUTs as half floats")
	flagWidth   = flag.Int("width", 0, "Image or window width")
	flagHeight  = flag.Int("height", 0, "Image or window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagOutput != "" {
		cfg.Output.Path = *flagOutput
	}
	if *flagOrders > 0 {
		cfg.Precompute.ScatteringOrders = *flagOrders
	}
	if *flagWorkers >= 0 {
		cfg.Precompute.Workers = *flagWorkers
	}
	if *flagHalf {
		cfg.Output.Encoding = "half"
	}
	if *flagWidth > 0 {
		cfg.View.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.View.Height = *flagHeight
	}
}
