// skyview is an interactive viewer for atmosphere LUTs. It precomputes the
// tables a few units per frame, or loads a bundle given as argument, and
// shows the sky or any table.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/internal/config"
	"github.com/Faultbox/midgard-atmosphere/internal/logger"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred cleanup runs before exiting.
func realMain() int {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("=== Atmosphere sky viewer ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	var bundlePath string
	if args := config.Args(); len(args) > 0 {
		bundlePath = args[0]
	}

	app, err := newApp(cfg, bundlePath)
	if err != nil {
		logger.Error("failed to create viewer", zap.Error(err))
		return 1
	}
	defer app.Close()

	if err := app.Run(); err != nil {
		logger.Error("viewer error", zap.Error(err))
		return 1
	}

	logger.Info("viewer exited normally")
	return 0
}
