// lutgen precomputes the atmosphere LUTs described by a config file and
// writes them to a LUT bundle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/internal/config"
	"github.com/Faultbox/midgard-atmosphere/internal/logger"
	"github.com/Faultbox/midgard-atmosphere/internal/lutstore"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
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

	logger.Info("=== Atmosphere LUT generator ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("lutgen failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := cfg.NewBackend()
	if err != nil {
		return err
	}
	if closer, ok := backend.(*precompute.ParallelBackend); ok {
		defer closer.Close()
	}

	p, err := precompute.New(cfg.Atmosphere, cfg.PrecomputeOptions(backend, logger.Named("precompute")))
	if err != nil {
		return err
	}

	start := time.Now()
	progress, errs := p.PrecomputeAsync(ctx)
	for pr := range progress {
		logger.Info("unit done",
			zap.Stringer("unit", pr.Unit),
			zap.String("progress", fmt.Sprintf("%d/%d", pr.Index+1, pr.Total)),
			zap.Duration("elapsed", pr.Elapsed))
	}
	if err := <-errs; err != nil {
		return fmt.Errorf("precomputing: %w", err)
	}

	set := p.Published()
	if err := lutstore.Save(cfg.Output.Path, set, cfg.Atmosphere, cfg.Encoding()); err != nil {
		return fmt.Errorf("saving %s: %w", cfg.Output.Path, err)
	}

	info, err := os.Stat(cfg.Output.Path)
	if err != nil {
		return err
	}
	logger.Info("LUT bundle written",
		zap.String("path", cfg.Output.Path),
		zap.String("encoding", cfg.Output.Encoding),
		zap.Int("orders", set.Orders),
		zap.Float64("size_mb", float64(info.Size())/(1024*1024)),
		zap.Duration("total", time.Since(start)))
	return nil
}
