package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/internal/config"
	"github.com/Faultbox/midgard-atmosphere/internal/logger"
	"github.com/Faultbox/midgard-atmosphere/internal/lutstore"
	"github.com/Faultbox/midgard-atmosphere/internal/skyimage"
	"github.com/Faultbox/midgard-atmosphere/internal/viewer"
	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
)

// skyScale divides the window size to get the sky image resolution.
const skyScale = 4

// app is the viewer instance.
type app struct {
	cfg     *config.Config
	running bool

	window *viewer.Window
	screen *viewer.Screen
	input  *viewer.Input

	backend *precompute.ParallelBackend
	driver  *viewer.Driver

	set      *atmosphere.LUTSet
	params   atmosphere.Parameters
	renderer *skyimage.Renderer

	state  viewer.State
	width  int
	height int
	log    *zap.Logger
}

func newApp(cfg *config.Config, bundlePath string) (*app, error) {
	projection, err := skyimage.ParseProjection(cfg.View.Projection)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		params: cfg.Atmosphere,
		state:  viewer.NewState(cfg.View.SunZenith, cfg.View.SunAzimuth, projection, cfg.View.Luminance),
		log:    logger.Named("skyview"),
	}

	a.window, err = viewer.NewWindow(viewer.WindowConfig{
		Title:  "skyview",
		Width:  cfg.View.Width,
		Height: cfg.View.Height,
		VSync:  cfg.View.VSync,
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Screen after window, since the GL context must exist
	a.screen, err = viewer.NewScreen(a.log)
	if err != nil {
		a.window.Close()
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	a.width, a.height = a.window.Size()
	a.screen.Resize(a.width, a.height)
	a.input = viewer.NewInput()

	a.backend = precompute.NewParallelBackend(cfg.Precompute.Workers)
	p, err := precompute.New(cfg.Atmosphere, cfg.PrecomputeOptions(a.backend, logger.Named("precompute")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.driver = viewer.NewDriver(p, a.log)

	if bundlePath != "" {
		if err := a.loadBundle(bundlePath); err != nil {
			a.Close()
			return nil, err
		}
	} else if err := a.driver.Start(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) loadBundle(path string) error {
	set, manifest, err := lutstore.Load(path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	a.log.Info("LUT bundle loaded",
		zap.String("path", path),
		zap.Int("orders", manifest.ScatteringOrders),
		zap.String("encoding", manifest.Encoding))
	return a.publish(set, manifest.Parameters)
}

// publish makes set the displayed LUT set.
func (a *app) publish(set *atmosphere.LUTSet, params atmosphere.Parameters) error {
	sampler, err := atmosphere.NewSampler(params, set)
	if err != nil {
		return err
	}
	a.set = set
	a.params = params
	a.renderer = skyimage.New(sampler, a.backend, a.log)
	a.screen.UploadLUTs(set)
	a.state.HasSingleMie = set.SingleMieScattering != nil
	a.state.Dirty = true
	return nil
}

// Run starts the main loop.
func (a *app) Run() error {
	a.running = true

	frameCount := 0
	fpsTimer := time.Now()

	a.log.Info("starting main loop")

	for a.running {
		if a.input.Update() {
			a.running = false
			break
		}

		for _, event := range a.input.Events() {
			switch event.Type {
			case viewer.EventWindowResize:
				a.width, a.height = a.window.Size()
				a.screen.Resize(a.width, a.height)
				a.state.Dirty = true
			case viewer.EventKeyDown:
				if err := a.handleAction(a.state.HandleKey(event.Key)); err != nil {
					return err
				}
			}
		}

		if err := a.update(); err != nil {
			return fmt.Errorf("update error: %w", err)
		}
		if err := a.render(); err != nil {
			return fmt.Errorf("render error: %w", err)
		}
		a.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			a.log.Debug("fps", zap.Int("count", frameCount))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}
	return nil
}

func (a *app) handleAction(action viewer.Action) error {
	switch action {
	case viewer.ActionQuit:
		a.running = false
	case viewer.ActionRecompute:
		if a.driver.Running() {
			a.log.Info("precomputation already running")
			return nil
		}
		return a.driver.Start()
	case viewer.ActionCancel:
		a.driver.Cancel()
	case viewer.ActionSave:
		if a.set == nil {
			a.log.Warn("nothing to save yet")
			return nil
		}
		path := a.cfg.Output.Path
		if err := lutstore.Save(path, a.set, a.params, a.cfg.Encoding()); err != nil {
			a.log.Error("saving LUT bundle failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		a.log.Info("LUT bundle saved", zap.String("path", path))
	}
	return nil
}

// update advances the precomputation by a few units and shows the result
// once it completes. A failed run ends the viewer with its error.
func (a *app) update() error {
	set, err := a.driver.Advance(context.Background(), a.cfg.View.UnitsPerFrame)
	if err != nil {
		return err
	}
	if set != nil {
		return a.publish(set, a.cfg.Atmosphere)
	}
	return nil
}

func (a *app) render() error {
	done, total := a.driver.Progress()
	var version uint64
	if a.set != nil {
		version = a.set.Version
	}
	a.window.SetTitle(a.state.Title(done, total, version))

	if a.state.Mode == viewer.ModeSky && a.state.Dirty && a.renderer != nil {
		if err := a.renderSky(); err != nil {
			return err
		}
		a.state.Dirty = false
	}
	return a.screen.Draw(&a.state, a.state.Exposure(a.cfg.View.Exposure))
}

func (a *app) renderSky() error {
	w, h := max(a.width/skyScale, 1), max(a.height/skyScale, 1)
	if a.state.Projection == skyimage.Fisheye {
		w = min(w, h)
		h = w
	}
	img, err := a.renderer.Render(skyimage.Options{
		Width:      w,
		Height:     h,
		Projection: a.state.Projection,
		Altitude:   a.cfg.View.Altitude,
		Sun:        a.state.Sun().Direction(),
		Luminance:  a.state.Luminance,
	})
	if err != nil {
		return err
	}
	a.screen.UploadImage(skyimage.ToneMap(img, a.state.Exposure(a.cfg.View.Exposure)))
	return nil
}

// Close releases every resource.
func (a *app) Close() {
	a.log.Info("closing viewer")

	// The run must reach its terminal state before the backend closes.
	if a.driver != nil {
		a.driver.Cancel()
	}
	if a.backend != nil {
		a.backend.Close()
	}
	if a.screen != nil {
		a.screen.Close()
	}
	if a.window != nil {
		a.window.Close()
	}
}
