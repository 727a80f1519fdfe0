// Package app wires up and runs the application services: config,
// registry, bus, loop manager, per-OS backends, the wsapi router, and
// the listener supervisor, assembling them into the full
// subscription-driven fan-out engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hostbridge/sysbridge/internal/bus"
	"github.com/hostbridge/sysbridge/internal/config"
	"github.com/hostbridge/sysbridge/internal/gpu"
	"github.com/hostbridge/sysbridge/internal/loopmgr"
	"github.com/hostbridge/sysbridge/internal/media"
	"github.com/hostbridge/sysbridge/internal/power"
	"github.com/hostbridge/sysbridge/internal/procbackend"
	"github.com/hostbridge/sysbridge/internal/registry"
	"github.com/hostbridge/sysbridge/internal/supervisor"
	"github.com/hostbridge/sysbridge/internal/syssampler"
	"github.com/hostbridge/sysbridge/internal/wsapi"
)

// Options configures a Run invocation, threaded explicitly rather than
// read from package state.
type Options struct {
	ConfigPath       string
	SysfsRoot        string
	DebugfsRoot      string
	EnablePrometheus bool
}

// Run bootstraps every collaborator, assembles the wsapi.Server, and
// runs the listener supervisor until ctx is cancelled.
func Run(ctx context.Context, logger *slog.Logger, opts Options) error {
	cfgManager, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer func() {
		if err := cfgManager.Close(); err != nil {
			logger.Warn("config watcher close", "err", err)
		}
	}()
	if err := cfgManager.Watch(); err != nil {
		logger.Warn("config file watch unavailable", "err", err)
	}

	reg := registry.New()
	eventBus := bus.New()
	defer eventBus.Close()

	sys := syssampler.New(logger)

	cfg := cfgManager.Get()
	gpuSampler := gpu.New(opts.SysfsRoot, opts.DebugfsRoot, logger)
	gpuCache := gpu.NewCache(gpuSampler, time.Duration(cfg.Stats.DiskCacheSeconds)*time.Second)

	mediaBackend := media.New()
	procBackend := procbackend.New(nil)
	powerBackend := power.New()

	loopMgr := loopmgr.New(ctx, reg, eventBus, cfgManager, sys, gpuCache, mediaBackend, procBackend, logger)

	deps := wsapi.Deps{
		Config:   cfgManager,
		Bus:      eventBus,
		Registry: reg,
		LoopMgr:  loopMgr,
		Sys:      sys,
		GPU:      gpuCache,
		Media:    mediaBackend,
		Proc:     procBackend,
		Power:    powerBackend,
		Logger:   logger,
	}

	handlerFactory := func(config.AppConfig) http.Handler {
		return wsapi.New(deps, opts.EnablePrometheus)
	}

	super := supervisor.New(cfgManager, handlerFactory, logger)
	logger.Info("starting listener supervisor")
	return super.Run(ctx)
}
