//go:build !linux

package gpu

import (
	"context"
	"log/slog"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// sysfsProbe is a no-op off Linux; newSysfsProbe still exists so the
// Sampler constructor doesn't need per-platform build tags of its own.
type sysfsProbe struct{}

func newSysfsProbe(_, _ string, _ *slog.Logger) *sysfsProbe { return &sysfsProbe{} }

func (p *sysfsProbe) Name() string { return "sysfs" }

func (p *sysfsProbe) Sample(context.Context) (events.GpuUsage, string, error) {
	return events.GpuUsage{}, "", apperr.New(apperr.Unsupported, "sysfs gpu probe unavailable on this platform")
}
