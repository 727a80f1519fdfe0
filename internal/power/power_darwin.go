//go:build darwin

package power

import (
	"context"
	"os/exec"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// darwinBackend drives shutdown/restart through System Events and
// sleep through pmset. macOS has no hibernate distinct from
// sleep-to-disk that a CLI can trigger directly, so Hibernate reports
// Unsupported.
type darwinBackend struct{}

// New builds the macOS power backend.
func New() Backend { return &darwinBackend{} }

func (b *darwinBackend) osascript(ctx context.Context, script string) error {
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run osascript power action")
	}
	return nil
}

func (b *darwinBackend) Shutdown(ctx context.Context) error {
	return b.osascript(ctx, `tell application "System Events" to shut down`)
}

func (b *darwinBackend) Restart(ctx context.Context) error {
	return b.osascript(ctx, `tell application "System Events" to restart`)
}

func (b *darwinBackend) Sleep(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "pmset", "sleepnow").Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run pmset sleepnow")
	}
	return nil
}

func (b *darwinBackend) Hibernate(context.Context) error {
	return apperr.New(apperr.Unsupported, "hibernate is not supported on macOS")
}
