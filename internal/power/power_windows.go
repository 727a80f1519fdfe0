//go:build windows

package power

import (
	"context"
	"os/exec"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// windowsBackend drives power actions through shutdown.exe and
// powrprof.dll's SetSuspendState.
type windowsBackend struct{}

// New builds the Windows power backend.
func New() Backend { return &windowsBackend{} }

func (b *windowsBackend) run(ctx context.Context, name string, args ...string) error {
	if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run "+name)
	}
	return nil
}

func (b *windowsBackend) Shutdown(ctx context.Context) error {
	return b.run(ctx, "shutdown", "/s", "/t", "0")
}

func (b *windowsBackend) Restart(ctx context.Context) error {
	return b.run(ctx, "shutdown", "/r", "/t", "0")
}

func (b *windowsBackend) Sleep(ctx context.Context) error {
	return b.run(ctx, "rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0")
}

func (b *windowsBackend) Hibernate(ctx context.Context) error {
	return b.run(ctx, "shutdown", "/h")
}
