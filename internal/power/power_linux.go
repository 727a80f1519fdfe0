//go:build linux

package power

import (
	"context"
	"os/exec"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// linuxBackend drives power actions through systemctl, the standard
// systemd entry point.
type linuxBackend struct{}

// New builds the Linux power backend.
func New() Backend { return &linuxBackend{} }

func (b *linuxBackend) run(ctx context.Context, action string, args ...string) error {
	cmd := exec.CommandContext(ctx, action, args...)
	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run "+action)
	}
	return nil
}

func (b *linuxBackend) Shutdown(ctx context.Context) error {
	return b.run(ctx, "systemctl", "poweroff")
}

func (b *linuxBackend) Restart(ctx context.Context) error {
	return b.run(ctx, "systemctl", "reboot")
}

func (b *linuxBackend) Sleep(ctx context.Context) error {
	return b.run(ctx, "systemctl", "suspend")
}

func (b *linuxBackend) Hibernate(ctx context.Context) error {
	return b.run(ctx, "systemctl", "hibernate")
}
