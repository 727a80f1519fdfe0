//go:build linux

package procbackend

import (
	"context"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// Focus has no portable equivalent on headless/Wayland Linux without an
// extra windowing dependency the example pack doesn't carry, so it
// reports Unsupported rather than guessing at a window manager.
func (b *Backend) Focus(_ context.Context, _ uint32) error {
	return apperr.New(apperr.Unsupported, "window focus is not supported on linux")
}
