//go:build darwin

package procbackend

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// Focus asks the window server to activate pid's application via
// osascript.
func (b *Backend) Focus(ctx context.Context, pid uint32) error {
	script := fmt.Sprintf(`tell application "System Events" to set frontmost of (first process whose unix id is %d) to true`, pid)
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "focus process via osascript")
	}
	return nil
}
