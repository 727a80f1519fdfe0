// Package power executes host power actions (shutdown, restart, sleep,
// hibernate) behind a per-OS Backend, shelling out to the OS-native
// command for each action the same way the media and procbackend
// packages wrap exec.Command behind an interface.
package power

import "context"

// Backend executes host power actions. Each method returns
// apperr.Unsupported when the action has no implementation on the
// current OS.
type Backend interface {
	Shutdown(ctx context.Context) error
	Restart(ctx context.Context) error
	Sleep(ctx context.Context) error
	Hibernate(ctx context.Context) error
}
