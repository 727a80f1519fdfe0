// Package media reports and controls the host's media session and
// output volume through a single Backend interface with one
// implementation per platform.
package media

import (
	"context"

	"github.com/hostbridge/sysbridge/internal/events"
)

// Action names accepted by Control.
const (
	ActionPlay       = "play"
	ActionPause      = "pause"
	ActionPlayPause  = "play_pause"
	ActionNext       = "next"
	ActionPrev       = "prev"
	ActionVolumeUp   = "volume_up"
	ActionVolumeDown = "volume_down"
	ActionSetVolume  = "set_volume"
	ActionMute       = "mute"
	ActionUnmute     = "unmute"
	ActionToggleMute = "toggle_mute"
)

// Backend reports and controls the host's active media session.
type Backend interface {
	Status(ctx context.Context) (events.MediaStatus, error)
	Control(ctx context.Context, action string, value int) error
}
