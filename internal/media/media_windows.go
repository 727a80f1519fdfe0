//go:build windows

package media

import (
	"context"
	"os/exec"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// windowsBackend drives playback and volume through PowerShell's virtual
// key SendKeys, since a full SMTC/IAudioEndpointVolume COM binding has
// no counterpart among this module's dependencies. Status always reports
// "unknown": volume, mute, playing state, title and artist are not read.
type windowsBackend struct{}

// New builds the Windows media backend.
func New() Backend { return &windowsBackend{} }

func (b *windowsBackend) Status(ctx context.Context) (events.MediaStatus, error) {
	return events.MediaStatus{Status: "unknown", SupportsCtrl: true}, nil
}

func (b *windowsBackend) Control(ctx context.Context, action string, value int) error {
	var vk string
	switch action {
	case ActionPlay, ActionPause, ActionPlayPause:
		vk = "{MEDIA_PLAY_PAUSE}"
	case ActionNext:
		vk = "{MEDIA_NEXT_TRACK}"
	case ActionPrev:
		vk = "{MEDIA_PREV_TRACK}"
	case ActionVolumeUp:
		vk = "{VOLUME_UP}"
	case ActionVolumeDown:
		vk = "{VOLUME_DOWN}"
	case ActionToggleMute, ActionMute, ActionUnmute:
		vk = "{VOLUME_MUTE}"
	case ActionSetVolume:
		return b.setVolume(ctx, value)
	default:
		return apperr.New(apperr.BadRequest, "unknown media action")
	}

	script := `(New-Object -ComObject WScript.Shell).SendKeys('` + vk + `')`
	if err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "send media key")
	}
	return nil
}

func (b *windowsBackend) setVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return apperr.New(apperr.BadRequest, "volume must be in [0, 100]")
	}
	// Drive to zero, then tap volume-up the right number of times
	// (Windows steps volume in units of 2 per SendKeys press).
	const downPress = `(New-Object -ComObject WScript.Shell).SendKeys('{VOLUME_DOWN}');`
	script := strings.Repeat(downPress, 50)
	if steps := percent / 2; steps > 0 {
		script += strings.Repeat(`(New-Object -ComObject WScript.Shell).SendKeys('{VOLUME_UP}');`, steps)
	}
	if err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "set volume")
	}
	return nil
}
