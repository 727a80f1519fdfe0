//go:build linux

package media

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

// linuxBackend drives playback through playerctl (MPRIS) and volume
// through wpctl (PipeWire). There is no amixer fallback: without wpctl,
// volume and mute are not reported and volume actions return
// Unsupported.
type linuxBackend struct{}

// New builds the Linux media backend.
func New() Backend { return &linuxBackend{} }

func (b *linuxBackend) Status(ctx context.Context) (events.MediaStatus, error) {
	volume, muted := b.volumeStatus(ctx)
	status := events.MediaStatus{Status: "stopped", Volume: volume, Muted: muted, SupportsCtrl: b.hasPlayerctl()}

	if !b.hasPlayerctl() {
		return status, nil
	}

	out, err := exec.CommandContext(ctx, "playerctl", "status").Output()
	if err != nil {
		return status, nil
	}
	state := strings.ToLower(strings.TrimSpace(string(out)))
	playing := state == "playing"
	status.Playing = &playing
	status.Status = state

	if meta, err := exec.CommandContext(ctx, "playerctl", "metadata", "--format", "{{title}}||{{artist}}").Output(); err == nil {
		parts := strings.SplitN(strings.TrimSpace(string(meta)), "||", 2)
		if len(parts) == 2 {
			title, artist := parts[0], parts[1]
			status.Title, status.Artist = &title, &artist
		}
	}

	return status, nil
}

func (b *linuxBackend) hasPlayerctl() bool {
	_, err := exec.LookPath("playerctl")
	return err == nil
}

func (b *linuxBackend) volumeStatus(ctx context.Context) (*int, *bool) {
	if _, err := exec.LookPath("wpctl"); err == nil {
		out, err := exec.CommandContext(ctx, "wpctl", "get-volume", "@DEFAULT_AUDIO_SINK@").Output()
		if err == nil {
			fields := strings.Fields(string(out))
			if len(fields) >= 2 {
				if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
					pct := int(v * 100)
					muted := strings.Contains(string(out), "MUTED")
					return &pct, &muted
				}
			}
		}
	}
	return nil, nil
}

func (b *linuxBackend) Control(ctx context.Context, action string, value int) error {
	switch action {
	case ActionPlay:
		return b.playerctl(ctx, "play")
	case ActionPause:
		return b.playerctl(ctx, "pause")
	case ActionPlayPause:
		return b.playerctl(ctx, "play-pause")
	case ActionNext:
		return b.playerctl(ctx, "next")
	case ActionPrev:
		return b.playerctl(ctx, "previous")
	case ActionVolumeUp:
		return b.setVolumeRelative(ctx, "5%+")
	case ActionVolumeDown:
		return b.setVolumeRelative(ctx, "5%-")
	case ActionSetVolume:
		return b.setVolumeAbsolute(ctx, value)
	case ActionMute:
		return b.setMute(ctx, "1")
	case ActionUnmute:
		return b.setMute(ctx, "0")
	case ActionToggleMute:
		return b.setMute(ctx, "toggle")
	default:
		return apperr.New(apperr.BadRequest, "unknown media action")
	}
}

func (b *linuxBackend) playerctl(ctx context.Context, verb string) error {
	if !b.hasPlayerctl() {
		return apperr.New(apperr.Unsupported, "playerctl not found")
	}
	if err := exec.CommandContext(ctx, "playerctl", verb).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run playerctl "+verb)
	}
	return nil
}

func (b *linuxBackend) setVolumeRelative(ctx context.Context, delta string) error {
	if _, err := exec.LookPath("wpctl"); err != nil {
		return apperr.New(apperr.Unsupported, "wpctl not found")
	}
	if err := exec.CommandContext(ctx, "wpctl", "set-volume", "@DEFAULT_AUDIO_SINK@", delta).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run wpctl set-volume")
	}
	return nil
}

func (b *linuxBackend) setVolumeAbsolute(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return apperr.New(apperr.BadRequest, "volume must be in [0, 100]")
	}
	if _, err := exec.LookPath("wpctl"); err != nil {
		return apperr.New(apperr.Unsupported, "wpctl not found")
	}
	level := strconv.Itoa(percent) + "%"
	if err := exec.CommandContext(ctx, "wpctl", "set-volume", "@DEFAULT_AUDIO_SINK@", level).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run wpctl set-volume")
	}
	return nil
}

func (b *linuxBackend) setMute(ctx context.Context, value string) error {
	if _, err := exec.LookPath("wpctl"); err != nil {
		return apperr.New(apperr.Unsupported, "wpctl not found")
	}
	if err := exec.CommandContext(ctx, "wpctl", "set-mute", "@DEFAULT_AUDIO_SINK@", value).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run wpctl set-mute")
	}
	return nil
}
