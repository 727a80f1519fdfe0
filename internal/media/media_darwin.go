//go:build darwin

package media

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/events"
)

const mediaPlayerScript = `
tell application "System Events"
	set spotifyRunning to (name of processes) contains "Spotify"
	set musicRunning to (name of processes) contains "Music"
end tell
if spotifyRunning then
	tell application "Spotify"
		return "Spotify" & "||" & (player state as string) & "||" & (name of current track) & "||" & (artist of current track)
	end tell
else if musicRunning then
	tell application "Music"
		return "Music" & "||" & (player state as string) & "||" & (name of current track) & "||" & (artist of current track)
	end tell
end if
return "None"
`

// darwinBackend shells out to osascript to query and control the
// Music/Spotify session and system volume.
type darwinBackend struct{}

// New builds the macOS media backend.
func New() Backend { return &darwinBackend{} }

func (b *darwinBackend) Status(ctx context.Context) (events.MediaStatus, error) {
	volume, muted := b.volumeSettings(ctx)

	out, err := exec.CommandContext(ctx, "osascript", "-e", mediaPlayerScript).Output()
	if err != nil {
		return events.MediaStatus{Status: "stopped", Volume: volume, Muted: muted, SupportsCtrl: true}, nil
	}

	res := strings.TrimSpace(string(out))
	status := "stopped"
	var title, artist *string
	playing := false
	if res != "None" && res != "" {
		parts := strings.Split(res, "||")
		if len(parts) >= 4 {
			status = strings.ToLower(parts[1])
			playing = status == "playing"
			t, a := parts[2], parts[3]
			title, artist = &t, &a
		}
	}

	return events.MediaStatus{
		Status:       status,
		Volume:       volume,
		Muted:        muted,
		Playing:      &playing,
		Title:        title,
		Artist:       artist,
		SupportsCtrl: true,
	}, nil
}

func (b *darwinBackend) volumeSettings(ctx context.Context) (*int, *bool) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", "get volume settings").Output()
	if err != nil {
		return nil, nil
	}
	var volume *int
	var muted *bool
	for _, part := range strings.Split(string(out), ",") {
		if strings.Contains(part, "output volume:") {
			raw := strings.TrimSpace(strings.Split(part, ":")[len(strings.Split(part, ":"))-1])
			if v, err := strconv.Atoi(raw); err == nil {
				volume = &v
			}
		}
		if strings.Contains(part, "output muted:") {
			m := strings.Contains(part, "true")
			muted = &m
		}
	}
	return volume, muted
}

func (b *darwinBackend) Control(ctx context.Context, action string, value int) error {
	var script string
	switch action {
	case ActionPlay, ActionPause, ActionPlayPause:
		script = `
tell application "System Events"
	set spotifyRunning to (name of processes) contains "Spotify"
	set musicRunning to (name of processes) contains "Music"
end tell
if spotifyRunning then
	tell application "Spotify" to playpause
else if musicRunning then
	tell application "Music" to playpause
end if
`
	case ActionNext:
		script = `
tell application "System Events"
	set spotifyRunning to (name of processes) contains "Spotify"
	set musicRunning to (name of processes) contains "Music"
end tell
if spotifyRunning then
	tell application "Spotify" to next track
else if musicRunning then
	tell application "Music" to next track
end if
`
	case ActionPrev:
		script = `
tell application "System Events"
	set spotifyRunning to (name of processes) contains "Spotify"
	set musicRunning to (name of processes) contains "Music"
end tell
if spotifyRunning then
	tell application "Spotify" to previous track
else if musicRunning then
	tell application "Music" to previous track
end if
`
	case ActionVolumeUp:
		script = "set volume output volume ((output volume of (get volume settings)) + 5)"
	case ActionVolumeDown:
		script = "set volume output volume ((output volume of (get volume settings)) - 5)"
	case ActionSetVolume:
		script = "set volume output volume " + strconv.Itoa(value)
	case ActionMute:
		script = "set volume with output muted"
	case ActionUnmute:
		script = "set volume without output muted"
	case ActionToggleMute:
		script = "set volume output muted (not (output muted of (get volume settings)))"
	default:
		return apperr.New(apperr.BadRequest, "unknown media action")
	}

	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return apperr.Wrap(apperr.Internal, err, "run osascript media action")
	}
	return nil
}
