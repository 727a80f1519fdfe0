package procbackend

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNameStripsHelperSuffixes(t *testing.T) {
	cases := map[string]string{
		"Google Chrome Helper (Renderer)": "Google Chrome",
		"Google Chrome Helper (GPU)":      "Google Chrome",
		"Firefox Helper":                  "Firefox",
		"/usr/bin/plainproc":              "plainproc",
		"Slack":                           "Slack",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeName(in), "input %q", in)
	}
}

func TestListGroupsCurrentProcess(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := b.List(ctx)
	require.NoError(t, err)
	assert.Greater(t, payload.TotalCount, 0)
	for i := 1; i < len(payload.Processes); i++ {
		assert.GreaterOrEqual(t, payload.Processes[i-1].Memory, payload.Processes[i].Memory)
	}
}

func TestLaunchStartsProcess(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shell := "/bin/true"
	if _, err := os.Stat(shell); err != nil {
		t.Skip("/bin/true not present on this host")
	}

	pid, err := b.Launch(ctx, shell, nil)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}

func TestKillByNameReturnsNotFoundForUnknownProcess(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := b.KillByName(ctx, "definitely-not-a-real-process-name-xyz")
	assert.Error(t, err)
}
