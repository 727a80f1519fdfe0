package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	mgr, err := Load(path)
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, 9990, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Features.EnableHibernate)
	assert.False(t, cfg.Features.EnableShutdown)
	assert.Equal(t, 30, cfg.Stats.DiskCacheSeconds)
	assert.Equal(t, 1000, cfg.WebSocket.Stats.IntervalMs)
	assert.FileExists(t, path)
}

func TestLoadTakesOverrideFieldsAndKeepsDefaultsForRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, writeConfig(path, AppConfig{
		Server:    ServerConfig{Port: 9990, Host: "0.0.0.0"},
		Display:   DisplayConfig{Hostname: "mybox"},
		Features:  Defaults().Features,
		Stats:     Defaults().Stats,
		Auth:      Defaults().Auth,
		WebSocket: Defaults().WebSocket,
	}))

	mgr, err := Load(path)
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, "mybox", cfg.Display.Hostname)
	assert.True(t, cfg.Features.EnableStats)
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 80
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeDiskCache(t *testing.T) {
	cfg := Defaults()
	cfg.Stats.DiskCacheSeconds = 0
	assert.Error(t, Validate(cfg))

	cfg.Stats.DiskCacheSeconds = 301
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeStreamInterval(t *testing.T) {
	cfg := Defaults()
	cfg.Stats.StreamIntervalSeconds = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeIntervalMs(t *testing.T) {
	cfg := Defaults()
	cfg.WebSocket.Media.IntervalMs = 50
	assert.Error(t, Validate(cfg))

	cfg.WebSocket.Media.IntervalMs = 70000
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestSavePersistsAndNotifiesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := Load(path)
	require.NoError(t, err)

	var seen AppConfig
	mgr.OnChange(func(c AppConfig) { seen = c })

	next := mgr.Get()
	next.Display.Hostname = "renamed"
	require.NoError(t, mgr.Save(next))

	assert.Equal(t, "renamed", mgr.Get().Display.Hostname)
	assert.Equal(t, "renamed", seen.Display.Hostname)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := Load(path)
	require.NoError(t, err)

	bad := mgr.Get()
	bad.Server.Port = 1
	assert.Error(t, mgr.Save(bad))
}
