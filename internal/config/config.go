// Package config loads, validates, persists, and hot-reloads the
// bridge's JSON configuration document. It is a structured document
// built on github.com/spf13/viper: missing keys tolerate defaults and
// get re-saved on load, and github.com/fsnotify/fsnotify drives
// hot-reload for the supervisor's reload path.
package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/hostbridge/sysbridge/internal/apperr"
)

// ServerConfig is the listener's bind address.
type ServerConfig struct {
	Port int    `mapstructure:"port" json:"port"`
	Host string `mapstructure:"host" json:"host"`
}

// DisplayConfig holds cosmetic, client-facing identification.
type DisplayConfig struct {
	Hostname string `mapstructure:"hostname" json:"hostname"`
}

// FeaturesConfig gates which operations and data surfaces are exposed.
type FeaturesConfig struct {
	EnableShutdown   bool `mapstructure:"enable_shutdown" json:"enable_shutdown"`
	EnableRestart    bool `mapstructure:"enable_restart" json:"enable_restart"`
	EnableHibernate  bool `mapstructure:"enable_hibernate" json:"enable_hibernate"`
	EnableSleep      bool `mapstructure:"enable_sleep" json:"enable_sleep"`
	EnableSystem     bool `mapstructure:"enable_system" json:"enable_system"`
	EnableUsage      bool `mapstructure:"enable_usage" json:"enable_usage"`
	EnableStats      bool `mapstructure:"enable_stats" json:"enable_stats"`
	EnableMedia      bool `mapstructure:"enable_media" json:"enable_media"`
	EnableProcesses  bool `mapstructure:"enable_processes" json:"enable_processes"`
	EnableStream     bool `mapstructure:"enable_stream" json:"enable_stream"`
	EnableAutostart  bool `mapstructure:"enable_autostart" json:"enable_autostart"`
}

// StatsConfig tunes the sampling/caching cadence.
type StatsConfig struct {
	GPUEnabled            bool `mapstructure:"gpu_enabled" json:"gpu_enabled"`
	DiskCacheSeconds      int  `mapstructure:"disk_cache_seconds" json:"disk_cache_seconds"`
	StreamIntervalSeconds int  `mapstructure:"stream_interval_seconds" json:"stream_interval_seconds"`
}

// AuthConfig controls bearer-token auth and the IP allow/block lists.
type AuthConfig struct {
	Enabled    bool     `mapstructure:"enabled" json:"enabled"`
	APIKey     string   `mapstructure:"api_key" json:"api_key"`
	AllowedIPs []string `mapstructure:"allowed_ips" json:"allowed_ips"`
	BlockedIPs []string `mapstructure:"blocked_ips" json:"blocked_ips"`
}

// TopicConfig is a single loop family's enable flag and tick interval.
type TopicConfig struct {
	Enabled    bool `mapstructure:"enabled" json:"enabled"`
	IntervalMs int  `mapstructure:"interval_ms" json:"interval_ms"`
}

// WebSocketConfig holds the per-family loop tunables.
type WebSocketConfig struct {
	Stats     TopicConfig `mapstructure:"stats" json:"stats"`
	Media     TopicConfig `mapstructure:"media" json:"media"`
	Processes TopicConfig `mapstructure:"processes" json:"processes"`
}

// AppConfig is the full configuration document persisted to disk.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" json:"server"`
	Display   DisplayConfig   `mapstructure:"display" json:"display"`
	Features  FeaturesConfig  `mapstructure:"features" json:"features"`
	Stats     StatsConfig     `mapstructure:"stats" json:"stats"`
	Auth      AuthConfig      `mapstructure:"auth" json:"auth"`
	WebSocket WebSocketConfig `mapstructure:"websocket" json:"websocket"`
}

// Defaults returns the document shipped when no config.json exists yet.
func Defaults() AppConfig {
	return AppConfig{
		Server:  ServerConfig{Port: 9990, Host: "0.0.0.0"},
		Display: DisplayConfig{Hostname: ""},
		Features: FeaturesConfig{
			EnableShutdown:  false,
			EnableRestart:   false,
			EnableHibernate: true,
			EnableSleep:     true,
			EnableSystem:    true,
			EnableUsage:     true,
			EnableStats:     true,
			EnableMedia:     true,
			EnableProcesses: true,
			EnableStream:    true,
			EnableAutostart: true,
		},
		Stats: StatsConfig{
			GPUEnabled:            true,
			DiskCacheSeconds:      30,
			StreamIntervalSeconds: 2,
		},
		Auth: AuthConfig{
			Enabled:    false,
			APIKey:     "",
			AllowedIPs: []string{},
			BlockedIPs: []string{},
		},
		WebSocket: WebSocketConfig{
			Stats:     TopicConfig{Enabled: true, IntervalMs: 1000},
			Media:     TopicConfig{Enabled: true, IntervalMs: 500},
			Processes: TopicConfig{Enabled: true, IntervalMs: 3000},
		},
	}
}

// Validate enforces field bounds, returning an apperr BadRequest on the
// first violation found.
func Validate(cfg AppConfig) error {
	if cfg.Server.Port < 1024 || cfg.Server.Port > 65535 {
		return apperr.New(apperr.BadRequest, "server.port must be in [1024, 65535]")
	}
	if cfg.Server.Host != "" && net.ParseIP(cfg.Server.Host) == nil {
		if _, _, err := net.ParseCIDR(cfg.Server.Host + "/32"); err != nil && cfg.Server.Host != "0.0.0.0" {
			// Hostnames (e.g. "localhost") are accepted; only reject
			// strings that look like a malformed address.
			if net.ParseIP(cfg.Server.Host) == nil && !isLikelyHostname(cfg.Server.Host) {
				return apperr.New(apperr.BadRequest, "server.host is not a valid address or hostname")
			}
		}
	}
	if cfg.Stats.DiskCacheSeconds < 1 || cfg.Stats.DiskCacheSeconds > 300 {
		return apperr.New(apperr.BadRequest, "stats.disk_cache_seconds must be in [1, 300]")
	}
	if cfg.Stats.StreamIntervalSeconds < 1 || cfg.Stats.StreamIntervalSeconds > 60 {
		return apperr.New(apperr.BadRequest, "stats.stream_interval_seconds must be in [1, 60]")
	}
	for name, t := range map[string]TopicConfig{
		"websocket.stats": cfg.WebSocket.Stats, "websocket.media": cfg.WebSocket.Media,
		"websocket.processes": cfg.WebSocket.Processes,
	} {
		if t.IntervalMs < 100 || t.IntervalMs > 60000 {
			return apperr.New(apperr.BadRequest, name+".interval_ms must be in [100, 60000]")
		}
	}
	if err := validateIPList("auth.allowed_ips", cfg.Auth.AllowedIPs); err != nil {
		return err
	}
	if err := validateIPList("auth.blocked_ips", cfg.Auth.BlockedIPs); err != nil {
		return err
	}
	return nil
}

// validateIPList rejects any entry that parses as neither a bare IP
// address nor an addr/prefix CIDR, so a malformed entry is caught at
// load time instead of failing closed later at match time.
func validateIPList(field string, entries []string) error {
	for _, entry := range entries {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		return apperr.New(apperr.BadRequest, field+" entry "+entry+" is not a valid address or addr/prefix")
	}
	return nil
}

func isLikelyHostname(host string) bool {
	if host == "" {
		return false
	}
	for _, r := range host {
		if !(r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Manager owns the live AppConfig, the file it's persisted to, and an
// optional fsnotify watch that re-reads and re-validates the file on
// external edits, swapping the in-memory copy under lock.
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	cfg      AppConfig
	path     string
	watcher  *fsnotify.Watcher
	onChange []func(AppConfig)
}

// Load reads path (creating it with Defaults() if absent), merges it
// over the defaults so missing keys tolerate older files, validates the
// result, and re-saves so new fields (e.g. a websocket block added by a
// newer build) are persisted back.
func Load(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	def := Defaults()
	setViperDefaults(v, def)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, apperr.Wrap(apperr.ParseError, err, "read config file")
			}
		}
		// No file yet: write the defaults so the path exists for the
		// next load and for external editors.
		if err := writeConfig(path, def); err != nil {
			return nil, err
		}
		return &Manager{v: v, cfg: def, path: path}, nil
	}

	cfg := def
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Wrap(apperr.ParseError, err, "decode config file")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if err := writeConfig(path, cfg); err != nil {
		return nil, err
	}
	return &Manager{v: v, cfg: cfg, path: path}, nil
}

func setViperDefaults(v *viper.Viper, def AppConfig) {
	raw, _ := json.Marshal(def)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	for k, val := range m {
		v.SetDefault(k, val)
	}
}

func writeConfig(path string, cfg AppConfig) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.Internal, err, "create config directory")
		}
	}
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "encode config")
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, err, "write config file")
	}
	return nil
}

// Get returns a copy of the current config, safe for concurrent callers.
func (m *Manager) Get() AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Save validates and persists a replacement config, notifying watchers.
func (m *Manager) Save(cfg AppConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := writeConfig(m.path, cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	listeners := append([]func(AppConfig){}, m.onChange...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnChange registers a callback invoked after every successful Save or
// file-triggered reload. Intended for the supervisor's reload wiring:
// mutate config, then let listeners react to the new document.
func (m *Manager) OnChange(fn func(AppConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Watch starts an fsnotify watch on the config file's directory, so a
// hand edit on disk also triggers a reload. An edit that cannot be read,
// decoded or validated is ignored without logging: the in-memory config
// stays as it was and no OnChange listener runs.
func (m *Manager) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "create config watcher")
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return apperr.Wrap(apperr.Internal, err, "watch config directory")
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.reloadFromDisk()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (m *Manager) reloadFromDisk() {
	body, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	cfg := Defaults()
	if err := json.Unmarshal(body, &cfg); err != nil {
		return
	}
	if err := Validate(cfg); err != nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	listeners := append([]func(AppConfig){}, m.onChange...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Close stops the fsnotify watch, if one was started.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}
