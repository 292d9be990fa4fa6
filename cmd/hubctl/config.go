package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/relayctl/internal/hub"
)

// hubctl config.toml key mapping to hub runtime settings.
type fileConfig struct {
	Addr             string   `toml:"addr"`
	ID               string   `toml:"id"`
	AdminListenAddr  string   `toml:"admin_listen_addr"`
	AdminCORSOrigins []string `toml:"admin_cors_origins"`
	MaxPayloadBytes  int64    `toml:"max_payload_bytes"`
	ReadTimeout      string   `toml:"read_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
}

// hubctl loader for TOML config with default overlay.
func loadServiceConfig(path string) (hub.ServiceConfig, error) {
	cfg := hub.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return hub.ServiceConfig{}, fmt.Errorf("load hub config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return hub.ServiceConfig{}, fmt.Errorf("load hub config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("id") {
		cfg.HubID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminCORSOrigins = trimAll(raw.AdminCORSOrigins)
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 {
			return hub.ServiceConfig{}, fmt.Errorf("load hub config: max_payload_bytes must be positive")
		}
		cfg.Session.Limits.MaxPayloadBytes = uint64(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return hub.ServiceConfig{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return hub.ServiceConfig{}, err
		}
		cfg.Session.WriteTimeout = d
	}

	if cfg.ListenAddr == "" {
		return hub.ServiceConfig{}, fmt.Errorf("load hub config: addr must not be empty")
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("load hub config: invalid %s %q", key, raw)
	}
	return d, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
