package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/relayctl/internal/agent"
)

// agentctl config.toml key mapping to agent runtime settings.
type fileConfig struct {
	HubAddress            string `toml:"hub_address"`
	Alias                 string `toml:"alias"`
	MaxConcurrentCommands int    `toml:"max_concurrent_commands"`
	CommandQueueDepth     int    `toml:"command_queue_depth"`
	CommandTimeout        string `toml:"command_timeout"`
	ConnectTimeout        string `toml:"connect_timeout"`
	MaxPayloadBytes       int64  `toml:"max_payload_bytes"`
	MetricsListenAddr     string `toml:"metrics_listen_addr"`
}

// agentctl loader for TOML config with default overlay.
func loadClientConfig(path string) (agent.Config, error) {
	cfg := agent.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return agent.Config{}, fmt.Errorf("load agent config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return agent.Config{}, fmt.Errorf("load agent config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("hub_address") {
		cfg.HubAddress = strings.TrimSpace(raw.HubAddress)
	}
	if meta.IsDefined("alias") {
		cfg.Alias = strings.TrimSpace(raw.Alias)
	}
	if meta.IsDefined("max_concurrent_commands") {
		if raw.MaxConcurrentCommands <= 0 {
			return agent.Config{}, fmt.Errorf("load agent config: max_concurrent_commands must be positive")
		}
		cfg.Executor.MaxConcurrent = raw.MaxConcurrentCommands
	}
	if meta.IsDefined("command_queue_depth") {
		if raw.CommandQueueDepth <= 0 {
			return agent.Config{}, fmt.Errorf("load agent config: command_queue_depth must be positive")
		}
		cfg.Executor.QueueDepth = raw.CommandQueueDepth
	}
	if meta.IsDefined("command_timeout") {
		d, err := parseDuration("command_timeout", raw.CommandTimeout)
		if err != nil {
			return agent.Config{}, err
		}
		cfg.Executor.CommandTimeout = d
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return agent.Config{}, err
		}
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 {
			return agent.Config{}, fmt.Errorf("load agent config: max_payload_bytes must be positive")
		}
		cfg.Session.Limits.MaxPayloadBytes = uint64(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("metrics_listen_addr") {
		cfg.MetricsListenAddr = strings.TrimSpace(raw.MetricsListenAddr)
	}

	if cfg.HubAddress == "" {
		return agent.Config{}, fmt.Errorf("load agent config: hub_address must not be empty")
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("load agent config: invalid %s %q", key, raw)
	}
	return d, nil
}
