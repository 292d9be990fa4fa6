package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hubctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
id = "hub.alpha"
addr = "127.0.0.1:6060"
admin_listen_addr = "127.0.0.1:7070"
admin_cors_origins = [" http://ops.local ", ""]
max_payload_bytes = 1048576
read_timeout = "30s"
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HubID != "hub.alpha" {
		t.Fatalf("unexpected hub id: %q", cfg.HubID)
	}
	if cfg.ListenAddr != "127.0.0.1:6060" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.AdminListenAddr != "127.0.0.1:7070" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminListenAddr)
	}
	if len(cfg.AdminCORSOrigins) != 1 || cfg.AdminCORSOrigins[0] != "http://ops.local" {
		t.Fatalf("unexpected cors origins: %q", cfg.AdminCORSOrigins)
	}
	if cfg.Session.Limits.MaxPayloadBytes != 1<<20 {
		t.Fatalf("unexpected payload limit: %d", cfg.Session.Limits.MaxPayloadBytes)
	}
	if cfg.Session.ReadTimeout != 30*time.Second {
		t.Fatalf("unexpected read timeout: %s", cfg.Session.ReadTimeout)
	}
	if cfg.Session.WriteTimeout != 0 {
		t.Fatalf("write timeout should keep default, got %s", cfg.Session.WriteTimeout)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := loadServiceConfig(writeConfig(t, `id = "hub.beta"`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != ":5050" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.AdminListenAddr != "" {
		t.Fatalf("admin surface should stay disabled, got %q", cfg.AdminListenAddr)
	}
}

func TestLoadServiceConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown key":      `adress = "x"`,
		"bad duration":     `read_timeout = "soon"`,
		"negative payload": `max_payload_bytes = -1`,
		"empty addr":       `addr = "  "`,
	}
	for name, content := range cases {
		if _, err := loadServiceConfig(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.Contains(err.Error(), "load hub config") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "addr", "admin-addr"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
}
