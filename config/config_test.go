package config

import (
	"strings"
	"testing"
	"time"

	gerr "memoryd/internal/errors"
)

// ── Mode ─────────────────────────────────────────────────────────────

func TestMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Mode
	}{
		{"default", Config{}, ModeServe},
		{"connect", Config{Connect: "localhost:8080"}, ModeConnect},
		{"history wins", Config{Connect: "localhost:8080", ShowHistory: 5}, ModeHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Mode(); got != tt.want {
				t.Errorf("Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != DefaultPort || cfg.ThinkTime != 2*time.Second || cfg.OutboxSize != DefaultOutboxSize {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if got := cfg.ListenAddr(); got != ":8080" {
		t.Errorf("ListenAddr() = %q", got)
	}
	if got := cfg.WSAddr(); got != "" {
		t.Errorf("WSAddr() = %q, want empty", got)
	}
}

func TestSSHTarget(t *testing.T) {
	cfg := Default()
	cfg.SSHKeyPath = "/tmp/id"
	cfg.UseSSHAgent = true

	ssh, err := cfg.SSHTarget("admin@bastion.example.com:2222")
	if err != nil {
		t.Fatal(err)
	}
	if ssh.User != "admin" || ssh.Host != "bastion.example.com" || ssh.Port != 2222 {
		t.Errorf("target = %+v", ssh)
	}
	if ssh.KeyPath != "/tmp/id" || !ssh.UseAgent || ssh.ConnTimeout != DefaultConnTimeout {
		t.Errorf("auth options not applied: %+v", ssh)
	}
}

// ── Validation ───────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string // expected ConfigError field, "" for success
		wantSub string
	}{
		{"defaults", func(*Config) {}, "", ""},
		{"ephemeral port", func(c *Config) { c.Port = 0 }, "", ""},
		{"port too big", func(c *Config) { c.Port = 70000 }, "port", "out of range"},
		{"negative think time", func(c *Config) { c.ThinkTime = -time.Second }, "think-time", "negative"},
		{"zero think time", func(c *Config) { c.ThinkTime = 0 }, "", ""},
		{"empty outbox", func(c *Config) { c.OutboxSize = 0 }, "outbox", "hint:"},
		{"zero stall timeout", func(c *Config) { c.StallTimeout = 0 }, "stall-timeout", "positive"},
		{"tiny line limit", func(c *Config) { c.MaxLineBytes = 8 }, "max-line", "at least"},
		{"ws collides", func(c *Config) { c.WSPort = c.Port }, "ws-port", "hint:"},
		{"ws ok", func(c *Config) { c.WSPort = 8081 }, "", ""},
		{"tunnel without remote port", func(c *Config) { c.ReverseTunnelSpec = "user@gw" }, "remote-port", "hint:"},
		{"tunnel ok", func(c *Config) { c.ReverseTunnelSpec = "user@gw"; c.RemotePort = 9000 }, "", ""},
		{"bad tunnel port", func(c *Config) { c.ReverseTunnelSpec = "user@gw:0"; c.RemotePort = 9000 }, "reverse-tunnel", "invalid SSH port"},
		{"remote port alone", func(c *Config) { c.RemotePort = 9000 }, "remote-port", "--reverse-tunnel"},
		{"ngrok without token", func(c *Config) { c.Ngrok = true }, "ngrok", "NGROK_AUTHTOKEN"},
		{"ngrok ok", func(c *Config) { c.Ngrok = true; c.NgrokAuthToken = "tok" }, "", ""},
		{"name without connect", func(c *Config) { c.Name = "alice" }, "name", "--connect"},

		{"connect ok", func(c *Config) { c.Connect = "localhost:8080"; c.Name = "alice" }, "", ""},
		{"connect no port", func(c *Config) { c.Connect = "localhost" }, "connect", "host:port"},
		{"connect no host", func(c *Config) { c.Connect = ":8080" }, "connect", "hint:"},
		{"connect bad port", func(c *Config) { c.Connect = "localhost:http" }, "connect", "host:port"},
		{"connect with listener", func(c *Config) { c.Connect = "h:1"; c.WSPort = 9 }, "connect", "cannot be combined"},
		{"connect name with pipe", func(c *Config) { c.Connect = "h:1"; c.Name = "a|b" }, "name", "'|'"},
		{"connect via", func(c *Config) { c.Connect = "h:1"; c.Via = "me@jump" }, "", ""},
		{"connect bad via", func(c *Config) { c.Connect = "h:1"; c.Via = "me@" }, "via", "missing SSH host"},

		{"history without db", func(c *Config) { c.ShowHistory = 3 }, "history", "--history-db"},
		{"history ok", func(c *Config) { c.ShowHistory = 3; c.HistoryDB = "games.db" }, "", ""},
		{"negative history", func(c *Config) { c.ShowHistory = -1 }, "history", "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *gerr.ConfigError
			if !gerr.As(err, &ce) {
				t.Fatalf("error %v is not a ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
