package config

// loader.go - configuration loading from the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. .env file  (this file, never overrides the real environment)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	gerr "memoryd/internal/errors"
)

// LoadEnvFile reads KEY=VALUE pairs from path into the process
// environment.  Variables that are already set keep their value.  A
// missing file is only an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &gerr.ConfigError{Field: "env-file", Value: path, Message: err.Error()}
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the MEMORYD_ prefix, except the ngrok
// token which uses ngrok's own name.  Boolean values accept "1", "true",
// "yes" (case-insensitive).

type binding struct {
	env   string
	flag  string // the flag that overrides this variable
	apply func(cfg *Config, v string) error
}

var bindings = []binding{ //nolint:gochecknoglobals
	{"MEMORYD_HOST", "host", func(c *Config, v string) error { c.Host = v; return nil }},
	{"MEMORYD_PORT", "port", intField(func(c *Config) *int { return &c.Port })},
	{"MEMORYD_THINK_TIME", "think-time", durationField(func(c *Config) *time.Duration { return &c.ThinkTime })},
	{"MEMORYD_ADVANCE_ON_LEAVE", "advance-on-leave", boolField(func(c *Config) *bool { return &c.AdvanceOnLeave })},
	{"MEMORYD_OUTBOX", "outbox", intField(func(c *Config) *int { return &c.OutboxSize })},
	{"MEMORYD_STALL_TIMEOUT", "stall-timeout", durationField(func(c *Config) *time.Duration { return &c.StallTimeout })},
	{"MEMORYD_MAX_LINE", "max-line", intField(func(c *Config) *int { return &c.MaxLineBytes })},
	{"MEMORYD_WS_PORT", "ws-port", intField(func(c *Config) *int { return &c.WSPort })},
	{"MEMORYD_HISTORY_DB", "history-db", func(c *Config, v string) error { c.HistoryDB = v; return nil }},

	// Terminal client
	{"MEMORYD_CONNECT", "connect", func(c *Config, v string) error { c.Connect = v; return nil }},
	{"MEMORYD_NAME", "name", func(c *Config, v string) error { c.Name = v; return nil }},
	{"MEMORYD_VIA", "via", func(c *Config, v string) error { c.Via = v; return nil }},

	// Reverse tunnel
	{"MEMORYD_REVERSE_TUNNEL", "reverse-tunnel", func(c *Config, v string) error { c.ReverseTunnelSpec = v; return nil }},
	{"MEMORYD_REMOTE_PORT", "remote-port", intField(func(c *Config) *int { return &c.RemotePort })},
	{"MEMORYD_REMOTE_BIND_ADDRESS", "remote-bind", func(c *Config, v string) error { c.RemoteBindAddress = v; return nil }},
	{"MEMORYD_KEEP_ALIVE", "keep-alive", intField(func(c *Config) *int { return &c.KeepAliveInterval })},

	// SSH
	{"MEMORYD_SSH_KEY", "ssh-key", func(c *Config, v string) error { c.SSHKeyPath = v; return nil }},
	{"MEMORYD_SSH_PASSWORD", "ssh-password", boolField(func(c *Config) *bool { return &c.SSHPassword })},
	{"MEMORYD_SSH_AGENT", "ssh-agent", boolField(func(c *Config) *bool { return &c.UseSSHAgent })},
	{"MEMORYD_SSH_STRICT_HOSTKEY", "strict-hostkey", boolField(func(c *Config) *bool { return &c.StrictHostKey })},
	{"MEMORYD_SSH_KNOWN_HOSTS", "known-hosts", func(c *Config, v string) error { c.KnownHostsPath = v; return nil }},

	// ngrok
	{"MEMORYD_NGROK", "ngrok", boolField(func(c *Config) *bool { return &c.Ngrok })},
	{"NGROK_AUTHTOKEN", "ngrok-auth", func(c *Config, v string) error { c.NgrokAuthToken = v; return nil }},

	// Output
	{"MEMORYD_VERBOSE", "verbose", intField(func(c *Config) *int { return &c.Verbose })},
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// variables apply, and a variable is skipped when changed reports that
// its flag was given on the command line (changed may be nil).
func LoadFromEnv(cfg *Config, changed func(flag string) bool) error {
	for _, b := range bindings {
		v := strings.TrimSpace(os.Getenv(b.env))
		if v == "" {
			continue
		}
		if changed != nil && changed(b.flag) {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return &gerr.ConfigError{
				Field:   b.flag,
				Value:   v,
				Message: err.Error(),
				Hint:    "from $" + b.env,
			}
		}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("not an integer")
		}
		*field(c) = n
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = envBool(v)
		return nil
	}
}

// durationField accepts Go durations ("1500ms") or a bare number of
// milliseconds.
func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		if ms, err := strconv.Atoi(v); err == nil {
			*field(c) = time.Duration(ms) * time.Millisecond
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("not a duration")
		}
		*field(c) = d
		return nil
	}
}

func envBool(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}
