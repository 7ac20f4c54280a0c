// Package config defines the runtime configuration for memoryd and
// validates it before any listener or connection is opened.
package config

import (
	"fmt"
	"strings"
	"time"

	gerr "memoryd/internal/errors"
	"memoryd/internal/gateway"
	"memoryd/util"
)

// Mode selects what a memoryd invocation does.
type Mode int

const (
	ModeServe Mode = iota
	ModeConnect
	ModeHistory
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeConnect:
		return "connect"
	case ModeHistory:
		return "history"
	}
	return "unknown"
}

// Config holds every tuneable for a single memoryd process.
type Config struct {
	// ── Game server ──────────────────────────────────────────────────
	Host           string // bind address, "" for all interfaces
	Port           int
	ThinkTime      time.Duration
	AdvanceOnLeave bool
	OutboxSize     int // frames queued per player
	StallTimeout   time.Duration
	MaxLineBytes   int

	// ── Extra listeners ──────────────────────────────────────────────
	WSPort            int    // websocket gateway, 0 disables
	ReverseTunnelSpec string // -R: [user@]host[:port]
	RemotePort        int
	RemoteBindAddress string
	KeepAliveInterval int // seconds
	Ngrok             bool
	NgrokAuthToken    string

	// ── SSH auth (reverse tunnel and --via) ──────────────────────────
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	ConnTimeout    time.Duration

	// ── History ledger ───────────────────────────────────────────────
	HistoryDB   string
	ShowHistory int // print N recent games and exit

	// ── Terminal client ──────────────────────────────────────────────
	Connect string // host:port
	Name    string // auto JOIN
	Via     string // SSH jump host

	// ── Runtime ──────────────────────────────────────────────────────
	EnvFile string
	Verbose int
	DryRun  bool
}

// Mode reports which of serve, connect or history applies.
func (c *Config) Mode() Mode {
	switch {
	case c.ShowHistory > 0:
		return ModeHistory
	case c.Connect != "":
		return ModeConnect
	default:
		return ModeServe
	}
}

// ListenAddr is the TCP address the game server binds.
func (c *Config) ListenAddr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// WSAddr is the websocket gateway address, or "" when disabled.
func (c *Config) WSAddr() string {
	if c.WSPort == 0 {
		return ""
	}
	return util.FormatAddr(c.Host, c.WSPort)
}

// SSHTarget parses spec and applies the configured SSH auth options.
func (c *Config) SSHTarget(spec string) (*gateway.SSHConfig, error) {
	ssh, err := gateway.ParseTarget(spec)
	if err != nil {
		return nil, err
	}
	ssh.KeyPath = c.SSHKeyPath
	ssh.PromptPass = c.SSHPassword
	ssh.UseAgent = c.UseSSHAgent
	ssh.StrictHostKey = c.StrictHostKey
	ssh.KnownHosts = c.KnownHostsPath
	ssh.ConnTimeout = c.ConnTimeout
	return ssh, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *gerr.ConfigError carrying a hint where one helps.
func (c *Config) Validate() error {
	if c.ShowHistory < 0 {
		return &gerr.ConfigError{Field: "history", Value: c.ShowHistory, Message: "must not be negative"}
	}
	switch c.Mode() {
	case ModeHistory:
		if c.HistoryDB == "" {
			return &gerr.ConfigError{
				Field:   "history",
				Message: "no database to read",
				Hint:    "pass --history-db <path>",
			}
		}
		return nil
	case ModeConnect:
		return c.validateConnect()
	}
	return c.validateServe()
}

func (c *Config) validateServe() error {
	if err := checkPort("port", c.Port, true); err != nil {
		return err
	}
	if c.ThinkTime < 0 {
		return &gerr.ConfigError{Field: "think-time", Value: c.ThinkTime, Message: "must not be negative"}
	}
	if c.OutboxSize < 1 {
		return &gerr.ConfigError{
			Field:   "outbox",
			Value:   c.OutboxSize,
			Message: "must be at least 1",
			Hint:    fmt.Sprintf("the default is %d", DefaultOutboxSize),
		}
	}
	if c.StallTimeout <= 0 {
		return &gerr.ConfigError{
			Field:   "stall-timeout",
			Value:   c.StallTimeout,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %s", DefaultStallTimeout),
		}
	}
	if c.MaxLineBytes < MinLineBytes {
		return &gerr.ConfigError{
			Field:   "max-line",
			Value:   c.MaxLineBytes,
			Message: fmt.Sprintf("must be at least %d bytes", MinLineBytes),
		}
	}
	if c.WSPort != 0 {
		if err := checkPort("ws-port", c.WSPort, false); err != nil {
			return err
		}
		if c.WSPort == c.Port {
			return &gerr.ConfigError{
				Field:   "ws-port",
				Value:   c.WSPort,
				Message: "collides with the game port",
				Hint:    "choose a different port for the websocket gateway",
			}
		}
	}

	if c.ReverseTunnelSpec != "" {
		if _, err := c.SSHTarget(c.ReverseTunnelSpec); err != nil {
			return &gerr.ConfigError{Field: "reverse-tunnel", Value: c.ReverseTunnelSpec, Message: err.Error()}
		}
		if c.RemotePort == 0 {
			return &gerr.ConfigError{
				Field:   "remote-port",
				Message: "required with --reverse-tunnel",
				Hint:    "e.g. -R user@gateway --remote-port 9000",
			}
		}
		if err := checkPort("remote-port", c.RemotePort, false); err != nil {
			return err
		}
	} else if c.RemotePort != 0 || c.RemoteBindAddress != "" {
		return &gerr.ConfigError{
			Field:   "remote-port",
			Message: "only valid with --reverse-tunnel",
		}
	}

	if c.Ngrok && c.NgrokAuthToken == "" {
		return &gerr.ConfigError{
			Field:   "ngrok",
			Message: "no auth token",
			Hint:    "set NGROK_AUTHTOKEN or pass --ngrok-auth",
		}
	}
	if c.Name != "" || c.Via != "" {
		return &gerr.ConfigError{
			Field:   "name",
			Message: "--name and --via apply to --connect",
		}
	}
	return nil
}

func (c *Config) validateConnect() error {
	if host, _, err := util.SplitAddr(c.Connect); err != nil || host == "" {
		return &gerr.ConfigError{
			Field:   "connect",
			Value:   c.Connect,
			Message: "expected host:port",
			Hint:    "e.g. --connect localhost:8080",
		}
	}

	if c.WSPort != 0 || c.ReverseTunnelSpec != "" || c.Ngrok {
		return &gerr.ConfigError{
			Field:   "connect",
			Message: "listener options cannot be combined with --connect",
			Hint:    "drop --ws-port, --reverse-tunnel and --ngrok",
		}
	}
	if strings.ContainsAny(c.Name, "|\r\n") {
		return &gerr.ConfigError{Field: "name", Value: c.Name, Message: "must not contain '|' or line breaks"}
	}
	if c.Via != "" {
		if _, err := c.SSHTarget(c.Via); err != nil {
			return &gerr.ConfigError{Field: "via", Value: c.Via, Message: err.Error()}
		}
	}
	return nil
}

func checkPort(field string, port int, allowZero bool) error {
	lo := 1
	if allowZero {
		lo = 0
	}
	if port < lo || port > 65535 {
		return &gerr.ConfigError{
			Field:   field,
			Value:   port,
			Message: fmt.Sprintf("port out of range %d-65535", lo),
		}
	}
	return nil
}
