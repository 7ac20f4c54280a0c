package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so CLI flags and environment loading
// agree on them.

const (
	// DefaultPort is the game server's TCP port.
	DefaultPort = 8080

	// DefaultThinkTime is how long a failed attempt stays visible
	// before NO_MATCH is delivered.
	DefaultThinkTime = 2 * time.Second

	// DefaultOutboxSize is the number of frames buffered per player.
	DefaultOutboxSize = 64

	// DefaultStallTimeout is how long a player may stop reading before
	// it is dropped.
	DefaultStallTimeout = 10 * time.Second

	// DefaultMaxLineBytes bounds one inbound protocol line.
	DefaultMaxLineBytes = 1024

	// MinLineBytes is the smallest line limit that still fits a MOVE.
	MinLineBytes = 16

	// DefaultEnvFile is read when present; a missing default file is
	// not an error.
	DefaultEnvFile = ".env"

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for listeners and
	// the history writer.
	DefaultGracePeriod = 5 * time.Second
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Port:              DefaultPort,
		ThinkTime:         DefaultThinkTime,
		OutboxSize:        DefaultOutboxSize,
		StallTimeout:      DefaultStallTimeout,
		MaxLineBytes:      DefaultMaxLineBytes,
		KeepAliveInterval: DefaultKeepAliveInterval,
		ConnTimeout:       DefaultConnTimeout,
		EnvFile:           DefaultEnvFile,
	}
}
