// Package errors provides domain-specific error types for memoryd.
//
// Game-rule failures are sentinels so the session handler can map them
// to wire messages with [Is].  Transport and configuration failures
// carry structured context (operation, address, retryability).
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Game sentinels ───────────────────────────────────────────────────

var (
	// ErrFull is returned when every roster slot has been handed out.
	ErrFull = errors.New("server full")
	// ErrNotYourTurn covers both "game not started" and "someone else's turn".
	ErrNotYourTurn = errors.New("not your turn or game not started")
	// ErrInvalidMove covers self-pairs, out-of-range and revealed positions.
	ErrInvalidMove = errors.New("invalid move")

	ErrOutOfRange      = errors.New("position out of range")
	ErrAlreadyRevealed = errors.New("position already revealed")
	ErrUnknownPlayer   = errors.New("unknown player")

	// ErrMalformedCommand is never reported to the client.
	ErrMalformedCommand = errors.New("malformed command")
)

// ── Transport sentinels ──────────────────────────────────────────────

var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrNotConnected    = errors.New("not connected")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrAuthFailed      = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "write", "read", "dial"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH gateway failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional suggestion
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Unreachable reports a failed delivery to the given player slot.  The
// result matches [ErrPeerUnreachable] under [Is].
func Unreachable(slot int, err error) error {
	if err == nil {
		return fmt.Errorf("slot %d: %w", slot, ErrPeerUnreachable)
	}
	return fmt.Errorf("slot %d: %w: %w", slot, ErrPeerUnreachable, err)
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsRuleViolation reports whether err is a game-rule rejection that is
// answered with an ERROR line rather than dropping the connection.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrNotYourTurn) || errors.Is(err, ErrInvalidMove) || errors.Is(err, ErrFull)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
