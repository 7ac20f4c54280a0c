// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of a memoryd server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Collector tracks runtime metrics for a memoryd server.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	rejectedFull      atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	gamesStarted      atomic.Int64
	gamesFinished     atomic.Int64
	moves             atomic.Int64
	matches           atomic.Int64
	peersDropped      atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ConnectionRejected records a connection turned away by a full roster.
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.rejectedFull.Add(1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// PeerDropped records a recipient retired during fan-out.
func (c *Collector) PeerDropped() {
	if c == nil {
		return
	}
	c.peersDropped.Add(1)
}

// PeersDropped returns how many recipients were retired during fan-out.
func (c *Collector) PeersDropped() int64 {
	if c == nil {
		return 0
	}
	return c.peersDropped.Load()
}

// ── Game metrics ─────────────────────────────────────────────────────

// GameStarted records a START that shuffled a new board.
func (c *Collector) GameStarted() {
	if c == nil {
		return
	}
	c.gamesStarted.Add(1)
}

// GameFinished records a game that reached its last pair.
func (c *Collector) GameFinished() {
	if c == nil {
		return
	}
	c.gamesFinished.Add(1)
}

// MovePlayed records an accepted move; matched tells whether it found a pair.
func (c *Collector) MovePlayed(matched bool) {
	if c == nil {
		return
	}
	c.moves.Add(1)
	if matched {
		c.matches.Add(1)
	}
}

// Moves returns the number of accepted moves.
func (c *Collector) Moves() int64 {
	if c == nil {
		return 0
	}
	return c.moves.Load()
}

// Matches returns the number of moves that found a pair.
func (c *Collector) Matches() int64 {
	if c == nil {
		return 0
	}
	return c.matches.Load()
}

// GamesFinished returns the number of completed games.
func (c *Collector) GamesFinished() int64 {
	if c == nil {
		return 0
	}
	return c.gamesFinished.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	RejectedFull      int64  `json:"rejected_full"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	Traffic           string `json:"traffic"`
	GamesStarted      int64  `json:"games_started"`
	GamesFinished     int64  `json:"games_finished"`
	Moves             int64  `json:"moves"`
	Matches           int64  `json:"matches"`
	PeersDropped      int64  `json:"peers_dropped"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	in, out := c.bytesIn.Load(), c.bytesOut.Load()
	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		RejectedFull:      c.rejectedFull.Load(),
		BytesIn:           in,
		BytesOut:          out,
		Traffic:           humanize.Bytes(uint64(in)) + " in / " + humanize.Bytes(uint64(out)) + " out",
		GamesStarted:      c.gamesStarted.Load(),
		GamesFinished:     c.gamesFinished.Load(),
		Moves:             c.moves.Load(),
		Matches:           c.matches.Load(),
		PeersDropped:      c.peersDropped.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = humanize.Time(c.lastError)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
