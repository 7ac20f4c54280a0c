// Package broadcast delivers encoded protocol lines to connected
// players.
//
// Each connection gets a [Peer]: a bounded outbox drained by a single
// writer goroutine.  The game session enqueues while holding its lock
// and never touches the socket itself, so the think-time pause only
// delays that reader's own stream.  A peer is retired only when a write
// fails or the reader stops draining for longer than the stall timeout.
package broadcast

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"memoryd/internal/metrics"
	"memoryd/util"
)

// Frame is one encoded line queued for a single recipient.
type Frame struct {
	Payload []byte
	// Delay is slept by the writer before Payload goes out.
	Delay time.Duration
}

var (
	errPeerClosed  = errors.New("peer closed")
	errPeerStalled = errors.New("peer stalled")
)

const (
	// DefaultQueue is the outbox capacity used when PeerOptions.Queue
	// is not positive.
	DefaultQueue = 64
	// DefaultStallTimeout bounds a single socket write and the time an
	// enqueue may wait on a full outbox, pauses excluded.
	DefaultStallTimeout = 10 * time.Second
)

// PeerOptions configures a Peer.  The zero value is usable.
type PeerOptions struct {
	Queue        int
	StallTimeout time.Duration
	Logger       *util.Logger
	Metrics      *metrics.Collector
}

// Peer owns the write side of one connection.
type Peer struct {
	conn    net.Conn
	out     chan Frame
	done    chan struct{}
	once    sync.Once
	stall   time.Duration
	paused  atomic.Int64 // think-time still ahead of the writer, in ns
	log     *util.Logger
	metrics *metrics.Collector
}

// NewPeer starts the writer goroutine for conn.  The goroutine exits
// when the peer is closed or a write fails; either way conn is closed.
func NewPeer(conn net.Conn, opts PeerOptions) *Peer {
	if opts.Queue <= 0 {
		opts.Queue = DefaultQueue
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = DefaultStallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	p := &Peer{
		conn:    conn,
		out:     make(chan Frame, opts.Queue),
		done:    make(chan struct{}),
		stall:   opts.StallTimeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	go p.writeLoop()
	return p
}

// Enqueue hands f to the writer.  When the outbox is full it waits for
// room for up to the stall timeout plus whatever think-time pauses are
// still queued, so a reader that keeps up is never refused.  It fails
// if the peer is closed or the wait runs out.
func (p *Peer) Enqueue(f Frame) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}

	p.paused.Add(int64(f.Delay))
	select {
	case p.out <- f:
		return nil
	default:
	}

	t := time.NewTimer(p.stall + time.Duration(p.paused.Load()))
	defer t.Stop()
	select {
	case p.out <- f:
		return nil
	case <-p.done:
		p.paused.Add(-int64(f.Delay))
		return errPeerClosed
	case <-t.C:
		p.paused.Add(-int64(f.Delay))
		return errPeerStalled
	}
}

// Close stops the writer and closes the connection.  Frames still in
// the outbox are discarded.  Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}

// Done is closed once the peer has shut down.
func (p *Peer) Done() <-chan struct{} { return p.done }

// RemoteAddr is the address of the connected client.
func (p *Peer) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case f := <-p.out:
			if f.Delay > 0 {
				ok := p.pause(f.Delay)
				p.paused.Add(-int64(f.Delay))
				if !ok {
					return
				}
			}
			p.conn.SetWriteDeadline(time.Now().Add(p.stall)) //nolint:errcheck
			n, err := util.WriteFull(p.conn, f.Payload)
			p.metrics.BytesSent(int64(n))
			if err != nil {
				if !util.IsHarmless(err) {
					p.log.Verbose("write to %s: %v", p.conn.RemoteAddr(), err)
				}
				p.Close() //nolint:errcheck
				return
			}
		}
	}
}

// pause reports false if the peer closed while waiting.
func (p *Peer) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.done:
		return false
	}
}
