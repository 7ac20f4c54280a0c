// Package server accepts player connections and runs a session handler
// on each one.  Any net.Listener will do: plain TCP, a websocket
// gateway, an SSH remote forward or an ngrok tunnel all end up in
// [Server.Serve].
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	gerr "memoryd/internal/errors"
	"memoryd/internal/game"
	"memoryd/internal/metrics"
	"memoryd/util"
)

// Options tunes per-connection resources.
type Options struct {
	// MaxLineBytes bounds a single inbound line; longer lines are
	// skipped.
	MaxLineBytes int
	// OutboxSize is the number of frames queued per player.
	OutboxSize int
	// StallTimeout bounds how long a player may stop reading before it
	// is considered unreachable.
	StallTimeout time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Server feeds connections from one or more listeners into a single
// game session.
type Server struct {
	session *game.Session
	opts    Options
	log     *util.Logger
	metrics *metrics.Collector
}

// New creates a Server for sess.
func New(sess *game.Session, opts Options) *Server {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = util.LineBufSize
	}
	log := opts.Logger
	if log == nil {
		log = util.NewLogger(0)
	}
	return &Server{
		session: sess,
		opts:    opts,
		log:     log.Named("server"),
		metrics: opts.Metrics,
	}
}

// ListenAndServe listens on addr over TCP and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails, spawning one handler goroutine per connection.  ln is closed
// on return.  After cancellation Serve waits for the handlers it
// started.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	s.log.Info("listening on %s", ln.Addr())

	// Shut the listener down when the context expires.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var conns connGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				conns.wait()
				return nil
			default:
				return gerr.Wrap("accept", ln.Addr().String(), err)
			}
		}

		s.log.Verbose("connection from %s", conn.RemoteAddr())

		conns.goServe(func() { s.ServeConn(ctx, conn) })
	}
}

// connGroup tracks the handlers started by one listener.  Once wait
// has been called no new handler starts.
type connGroup struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// enter reports false once the group is closed; otherwise the caller
// must call leave when done.
func (g *connGroup) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *connGroup) leave() { g.wg.Done() }

func (g *connGroup) goServe(fn func()) {
	if !g.enter() {
		return
	}
	go func() {
		defer g.leave()
		fn()
	}()
}

func (g *connGroup) wait() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}
