package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// WebSocketHandler serves the line protocol over websocket text
// messages at /ws.  Each message carries one or more newline-terminated
// lines; every outbound line is sent as its own message.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // browsers on any origin may play
		})
		if err != nil {
			s.log.Verbose("websocket accept from %s: %v", r.RemoteAddr, err)
			return
		}
		s.log.Verbose("websocket connection from %s", r.RemoteAddr)
		s.ServeConn(ctx, websocket.NetConn(ctx, c, websocket.MessageText))
	})
	return mux
}

// ServeWebSocket runs an HTTP server for [Server.WebSocketHandler] on ln
// until ctx is cancelled, then waits for the websocket sessions it
// started.
func (s *Server) ServeWebSocket(ctx context.Context, ln net.Listener) error {
	var conns connGroup
	ws := s.WebSocketHandler(ctx)
	srv := &http.Server{
		// Hijacked connections are invisible to srv, so count them here.
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !conns.enter() {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			defer conns.leave()
			ws.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() { srv.Close() }) //nolint:errcheck
	defer stop()

	s.log.Info("websocket gateway on ws://%s/ws", ln.Addr())
	err := srv.Serve(ln)
	conns.wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
