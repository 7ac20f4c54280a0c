package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"

	"memoryd/internal/broadcast"
	gerr "memoryd/internal/errors"
	"memoryd/internal/metrics"
	"memoryd/internal/protocol"
	"memoryd/util"
)

// ServeConn runs the session handler for one connection and returns
// when the client hangs up, the connection breaks or ctx is cancelled.
// conn is always closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	peer := broadcast.NewPeer(conn, broadcast.PeerOptions{
		Queue:        s.opts.OutboxSize,
		StallTimeout: s.opts.StallTimeout,
		Logger:       s.log,
		Metrics:      s.metrics,
	})
	id, err := s.session.Connect(peer)
	if err != nil {
		// Nothing has been queued on the peer yet, so writing directly
		// cannot interleave with its writer.
		if msg := protocol.ErrorFor(err); msg != nil {
			util.WriteFull(conn, msg) //nolint:errcheck
		}
		s.metrics.ConnectionRejected()
		s.log.Warn("rejecting %s: %v", conn.RemoteAddr(), err)
		peer.Close() //nolint:errcheck
		return
	}
	defer peer.Close() //nolint:errcheck
	defer s.session.Disconnect(id)

	stop := context.AfterFunc(ctx, func() { peer.Close() }) //nolint:errcheck
	defer stop()

	buf := util.GetLineBuf()
	defer util.PutLineBuf(buf)
	b := (*buf)[:0]
	if s.opts.MaxLineBytes < cap(b) {
		b = b[:0:s.opts.MaxLineBytes]
	}

	scanner := bufio.NewScanner(&countingReader{r: conn, m: s.metrics})
	scanner.Buffer(b, s.opts.MaxLineBytes)
	scanner.Split(boundedLines(s.opts.MaxLineBytes, func() {
		s.log.Debug("slot %d: dropping line longer than %d bytes", id, s.opts.MaxLineBytes)
	}))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.dispatch(peer, id, line)
	}
	if err := scanner.Err(); err != nil && !util.IsHarmless(err) {
		s.log.Verbose("slot %d read: %v", id, err)
	}
}

func (s *Server) dispatch(peer *broadcast.Peer, id int, line string) {
	cmd, err := protocol.Decode(line)
	if err != nil {
		s.log.Debug("slot %d: dropping %q: %v", id, line, err)
		return
	}

	switch cmd.Kind {
	case protocol.Join:
		err = s.session.Join(id, cmd.Name)
	case protocol.Start:
		s.session.Start()
	case protocol.Move:
		err = s.session.Move(id, cmd.Pos1, cmd.Pos2)
	case protocol.Chat:
		err = s.session.Chat(id, cmd.Text)
	}
	if err == nil {
		return
	}

	if !gerr.IsRuleViolation(err) {
		s.log.Verbose("slot %d %s: %v", id, cmd.Kind, err)
		return
	}
	s.log.Verbose("slot %d %s rejected: %v", id, cmd.Kind, err)
	msg := protocol.ErrorFor(err)
	// Replies share the outbox so they stay ordered with broadcasts.
	if qerr := peer.Enqueue(broadcast.Frame{Payload: msg}); qerr != nil {
		s.log.Warn("slot %d: %v", id, gerr.Unreachable(id, qerr))
		peer.Close() //nolint:errcheck
	}
}

// boundedLines splits like [bufio.ScanLines] but skips any line that
// does not fit in limit bytes, calling onDrop once it has been consumed.
// limit must match the limit given to [bufio.Scanner.Buffer].
func boundedLines(limit int, onDrop func()) bufio.SplitFunc {
	skipping := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if skipping {
			if i := bytes.IndexByte(data, '\n'); i >= 0 {
				skipping = false
				onDrop()
				return i + 1, nil, nil
			}
			return len(data), nil, nil
		}
		advance, token, err := bufio.ScanLines(data, atEOF)
		if advance == 0 && token == nil && err == nil && len(data) >= limit {
			// The buffer is full with no newline in sight.
			skipping = true
			return len(data), nil, nil
		}
		return advance, token, err
	}
}

// countingReader feeds inbound byte counts to the metrics collector.
type countingReader struct {
	r io.Reader
	m *metrics.Collector
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.m.BytesReceived(int64(n))
	return n, err
}
