package broadcast

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"memoryd/internal/metrics"
	"memoryd/util"
)

func setupPeer(t *testing.T, opts PeerOptions) (*Peer, *bufio.Reader, *metrics.Collector) {
	t.Helper()
	server, client := net.Pipe()
	m := metrics.New()
	opts.Logger = util.NewLogger(0)
	opts.Metrics = m
	p := NewPeer(server, opts)
	t.Cleanup(func() {
		p.Close()      //nolint:errcheck
		client.Close() //nolint:errcheck
	})
	return p, bufio.NewReader(client), m
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read: %v", res.err)
		}
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestPeer_WritesInOrder(t *testing.T) {
	p, r, m := setupPeer(t, PeerOptions{Queue: 8})

	lines := []string{"GAME_START|Game started!\n", "TURN|0|alice\n", "CHAT|alice: hi\n"}
	for _, l := range lines {
		if err := p.Enqueue(Frame{Payload: []byte(l)}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for _, want := range lines {
		if got := readLine(t, r); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	var total int
	for _, l := range lines {
		total += len(l)
	}
	deadline := time.Now().Add(time.Second)
	for m.TotalBytesOut() != int64(total) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.TotalBytesOut() != int64(total) {
		t.Errorf("bytes out = %d, want %d", m.TotalBytesOut(), total)
	}
}

func TestPeer_DelayedFrame(t *testing.T) {
	p, r, _ := setupPeer(t, PeerOptions{Queue: 8})

	delay := 80 * time.Millisecond
	p.Enqueue(Frame{Payload: []byte("REVEAL|0,1|3,5\n")})                            //nolint:errcheck
	p.Enqueue(Frame{Payload: []byte("NO_MATCH|Cards don't match!\n"), Delay: delay}) //nolint:errcheck

	readLine(t, r)
	start := time.Now()
	if got := readLine(t, r); got != "NO_MATCH|Cards don't match!\n" {
		t.Fatalf("got %q", got)
	}
	if elapsed := time.Since(start); elapsed < delay/2 {
		t.Errorf("delayed frame arrived after %v, want about %v", elapsed, delay)
	}
}

func TestPeer_EnqueueAfterClose(t *testing.T) {
	p, _, _ := setupPeer(t, PeerOptions{Queue: 1})
	p.Close() //nolint:errcheck

	if err := p.Enqueue(Frame{Payload: []byte("x\n")}); err == nil {
		t.Fatal("expected error enqueueing on closed peer")
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPeer_StalledReaderIsRetired(t *testing.T) {
	p, _, _ := setupPeer(t, PeerOptions{Queue: 1, StallTimeout: 50 * time.Millisecond})

	// Nobody reads the pipe: the first write hits its deadline and the
	// outbox never drains.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = p.Enqueue(Frame{Payload: []byte("BOARD|X,X\n")})
	}
	if !errors.Is(err, errPeerStalled) && !errors.Is(err, errPeerClosed) {
		t.Fatalf("Enqueue error = %v, want stalled or closed", err)
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stalled peer was not closed")
	}
}

func TestPeer_FullOutboxWaitsOutThinkTime(t *testing.T) {
	stall := 50 * time.Millisecond
	p, r, _ := setupPeer(t, PeerOptions{Queue: 1, StallTimeout: stall})

	lines := make(chan string, 16)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()

	// The pause is longer than the stall timeout, so the frames queued
	// behind it must wait for it rather than be refused.
	if err := p.Enqueue(Frame{Payload: []byte("NO_MATCH|Cards don't match!\n"), Delay: 3 * stall}); err != nil {
		t.Fatalf("Enqueue delayed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := p.Enqueue(Frame{Payload: []byte("CHAT|bob: hi\n")}); err != nil {
			t.Fatalf("Enqueue %d behind a pause: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case _, ok := <-lines:
			if !ok {
				t.Fatalf("connection closed after %d lines", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d lines", i)
		}
	}
	select {
	case <-p.Done():
		t.Error("a reader that keeps up should not be retired")
	default:
	}
}

func TestPeer_WriteFailureCloses(t *testing.T) {
	server, client := net.Pipe()
	p := NewPeer(server, PeerOptions{Queue: 4})
	client.Close() //nolint:errcheck

	p.Enqueue(Frame{Payload: []byte("TURN|0|a\n")}) //nolint:errcheck

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not close after write failure")
	}
}
