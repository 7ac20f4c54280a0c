package client

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"memoryd/internal/transport"
	"memoryd/util"
)

// syncBuffer is a bytes.Buffer safe for the relay goroutine to write
// while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestClient_JoinsAndRelays(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan []string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var lines []string
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines = append(lines, sc.Text())
			if len(lines) == 1 {
				conn.Write([]byte("WELCOME|0: alice\n")) //nolint:errcheck
			}
		}
		received <- lines
	}()

	out := &syncBuffer{}
	c := &Client{
		Dialer:  &transport.TCPDialer{Timeout: 2 * time.Second},
		Address: ln.Addr().String(),
		Name:    "alice",
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader("START\nCHAT|hello\n"),
		Stdout:  out,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case lines := <-received:
		want := []string{"JOIN|alice", "START", "CHAT|hello"}
		if strings.Join(lines, "\n") != strings.Join(want, "\n") {
			t.Errorf("server got %q, want %q", lines, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw EOF")
	}
	if got := out.String(); got != "WELCOME|0: alice\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestClient_DialFailure(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	c := &Client{
		Dialer:  &transport.TCPDialer{Timeout: time.Second},
		Address: util.FormatAddr("127.0.0.1", port),
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader(""),
		Stdout:  &bytes.Buffer{},
	}
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
