// Package client is the terminal front end: it connects to a game
// server and relays protocol lines between the connection and the
// user's terminal.
package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"memoryd/internal/protocol"
	"memoryd/internal/transport"
	"memoryd/util"
)

// Client dials a server and relays stdin/stdout until either side
// closes.
type Client struct {
	Dialer  transport.Dialer
	Address string
	// Name, when set, is sent as a JOIN before any user input.
	Name   string
	Logger *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (c *Client) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *Client) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// Run connects and relays until the server hangs up, stdin and the
// server are both done, or ctx is cancelled.  The dialer is closed
// when Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer c.Dialer.Close()

	c.Logger.Verbose("connecting to %s", c.Address)
	conn, err := c.Dialer.Dial(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.Address, err)
	}
	defer conn.Close()
	c.Logger.Verbose("connected to %s", conn.RemoteAddr())

	if c.Name != "" {
		join := fmt.Sprintf("%s|%s\n", protocol.Join, c.Name)
		if _, err := util.WriteFull(conn, []byte(join)); err != nil {
			return fmt.Errorf("send JOIN: %w", err)
		}
	}
	return util.BidirectionalCopy(ctx, conn, c.stdin(), c.stdout())
}
