package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	gerr "memoryd/internal/errors"
	"memoryd/internal/gateway"
	"memoryd/util"
)

// SSHDialer reaches the game server through an SSH jump host, for
// servers that only listen on a private network.  The SSH connection
// is made lazily on the first Dial and torn down on Close.
type SSHDialer struct {
	config *gateway.SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHDialer creates a dialer that forwards connections through the
// gateway described by cfg.
func NewSSHDialer(cfg *gateway.SSHConfig, logger *util.Logger) *SSHDialer {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &SSHDialer{config: cfg, logger: logger}
}

func (d *SSHDialer) connect(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	d.logger.Verbose("establishing SSH connection to %s@%s:%d", d.config.User, d.config.Host, d.config.Port)
	client, err := gateway.DialSSH(ctx, d.config, d.logger)
	if err != nil {
		return nil, fmt.Errorf("jump host: %w", err)
	}
	d.client = client
	return client, nil
}

// Dial connects to address from the jump host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, gerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close tears down the SSH connection.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
