package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	gerr "memoryd/internal/errors"
	"memoryd/internal/metrics"
	"memoryd/internal/retry"
	"memoryd/util"
)

// RemoteConfig describes an SSH remote forward.
type RemoteConfig struct {
	SSH *SSHConfig

	// BindAddress is the address to bind on the gateway ("" lets the
	// server decide).
	BindAddress string
	Port        int

	// KeepAlive is the interval between keep-alive probes; 0 disables
	// them.
	KeepAlive time.Duration
	// Backoff governs the initial dial and every reconnect.  Defaults
	// to retry.DefaultBackoff.
	Backoff *retry.Backoff
}

// RemoteListener accepts players arriving on a port of a remote SSH
// gateway.  When the SSH connection dies it is re-established with
// backoff and Accept carries on.
type RemoteListener struct {
	cfg     RemoteConfig
	log     *util.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	client *ssh.Client
	fwd    *forwardListener
}

// ListenRemote dials the gateway and requests the remote forward.
func ListenRemote(ctx context.Context, cfg RemoteConfig, logger *util.Logger, m *metrics.Collector) (*RemoteListener, error) {
	if cfg.SSH == nil {
		return nil, fmt.Errorf("remote forward: no SSH target")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.DefaultBackoff()
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	l := &RemoteListener{cfg: cfg, log: logger.Named("ssh"), metrics: m}
	l.ctx, l.cancel = context.WithCancel(ctx)

	if err := l.connect(); err != nil {
		l.cancel()
		return nil, err
	}
	l.log.Info("remote forward established: %s:%d on %s", cfg.BindAddress, cfg.Port, cfg.SSH.addr())

	if cfg.KeepAlive > 0 {
		go l.keepalive()
	}
	return l, nil
}

// connect dials and requests the forward, retrying transient failures.
func (l *RemoteListener) connect() error {
	b := *l.cfg.Backoff
	hook := b.OnRetry
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		l.log.Warn("attempt %d: %v (retrying in %v)", attempt, err, wait.Truncate(time.Millisecond))
		l.metrics.RecordError(err.Error())
		if hook != nil {
			hook(attempt, err, wait)
		}
	}
	return b.Do(l.ctx, func(int) error {
		client, err := DialSSH(l.ctx, l.cfg.SSH, l.log)
		if err != nil {
			if gerr.Is(err, gerr.ErrAuthFailed) {
				return retry.Permanent(err)
			}
			return err
		}
		fwd, err := listenRemoteForward(client, l.cfg.BindAddress, l.cfg.Port)
		if err != nil {
			client.Close()
			return gerr.WrapSSH("forward", l.cfg.SSH.Host, l.cfg.SSH.Port, err)
		}

		l.mu.Lock()
		l.client, l.fwd = client, fwd
		l.mu.Unlock()
		return nil
	})
}

func (l *RemoteListener) current() *forwardListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fwd
}

// Accept waits for the next forwarded connection, reconnecting to the
// gateway if the SSH session has been lost.
func (l *RemoteListener) Accept() (net.Conn, error) {
	for {
		if l.ctx.Err() != nil {
			return nil, net.ErrClosed
		}
		fwd := l.current()
		if fwd == nil {
			if err := l.connect(); err != nil {
				return nil, fmt.Errorf("reconnect: %w", err)
			}
			l.log.Info("reconnected to %s", l.cfg.SSH.addr())
			continue
		}

		conn, err := fwd.Accept()
		if err == nil {
			return conn, nil
		}
		if l.ctx.Err() == nil {
			l.log.Warn("gateway connection lost (%v); reconnecting", err)
		}
		l.teardown()
	}
}

// Close cancels the remote forward and closes the SSH connection.
func (l *RemoteListener) Close() error {
	l.cancel()
	l.teardown()
	return nil
}

// Addr reports the gateway side of the forward.
func (l *RemoteListener) Addr() net.Addr {
	return gatewayAddr(fmt.Sprintf("%s:%d via %s", l.cfg.BindAddress, l.cfg.Port, l.cfg.SSH.addr()))
}

func (l *RemoteListener) teardown() {
	l.mu.Lock()
	fwd, client := l.fwd, l.client
	l.fwd, l.client = nil, nil
	l.mu.Unlock()

	if fwd != nil {
		fwd.Close()
	}
	if client != nil {
		client.Close()
	}
}

// keepalive probes the gateway and closes the forward when the probe
// fails, which wakes Accept up to reconnect.
func (l *RemoteListener) keepalive() {
	ticker := time.NewTicker(l.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			client, fwd := l.client, l.fwd
			l.mu.Unlock()
			if client == nil || fwd == nil {
				continue
			}
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				l.log.Warn("keepalive failed: %v", err)
				fwd.Close()
				continue
			}
			l.log.Debug("keepalive OK")
		}
	}
}

type gatewayAddr string

func (a gatewayAddr) Network() string { return "ssh" }
func (a gatewayAddr) String() string  { return string(a) }

// ── forwarded-tcpip listener ─────────────────────────────────────────

// ssh.Client.Listen only accepts channels whose reported bind address
// matches the one requested; public services (serveo.net,
// localhost.run) answer with a different one.  forwardListener sends
// tcpip-forward itself and accepts every forwarded-tcpip channel.

// channelForwardMsg is the "tcpip-forward" request (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardedTCPPayload is the "forwarded-tcpip" open payload (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (*forwardListener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, _, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward %s:%d denied by gateway", bindAddr, bindPort)
	}
	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: uint32(bindPort),
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

func (l *forwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var payload forwardedTCPPayload
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
			raddr = &net.TCPAddr{IP: net.ParseIP(payload.OriginAddr), Port: int(payload.OriginPort)}
		}
		return &chanConn{Channel: ch, raddr: raddr}, nil
	}
}

func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// chanConn adapts an ssh.Channel to net.Conn.  Deadlines are not
// supported; the session handler does not use them.
type chanConn struct {
	ssh.Channel
	raddr net.Addr
}

func (c *chanConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }
