// Package gateway provides listeners that expose the game server
// beyond the local network: an SSH remote forward (the Go equivalent of
// ssh -R) and an ngrok TCP endpoint.  Both return a net.Listener for
// server.Serve.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	gerr "memoryd/internal/errors"
	"memoryd/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// ParseTarget fills User, Host and Port from "[user@]host[:port]".
// The user defaults to $USER and the port to 22.
func ParseTarget(spec string) (*SSHConfig, error) {
	cfg := &SSHConfig{Port: 22}

	hostPart := spec
	if at := strings.LastIndex(spec, "@"); at >= 0 {
		cfg.User = spec[:at]
		hostPart = spec[at+1:]
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}

	if h, p, err := net.SplitHostPort(hostPart); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid SSH port %q", p)
		}
		cfg.Host, cfg.Port = h, port
	} else {
		cfg.Host = hostPart
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("missing SSH host in %q", spec)
	}
	return cfg, nil
}

func (c *SSHConfig) addr() string { return util.FormatAddr(c.Host, c.Port) }

// DialSSH opens an authenticated SSH client.  Authentication failures are
// reported as [gerr.ErrAuthFailed] so callers can stop retrying.
func DialSSH(ctx context.Context, cfg *SSHConfig, logger *util.Logger) (*ssh.Client, error) {
	methods, err := authMethods(cfg)
	if err != nil {
		return nil, gerr.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, gerr.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	timeout := cfg.ConnTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: hkCb,
		Timeout:         timeout,
		// Public tunnel services print the assigned address here.
		BannerCallback: func(message string) error {
			logger.Info("%s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := cfg.addr()
	logger.Debug("dialing SSH %s as %s", addr, cfg.User)

	var d net.Dialer
	tcpConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, gerr.Wrap("dial", addr, err)
	}
	conn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			err = fmt.Errorf("%w: %w", gerr.ErrAuthFailed, err)
		}
		return nil, gerr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	client := ssh.NewClient(conn, chans, reqs)
	go drainServerMessages(client, logger)
	return client, nil
}

// drainServerMessages copies whatever the gateway prints on a shell
// session to the log.  Services such as serveo.net report the public
// address this way; plain sshd servers simply refuse the session.
func drainServerMessages(client *ssh.Client, logger *util.Logger) {
	sess, err := client.NewSession()
	if err != nil {
		logger.Debug("no server message session: %v", err)
		return
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return
	}
	_ = sess.Shell()

	done := make(chan struct{}, 2)
	pipe := func(r io.Reader) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				logger.Info("%s", strings.TrimSpace(string(buf[:n])))
			}
			if err != nil {
				return
			}
		}
	}
	go pipe(stdout)
	go pipe(stderr)
	<-done
	<-done
}
