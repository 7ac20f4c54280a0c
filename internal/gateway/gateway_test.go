package gateway

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	gerr "memoryd/internal/errors"
	"memoryd/internal/retry"
	"memoryd/util"
)

func TestParseTarget(t *testing.T) {
	t.Setenv("USER", "tester")

	tests := []struct {
		spec     string
		user     string
		host     string
		port     int
		hasError bool
	}{
		{"gw.example.com", "tester", "gw.example.com", 22, false},
		{"deploy@gw.example.com", "deploy", "gw.example.com", 22, false},
		{"deploy@gw.example.com:2222", "deploy", "gw.example.com", 2222, false},
		{"serveo.net:22", "tester", "serveo.net", 22, false},
		{"[::1]:2200", "tester", "::1", 2200, false},
		{"deploy@", "", "", 0, true},
		{"gw:notaport", "", "", 0, true},
		{"gw:70000", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			cfg, err := ParseTarget(tt.spec)
			if tt.hasError {
				if err == nil {
					t.Fatalf("expected error, got %+v", cfg)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.User != tt.user || cfg.Host != tt.host || cfg.Port != tt.port {
				t.Errorf("got %s@%s:%d, want %s@%s:%d", cfg.User, cfg.Host, cfg.Port, tt.user, tt.host, tt.port)
			}
		})
	}
}

func TestAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)

	methods, err := authMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected 1 auth method, got %d", len(methods))
	}
}

func TestAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if _, err := authMethods(&SSHConfig{KeyPath: "/nonexistent/key"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestAuthMethods_AgentUnset(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, err := authMethods(&SSHConfig{UseAgent: true})
	if err == nil || !strings.Contains(err.Error(), "SSH_AUTH_SOCK") {
		t.Fatalf("expected SSH_AUTH_SOCK error, got %v", err)
	}
}

func TestHostKeyCallback(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil || cb == nil {
		t.Fatalf("insecure callback: %v", err)
	}

	kh := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(kh, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: kh}); err != nil {
		t.Errorf("strict callback with empty known_hosts: %v", err)
	}
	if _, err := hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: "/nonexistent/known_hosts"}); err == nil {
		t.Error("expected error for missing known_hosts")
	}
}

func TestListenRemote_UnreachableGateway(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath)

	var retries int
	b := &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3}
	cfg := RemoteConfig{
		SSH:     &SSHConfig{User: "x", Host: "127.0.0.1", Port: port, KeyPath: keyPath, ConnTimeout: time.Second},
		Port:    9000,
		Backoff: b,
	}
	logger := util.NewLogger(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b.OnRetry = func(int, error, time.Duration) { retries++ }
	_, err = ListenRemote(ctx, cfg, logger, nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	var ne *gerr.NetworkError
	if !errors.As(err, &ne) || ne.Op != "dial" {
		t.Errorf("expected a dial NetworkError, got %v", err)
	}
	if retries != 2 {
		t.Errorf("OnRetry called %d times, want 2", retries)
	}
}

func TestListenNgrok_NoToken(t *testing.T) {
	if _, err := ListenNgrok(context.Background(), "", nil); err == nil {
		t.Fatal("expected error without auth token")
	}
}

func TestGatewayAddr(t *testing.T) {
	l := &RemoteListener{cfg: RemoteConfig{SSH: &SSHConfig{Host: "gw", Port: 22}, Port: 8080}}
	a := l.Addr()
	if a.Network() != "ssh" || a.String() != ":8080 via gw:22" {
		t.Errorf("Addr = %s %q", a.Network(), a.String())
	}
}

// writeTestKey writes a fresh unencrypted ed25519 key in OpenSSH format.
func writeTestKey(t *testing.T, path string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "memoryd-test")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}
}
