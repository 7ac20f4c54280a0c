// Package cmd wires up the CLI flags and dispatches to the server,
// client or history modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"memoryd/config"
	"memoryd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X memoryd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives usage, version and history output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the appropriate memoryd mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	fs := flag.NewFlagSet("memoryd", flag.ContinueOnError)

	// ── game server ──────────────────────────────────────────────
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind address (all interfaces if empty)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Game server TCP port")
	fs.DurationVar(&cfg.ThinkTime, "think-time", cfg.ThinkTime, "Delay before NO_MATCH is delivered")
	fs.BoolVar(&cfg.AdvanceOnLeave, "advance-on-leave", cfg.AdvanceOnLeave, "Pass the turn on when its holder leaves")
	fs.IntVar(&cfg.OutboxSize, "outbox", cfg.OutboxSize, "Frames queued per player")
	fs.DurationVar(&cfg.StallTimeout, "stall-timeout", cfg.StallTimeout, "Drop a player that stops reading for this long")
	fs.IntVar(&cfg.MaxLineBytes, "max-line", cfg.MaxLineBytes, "Longest accepted protocol line in bytes")

	// ── extra listeners ──────────────────────────────────────────
	fs.IntVar(&cfg.WSPort, "ws-port", cfg.WSPort, "Websocket gateway port (0 disables)")
	fs.StringVarP(&cfg.ReverseTunnelSpec, "reverse-tunnel", "R", "", "Expose the game on an SSH gateway [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", 0, "Port to open on the SSH gateway")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind", "", "Bind address on the SSH gateway")
	fs.IntVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "SSH keepalive interval in seconds (0 disables)")
	fs.BoolVar(&cfg.Ngrok, "ngrok", false, "Expose the game on a public ngrok TCP endpoint")
	fs.StringVar(&cfg.NgrokAuthToken, "ngrok-auth", "", "ngrok auth token (default $NGROK_AUTHTOKEN)")

	// ── SSH auth ─────────────────────────────────────────────────
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	// ── history ──────────────────────────────────────────────────
	fs.StringVar(&cfg.HistoryDB, "history-db", "", "SQLite file recording finished games")
	fs.IntVar(&cfg.ShowHistory, "history", 0, "Print the N most recent games and exit")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Connect, "connect", "c", "", "Play on the server at host:port")
	fs.StringVar(&cfg.Name, "name", "", "Join automatically under this name")
	fs.StringVar(&cfg.Via, "via", "", "Reach the server through an SSH jump host [user@]host[:port]")

	// ── runtime ──────────────────────────────────────────────────
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "Environment file to load")
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "memoryd %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── environment ──────────────────────────────────────────────
	if err := config.LoadEnvFile(cfg.EnvFile, fs.Changed("env-file")); err != nil {
		return err
	}
	if err := config.LoadFromEnv(cfg, fs.Changed); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)

	if cfg.DryRun {
		logger.Info("configuration valid (%s mode)", cfg.Mode())
		return nil
	}

	switch cfg.Mode() {
	case config.ModeConnect:
		return runConnect(ctx, cfg, logger)
	case config.ModeHistory:
		return runHistory(ctx, cfg, stdout)
	default:
		return runServe(ctx, cfg, logger)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `memoryd – multiplayer memory game server v%s

Players connect over TCP and exchange '|'-separated text lines
(JOIN, START, MOVE, CHAT) with the server.

Usage:
  memoryd [options]                           Serve a game
  memoryd -c <host:port> [--name N]           Play from this terminal
  memoryd --history N --history-db <file>     List recent games

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Examples:
  memoryd -p 9000 --think-time 1s             Serve on port 9000
  memoryd --ws-port 8081 --history-db g.db    Add websockets and a ledger
  memoryd -R me@gateway --remote-port 9000    Serve through an SSH gateway
  memoryd -c localhost:8080 --name alice      Join a game
  memoryd -c db-internal:8080 --via me@jump   Join through a jump host
`)
}
