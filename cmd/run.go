package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"memoryd/config"
	"memoryd/internal/client"
	"memoryd/internal/game"
	"memoryd/internal/gateway"
	"memoryd/internal/history"
	"memoryd/internal/metrics"
	"memoryd/internal/server"
	"memoryd/internal/transport"
	"memoryd/util"
)

// ── serve ────────────────────────────────────────────────────────────

func runServe(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	m := metrics.New()

	var recorder game.Recorder
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		rec := history.NewRecorder(store, 0, logger)
		defer rec.Close()
		recorder = rec
	}

	sess := game.NewSession(game.Options{
		ThinkTime:      cfg.ThinkTime,
		AdvanceOnLeave: cfg.AdvanceOnLeave,
		Logger:         logger,
		Metrics:        m,
		Recorder:       recorder,
	})
	srv := server.New(sess, server.Options{
		MaxLineBytes: cfg.MaxLineBytes,
		OutboxSize:   cfg.OutboxSize,
		StallTimeout: cfg.StallTimeout,
		Logger:       logger,
		Metrics:      m,
	})

	listeners, wsLn, err := openListeners(ctx, cfg, logger, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		g.Go(func() error { return srv.Serve(gctx, ln) })
	}
	if wsLn != nil {
		g.Go(func() error { return srv.ServeWebSocket(gctx, wsLn) })
	}
	err = g.Wait()

	logger.Info("shutting down: %d games finished, %d moves, %s",
		m.GamesFinished(), m.Moves(), m.Snapshot().Traffic)
	logger.Debug("metrics:\n%s", m.JSON())
	return err
}

// openListeners opens every configured listener.  Everything already
// opened is closed if a later one fails.
func openListeners(ctx context.Context, cfg *config.Config, logger *util.Logger, m *metrics.Collector) ([]net.Listener, net.Listener, error) {
	var (
		listeners []net.Listener
		wsLn      net.Listener
	)
	fail := func(err error) ([]net.Listener, net.Listener, error) {
		for _, ln := range listeners {
			ln.Close()
		}
		if wsLn != nil {
			wsLn.Close()
		}
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fail(fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err))
	}
	listeners = append(listeners, ln)

	if addr := cfg.WSAddr(); addr != "" {
		wsLn, err = net.Listen("tcp", addr)
		if err != nil {
			return fail(fmt.Errorf("websocket listen on %s: %w", addr, err))
		}
	}

	if cfg.ReverseTunnelSpec != "" {
		target, err := cfg.SSHTarget(cfg.ReverseTunnelSpec)
		if err != nil {
			return fail(err)
		}
		rl, err := gateway.ListenRemote(ctx, gateway.RemoteConfig{
			SSH:         target,
			BindAddress: cfg.RemoteBindAddress,
			Port:        cfg.RemotePort,
			KeepAlive:   time.Duration(cfg.KeepAliveInterval) * time.Second,
		}, logger, m)
		if err != nil {
			return fail(err)
		}
		listeners = append(listeners, rl)
	}

	if cfg.Ngrok {
		tun, err := gateway.ListenNgrok(ctx, cfg.NgrokAuthToken, logger)
		if err != nil {
			return fail(err)
		}
		listeners = append(listeners, tun)
	}
	return listeners, wsLn, nil
}

// ── connect ──────────────────────────────────────────────────────────

func runConnect(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	var dialer transport.Dialer = &transport.TCPDialer{Timeout: cfg.ConnTimeout}
	if cfg.Via != "" {
		target, err := cfg.SSHTarget(cfg.Via)
		if err != nil {
			return err
		}
		dialer = transport.NewSSHDialer(target, logger)
	}

	c := &client.Client{
		Dialer:  dialer,
		Address: cfg.Connect,
		Name:    cfg.Name,
		Logger:  logger,
	}
	return c.Run(ctx)
}

// ── history ──────────────────────────────────────────────────────────

func runHistory(ctx context.Context, cfg *config.Config, w io.Writer) error {
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	games, err := store.RecentGames(ctx, cfg.ShowHistory)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintln(w, "no games recorded")
		return nil
	}

	for _, g := range games {
		scores, err := store.GameScores(ctx, g.ID)
		if err != nil {
			return err
		}
		winner := g.Winner
		if winner == "" {
			winner = "-"
		}
		fmt.Fprintf(w, "%s  %s  %s  winner %s (%d)\n",
			shortID(g.ID), humanize.Time(g.EndedAt),
			g.EndedAt.Sub(g.StartedAt).Truncate(time.Second), winner, g.WinnerScore)

		parts := make([]string, 0, len(scores))
		for _, s := range scores {
			entry := fmt.Sprintf("%s=%d", s.Name, s.Score)
			if !s.Active {
				entry += " (left)"
			}
			parts = append(parts, entry)
		}
		fmt.Fprintf(w, "          %s\n", strings.Join(parts, ", "))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
