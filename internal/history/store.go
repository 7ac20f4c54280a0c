// Package history keeps an audit ledger of finished games in SQLite.
// The ledger is write-only from the server's point of view: it is never
// used to restore a session.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Game is one finished game.
type Game struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	Winner      string // empty when nobody was left at the table
	WinnerScore int
}

// PlayerScore is a player's standing when a game ended.
type PlayerScore struct {
	Slot   int
	Name   string
	Score  int
	Active bool
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: ":memory:" databases are per-connection and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id           TEXT PRIMARY KEY,
			started_at   DATETIME NOT NULL,
			ended_at     DATETIME NOT NULL,
			winner       TEXT NOT NULL DEFAULT '',
			winner_score INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS game_scores (
			game_id TEXT NOT NULL REFERENCES games(id),
			slot    INTEGER NOT NULL,
			name    TEXT NOT NULL,
			score   INTEGER NOT NULL,
			active  INTEGER NOT NULL,
			PRIMARY KEY (game_id, slot)
		);
		CREATE INDEX IF NOT EXISTS games_ended_at ON games(ended_at);
	`)
	return err
}

// SaveGame writes g and its scores in one transaction.
func (s *Store) SaveGame(ctx context.Context, g Game, scores []PlayerScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO games (id, started_at, ended_at, winner, winner_score) VALUES (?, ?, ?, ?, ?)",
		g.ID, g.StartedAt.UTC(), g.EndedAt.UTC(), g.Winner, g.WinnerScore,
	); err != nil {
		return fmt.Errorf("insert game %s: %w", g.ID, err)
	}
	for _, ps := range scores {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO game_scores (game_id, slot, name, score, active) VALUES (?, ?, ?, ?, ?)",
			g.ID, ps.Slot, ps.Name, ps.Score, ps.Active,
		); err != nil {
			return fmt.Errorf("insert score for slot %d: %w", ps.Slot, err)
		}
	}
	return tx.Commit()
}

// RecentGames returns up to limit games, newest first.
func (s *Store) RecentGames(ctx context.Context, limit int) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, ended_at, winner, winner_score FROM games ORDER BY ended_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.StartedAt, &g.EndedAt, &g.Winner, &g.WinnerScore); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// GameScores returns the standings of one game in slot order.
func (s *Store) GameScores(ctx context.Context, id string) ([]PlayerScore, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, name, score, active FROM game_scores WHERE game_id = ? ORDER BY slot",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PlayerScore
	for rows.Next() {
		var ps PlayerScore
		if err := rows.Scan(&ps.Slot, &ps.Name, &ps.Score, &ps.Active); err != nil {
			return nil, err
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
