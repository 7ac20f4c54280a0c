package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memoryd/internal/game"
	"memoryd/util"
)

type fakeSaver struct {
	mu    sync.Mutex
	calls int
	games []Game
	err   error
}

func (f *fakeSaver) SaveGame(_ context.Context, g Game, _ []PlayerScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.games = append(f.games, g)
	return nil
}

func result(winner string) game.Result {
	now := time.Now()
	return game.Result{
		StartedAt:   now.Add(-time.Minute),
		EndedAt:     now,
		Winner:      winner,
		WinnerScore: 4,
		Players: []game.PlayerInfo{
			{ID: 0, Name: winner, Score: 4, Active: true},
			{ID: 1, Name: "other", Score: 4, Active: true},
		},
	}
}

func TestRecorder_WritesToStore(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, 4, util.NewLogger(0))

	r.Record(result("alice"))
	r.Record(result("bob"))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	games, err := s.RecentGames(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[0].ID == games[1].ID || len(games[0].ID) != 36 {
		t.Errorf("expected distinct uuids, got %q and %q", games[0].ID, games[1].ID)
	}
	scores, _ := s.GameScores(context.Background(), games[0].ID)
	if len(scores) != 2 {
		t.Errorf("expected 2 score rows, got %d", len(scores))
	}
}

func TestRecorder_BreakerStopsCalls(t *testing.T) {
	saver := &fakeSaver{err: errors.New("database is locked")}
	r := NewRecorder(saver, 10, util.NewLogger(0))

	for i := 0; i < 6; i++ {
		r.Record(result("alice"))
	}
	r.Close() //nolint:errcheck

	// Three failures open the breaker; the remaining results are
	// dropped without touching the database.
	if saver.calls != 3 {
		t.Errorf("SaveGame called %d times, want 3", saver.calls)
	}
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	saver := &fakeSaver{}
	r := NewRecorder(saver, 1, nil)
	r.Close() //nolint:errcheck
	r.Close() //nolint:errcheck

	r.Record(result("late"))
	if saver.calls != 0 {
		t.Errorf("record after close reached the store")
	}
}
