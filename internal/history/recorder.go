package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/game"
	"memoryd/internal/retry"
	"memoryd/util"
)

// Saver is the write side of [Store].
type Saver interface {
	SaveGame(ctx context.Context, g Game, scores []PlayerScore) error
}

// Recorder writes finished games to a Saver on its own goroutine so
// the game session never waits on disk.  Writes go through a circuit
// breaker: while the database keeps failing, results are dropped
// instead of piling up.
type Recorder struct {
	saver   Saver
	queue   chan game.Result
	breaker *retry.CircuitBreaker
	log     *util.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder with room for queue pending results.
func NewRecorder(saver Saver, queue int, logger *util.Logger) *Recorder {
	if queue <= 0 {
		queue = 16
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	log := logger.Named("history")
	r := &Recorder{
		saver:   saver,
		queue:   make(chan game.Result, queue),
		log:     log,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
		breaker: retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
			OnStateChange: func(from, to retry.State) {
				log.Warn("history writes %s -> %s", from, to)
			},
		}),
	}
	go r.run()
	return r
}

// Record queues res without blocking.  It is dropped if the queue is
// full or the recorder has been closed.
func (r *Recorder) Record(res game.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- res:
	default:
		r.log.Warn("queue full, dropping game that ended %s", res.EndedAt.Format(time.RFC3339))
	}
}

// Close stops accepting results and waits for queued ones to be
// written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for res := range r.queue {
		g, scores := fromResult(res)
		err := r.breaker.Execute(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			return r.saver.SaveGame(ctx, g, scores)
		})
		if err != nil {
			r.log.Warn("dropping game %s: %v", g.ID, err)
			continue
		}
		r.log.Verbose("saved game %s (winner %q)", g.ID, g.Winner)
	}
}

func fromResult(res game.Result) (Game, []PlayerScore) {
	g := Game{
		ID:          uuid.NewString(),
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
		Winner:      res.Winner,
		WinnerScore: res.WinnerScore,
	}
	scores := make([]PlayerScore, len(res.Players))
	for i, p := range res.Players {
		scores[i] = PlayerScore{Slot: p.ID, Name: p.Name, Score: p.Score, Active: p.Active}
	}
	return g, scores
}
