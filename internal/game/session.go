package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"memoryd/internal/broadcast"
	gerr "memoryd/internal/errors"
	"memoryd/internal/metrics"
	"memoryd/internal/protocol"
	"memoryd/util"
)

// MaxNameLen is the longest display name kept; longer names are cut.
const MaxNameLen = 49

// Result describes a finished game.
type Result struct {
	StartedAt   time.Time
	EndedAt     time.Time
	Winner      string
	WinnerSlot  int
	WinnerScore int
	Players     []PlayerInfo
}

// Recorder receives finished games.  Record is called with the session
// lock held and must not block.
type Recorder interface {
	Record(Result)
}

// Options configures a Session.  The zero value is usable.
type Options struct {
	// ThinkTime is how long observers see a failed attempt before the
	// NO_MATCH line arrives.
	ThinkTime time.Duration
	// AdvanceOnLeave passes the turn on when its holder disconnects.
	// When false the game waits on the departed slot.
	AdvanceOnLeave bool

	Rand     *rand.Rand
	Logger   *util.Logger
	Metrics  *metrics.Collector
	Recorder Recorder
}

// PlayerInfo is a copy of a roster slot.
type PlayerInfo struct {
	ID     int
	Name   string
	Score  int
	Active bool
}

// State is a point-in-time copy of the session.
type State struct {
	Started    bool
	Current    int
	PairsFound int
	Board      []string
	Players    []PlayerInfo
}

// Session is the one shared game table.  Every exported method takes
// the session lock for its whole duration, so operations are totally
// ordered and no caller ever sees a half-applied move.  Events are
// queued to each player's outbox under the lock; the socket writes
// happen on the peers' own goroutines.
type Session struct {
	mu        sync.Mutex
	board     Board
	roster    Roster
	current   int
	started   bool
	startedAt time.Time

	opts Options
	rng  *rand.Rand
	log  *util.Logger
	bc   *broadcast.Broadcaster
}

// NewSession returns an idle session with an empty roster.
func NewSession(opts Options) *Session {
	s := &Session{opts: opts, rng: opts.Rand, log: opts.Logger}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.log == nil {
		s.log = util.NewLogger(0)
	}
	s.bc = broadcast.New(s.log, opts.Metrics)
	return s
}

// Connect allocates a roster slot for a new connection.  It fails with
// [gerr.ErrFull] once every slot has been handed out.
func (s *Session) Connect(out broadcast.Target) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.roster.Join(out)
	if err != nil {
		return -1, err
	}
	s.log.Info("player %d connected", id)
	return id, nil
}

// Join records the display name for slot id, welcomes it and announces
// it to everyone else.
func (s *Session) Join(id int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.roster.Get(id)
	if err != nil {
		return err
	}
	if !p.Active {
		return gerr.ErrNotConnected
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	s.roster.SetName(id, name) //nolint:errcheck

	s.sendTo(p, protocol.Welcome(id, name))
	s.broadcast(protocol.PlayerJoin(name), 0, id)
	s.log.Info("player %d (%s) joined", id, name)
	return nil
}

// Start deals a new board and begins a game.  It does nothing while a
// game is running or when nobody is connected, and reports whether a
// game was started.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || len(s.roster.Active()) == 0 {
		return false
	}

	s.board.Shuffle(s.rng)
	// The first slot always opens.  If it has already left, the game
	// waits there unless the turn is passed on departure.
	s.current = 0
	if p, _ := s.roster.Get(0); s.opts.AdvanceOnLeave && (p == nil || !p.Active) {
		s.current = s.roster.NextActive(0)
	}
	s.started = true
	s.startedAt = time.Now()
	s.opts.Metrics.GameStarted()

	s.broadcast(protocol.GameStart(), 0, broadcast.NoExclude)
	s.broadcastBoard()
	s.broadcastScores()
	s.announceTurn()

	s.log.Info("game started with %d players", len(s.roster.Active()))
	s.log.Debug("layout %v", s.board.Layout())
	return true
}

// Move plays pos1 and pos2 for player id.  Rule violations return
// [gerr.ErrNotYourTurn] or [gerr.ErrInvalidMove] and leave the state
// untouched.
func (s *Session) Move(id, pos1, pos2 int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || id != s.current {
		return gerr.ErrNotYourTurn
	}
	if pos1 == pos2 {
		return fmt.Errorf("%w: same position twice", gerr.ErrInvalidMove)
	}
	v1, err := s.board.Reveal(pos1)
	if err != nil {
		return fmt.Errorf("%w: %w", gerr.ErrInvalidMove, err)
	}
	v2, err := s.board.Reveal(pos2)
	if err != nil {
		return fmt.Errorf("%w: %w", gerr.ErrInvalidMove, err)
	}

	player, _ := s.roster.Get(id)
	s.broadcast(protocol.Reveal(pos1, pos2, v1, v2), 0, broadcast.NoExclude)

	matched := s.board.IsPair(pos1, pos2)
	if matched {
		s.board.MarkRevealed(pos1, pos2)
		player.Score++
		s.broadcast(protocol.Match(), 0, broadcast.NoExclude)
	} else {
		s.broadcast(protocol.NoMatch(), s.opts.ThinkTime, broadcast.NoExclude)
		s.current = s.roster.NextActive(s.current)
	}
	s.opts.Metrics.MovePlayed(matched)
	s.log.Verbose("slot %d played %d,%d (%d,%d) matched=%t", id, pos1, pos2, v1, v2, matched)

	s.broadcastBoard()
	s.broadcastScores()

	if s.board.Complete() {
		s.finish()
	} else {
		s.announceTurn()
	}
	return nil
}

// Chat relays text from player id to every active player, the sender
// included.
func (s *Session) Chat(id int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.roster.Get(id)
	if err != nil {
		return err
	}
	s.broadcast(protocol.ChatLine(p.Name, text), 0, broadcast.NoExclude)
	s.log.Verbose("chat from %s: %s", p.Name, text)
	return nil
}

// Disconnect retires slot id and tells the remaining players.  The
// slot is never reused.
func (s *Session) Disconnect(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.roster.Get(id)
	if err != nil {
		return
	}
	s.roster.Deactivate(id)
	if !p.announced {
		p.announced = true
		s.broadcast(protocol.PlayerLeft(p.Name), 0, id)
		s.log.Info("player %d (%s) disconnected", id, p.Name)
	}

	if s.started && s.current == id {
		if !s.opts.AdvanceOnLeave {
			s.log.Warn("slot %d left holding the turn; game is stalled", id)
			return
		}
		s.current = s.roster.NextActive(id)
		s.announceTurn()
	}
}

// Snapshot copies the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Started:    s.started,
		Current:    s.current,
		PairsFound: s.board.PairsFound(),
		Board:      s.board.Render(),
		Players:    s.players(),
	}
}

// ── Internal helpers (lock held) ─────────────────────────────────────

func (s *Session) players() []PlayerInfo {
	out := make([]PlayerInfo, 0, s.roster.Len())
	for _, p := range s.roster.players {
		out = append(out, PlayerInfo{ID: p.ID, Name: p.Name, Score: p.Score, Active: p.Active})
	}
	return out
}

func (s *Session) finish() {
	s.started = false
	s.opts.Metrics.GameFinished()

	res := Result{StartedAt: s.startedAt, EndedAt: time.Now(), WinnerSlot: -1, Players: s.players()}
	if leader, ok := s.roster.Leader(); ok {
		res.Winner, res.WinnerSlot, res.WinnerScore = leader.Name, leader.ID, leader.Score
		s.broadcast(protocol.GameEnd(leader.Name, leader.Score), 0, broadcast.NoExclude)
		s.log.Info("game ended, winner %s with %d pairs", leader.Name, leader.Score)
	} else {
		s.log.Info("game ended with nobody left at the table")
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.Record(res)
	}
}

// announceTurn sends TURN only when the turn holder is still connected.
func (s *Session) announceTurn() {
	p, err := s.roster.Get(s.current)
	if err != nil || !p.Active {
		return
	}
	s.broadcast(protocol.Turn(p.ID, p.Name), 0, broadcast.NoExclude)
}

func (s *Session) broadcastBoard() {
	s.broadcast(protocol.Board(s.board.Render()), 0, broadcast.NoExclude)
}

// broadcastScores lists active players in roster order.
func (s *Session) broadcastScores() {
	var scores []protocol.Score
	for _, p := range s.roster.Active() {
		scores = append(scores, protocol.Score{Name: p.Name, Score: p.Score})
	}
	s.broadcast(protocol.Scores(scores), 0, broadcast.NoExclude)
}

func (s *Session) broadcast(payload []byte, delay time.Duration, exclude int) {
	active := s.roster.Active()
	recipients := make([]broadcast.Recipient, 0, len(active))
	for _, p := range active {
		recipients = append(recipients, broadcast.Recipient{ID: p.ID, Target: p.out})
	}
	for _, id := range s.bc.Send(recipients, broadcast.Frame{Payload: payload, Delay: delay}, exclude) {
		s.roster.Deactivate(id)
	}
}

func (s *Session) sendTo(p *Player, payload []byte) {
	if err := s.bc.SendTo(broadcast.Recipient{ID: p.ID, Target: p.out}, broadcast.Frame{Payload: payload}); err != nil {
		s.roster.Deactivate(p.ID)
	}
}
