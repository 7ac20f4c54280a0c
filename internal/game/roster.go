package game

import (
	"memoryd/internal/broadcast"
	gerr "memoryd/internal/errors"
)

// MaxPlayers is the roster capacity.  Slots are never reused, so this
// also caps the number of connections over the life of the process.
const MaxPlayers = 4

// Player is one roster slot.
type Player struct {
	ID     int
	Name   string
	Score  int
	Active bool

	out       broadcast.Target
	announced bool // PLAYER_LEFT already sent
}

// Roster is an append-only list of player slots.
type Roster struct {
	players []*Player
}

// Join allocates the next slot for out.  The slot is active at once so
// the connection receives broadcasts even before it sends JOIN.
func (r *Roster) Join(out broadcast.Target) (int, error) {
	if len(r.players) >= MaxPlayers {
		return -1, gerr.ErrFull
	}
	id := len(r.players)
	r.players = append(r.players, &Player{ID: id, Active: true, out: out})
	return id, nil
}

// Get returns the slot with the given id.
func (r *Roster) Get(id int) (*Player, error) {
	if id < 0 || id >= len(r.players) {
		return nil, gerr.ErrUnknownPlayer
	}
	return r.players[id], nil
}

// SetName renames slot id.  Departed slots may be renamed too.
func (r *Roster) SetName(id int, name string) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

// Deactivate marks the slot as gone.  The slot keeps its id, name and
// score.
func (r *Roster) Deactivate(id int) {
	if p, err := r.Get(id); err == nil {
		p.Active = false
	}
}

// Len is the number of slots ever handed out.
func (r *Roster) Len() int { return len(r.players) }

// NextActive scans forward from from+1, wrapping, and returns the first
// active slot.  If no other slot is active it returns from itself.
func (r *Roster) NextActive(from int) int {
	n := len(r.players)
	if n == 0 {
		return from
	}
	for i := 1; i <= n; i++ {
		next := (from + i) % n
		if r.players[next].Active {
			return next
		}
	}
	return from
}

// Active returns the active slots in roster order.
func (r *Roster) Active() []*Player {
	var out []*Player
	for _, p := range r.players {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Leader returns the active player with the highest score, preferring
// the lowest slot on ties.  ok is false when nobody is active.
func (r *Roster) Leader() (leader *Player, ok bool) {
	for _, p := range r.players {
		if p.Active && (leader == nil || p.Score > leader.Score) {
			leader = p
		}
	}
	return leader, leader != nil
}
