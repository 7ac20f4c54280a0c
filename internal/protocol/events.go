package protocol

import (
	"fmt"
	"strconv"
	"strings"

	gerr "memoryd/internal/errors"
)

// Hidden is the BOARD token for a face-down card.
const Hidden = "X"

// Score is one entry of a SCORES event.
type Score struct {
	Name  string
	Score int
}

func line(parts ...string) []byte {
	return []byte(strings.Join(parts, "|") + "\n")
}

func Welcome(id int, name string) []byte {
	return line("WELCOME", fmt.Sprintf("%d: %s", id, name))
}

func PlayerJoin(name string) []byte { return line("PLAYER_JOIN", name+" joined the game") }

func PlayerLeft(name string) []byte { return line("PLAYER_LEFT", name+" left the game") }

func GameStart() []byte { return line("GAME_START", "Game started!") }

// Board renders tokens as produced by the game board: a value for a
// revealed card, [Hidden] otherwise.
func Board(tokens []string) []byte { return line("BOARD", strings.Join(tokens, ",")) }

// Scores lists name:score pairs in the given order.
func Scores(scores []Score) []byte {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = s.Name + ":" + strconv.Itoa(s.Score)
	}
	return line("SCORES", strings.Join(parts, ","))
}

func Turn(id int, name string) []byte { return line("TURN", strconv.Itoa(id), name) }

func Reveal(p1, p2, v1, v2 int) []byte {
	return line("REVEAL", fmt.Sprintf("%d,%d", p1, p2), fmt.Sprintf("%d,%d", v1, v2))
}

func Match() []byte { return line("MATCH", "Cards matched!") }

func NoMatch() []byte { return line("NO_MATCH", "Cards don't match!") }

func GameEnd(winner string, pairs int) []byte {
	return line("GAME_END", fmt.Sprintf("Winner: %s with %d pairs!", winner, pairs))
}

func ChatLine(name, text string) []byte { return line("CHAT", name+": "+text) }

func Error(msg string) []byte { return line("ERROR", msg) }

// ErrorFor maps a rejected command to the ERROR line sent back to the
// offending connection.  It returns nil for errors that are not
// reported on the wire.
func ErrorFor(err error) []byte {
	switch {
	case gerr.Is(err, gerr.ErrFull):
		return Error("Server full")
	case gerr.Is(err, gerr.ErrNotYourTurn):
		return Error("Not your turn or game not started")
	case gerr.Is(err, gerr.ErrInvalidMove):
		return Error("Invalid move")
	default:
		return nil
	}
}
