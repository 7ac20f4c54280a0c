package protocol

import (
	"fmt"
	"testing"

	gerr "memoryd/internal/errors"
)

func TestEvents(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"welcome", Welcome(1, "bob"), "WELCOME|1: bob\n"},
		{"join", PlayerJoin("bob"), "PLAYER_JOIN|bob joined the game\n"},
		{"left", PlayerLeft("bob"), "PLAYER_LEFT|bob left the game\n"},
		{"start", GameStart(), "GAME_START|Game started!\n"},
		{"board", Board([]string{"X", "3", "X", "3"}), "BOARD|X,3,X,3\n"},
		{"scores", Scores([]Score{{"alice", 2}, {"bob", 0}}), "SCORES|alice:2,bob:0\n"},
		{"scores empty", Scores(nil), "SCORES|\n"},
		{"turn", Turn(0, "alice"), "TURN|0|alice\n"},
		{"reveal", Reveal(3, 7, 5, 5), "REVEAL|3,7|5,5\n"},
		{"match", Match(), "MATCH|Cards matched!\n"},
		{"no match", NoMatch(), "NO_MATCH|Cards don't match!\n"},
		{"end", GameEnd("alice", 5), "GAME_END|Winner: alice with 5 pairs!\n"},
		{"chat", ChatLine("alice", "gg"), "CHAT|alice: gg\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.got) != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{gerr.ErrFull, "ERROR|Server full\n"},
		{gerr.ErrNotYourTurn, "ERROR|Not your turn or game not started\n"},
		{fmt.Errorf("%w: %w", gerr.ErrInvalidMove, gerr.ErrOutOfRange), "ERROR|Invalid move\n"},
		{gerr.ErrMalformedCommand, ""},
		{gerr.ErrPeerUnreachable, ""},
	}
	for _, tt := range tests {
		if got := string(ErrorFor(tt.err)); got != tt.want {
			t.Errorf("ErrorFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
