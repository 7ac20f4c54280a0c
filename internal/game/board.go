// Package game holds the shared state of the single memory table: the
// card board, the player roster and the session that serialises every
// operation on them.
package game

import (
	"fmt"
	"math/rand"
	"strconv"

	gerr "memoryd/internal/errors"
	"memoryd/internal/protocol"
)

const (
	// BoardSize is the number of card slots.
	BoardSize = 16
	// Pairs is the number of distinct card values; each appears twice.
	Pairs = BoardSize / 2
)

// Board is the 4x4 card layout.  The zero value is an unshuffled board
// with every card hidden; call Shuffle before play.
type Board struct {
	cards      [BoardSize]int
	revealed   [BoardSize]bool
	pairsFound int
}

// Shuffle deals values 1..Pairs twice each and permutes them with
// Fisher-Yates using rng.  All cards are hidden again and the pair
// count is reset.
func (b *Board) Shuffle(rng *rand.Rand) {
	for i := range b.cards {
		b.cards[i] = i/2 + 1
		b.revealed[i] = false
	}
	for i := BoardSize - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		b.cards[i], b.cards[j] = b.cards[j], b.cards[i]
	}
	b.pairsFound = 0
}

// Reveal returns the value at pos without changing the board.
func (b *Board) Reveal(pos int) (int, error) {
	if pos < 0 || pos >= BoardSize {
		return 0, fmt.Errorf("%w: %d", gerr.ErrOutOfRange, pos)
	}
	if b.revealed[pos] {
		return 0, fmt.Errorf("%w: %d", gerr.ErrAlreadyRevealed, pos)
	}
	return b.cards[pos], nil
}

// IsPair reports whether both positions hold the same value.  Positions
// must be in range.
func (b *Board) IsPair(pos1, pos2 int) bool {
	return b.cards[pos1] == b.cards[pos2]
}

// MarkRevealed turns a found pair face up.
func (b *Board) MarkRevealed(pos1, pos2 int) {
	b.revealed[pos1] = true
	b.revealed[pos2] = true
	b.pairsFound++
}

// PairsFound is the number of pairs matched so far.
func (b *Board) PairsFound() int { return b.pairsFound }

// Complete reports whether every pair has been found.
func (b *Board) Complete() bool { return b.pairsFound >= Pairs }

// Render returns one token per slot: the value when revealed, the
// hidden marker otherwise.
func (b *Board) Render() []string {
	out := make([]string, BoardSize)
	for i, v := range b.cards {
		if b.revealed[i] {
			out[i] = strconv.Itoa(v)
		} else {
			out[i] = protocol.Hidden
		}
	}
	return out
}

// Layout returns the face values of every slot, hidden or not.
func (b *Board) Layout() [BoardSize]int { return b.cards }
