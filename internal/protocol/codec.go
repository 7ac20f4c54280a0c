// Package protocol implements the line-oriented wire format: inbound
// commands are pipe-delimited fields terminated by a newline, outbound
// events are rendered the same way.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	gerr "memoryd/internal/errors"
)

// Kind identifies an inbound command.
type Kind int

const (
	Join Kind = iota + 1
	Start
	Move
	Chat
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "JOIN"
	case Start:
		return "START"
	case Move:
		return "MOVE"
	case Chat:
		return "CHAT"
	default:
		return "UNKNOWN"
	}
}

// Command is one decoded client request.  Only the fields relevant to
// Kind are set.
type Command struct {
	Kind Kind
	Name string // JOIN
	Pos1 int    // MOVE
	Pos2 int    // MOVE
	Text string // CHAT
}

// fields splits a line on '|', CR and LF and drops empty fields, so
// "JOIN||bob" and "JOIN|bob\r\n" both yield [JOIN bob].
func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == '|' || r == '\n' || r == '\r'
	})
}

// Decode parses one received line.  Unknown commands and commands
// missing a required argument return an error matching
// [gerr.ErrMalformedCommand]; callers drop those without replying.
func Decode(line string) (Command, error) {
	f := fields(line)
	if len(f) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", gerr.ErrMalformedCommand)
	}

	arg := func() (string, error) {
		if len(f) < 2 {
			return "", fmt.Errorf("%w: %s needs an argument", gerr.ErrMalformedCommand, f[0])
		}
		return f[1], nil
	}

	switch f[0] {
	case "JOIN":
		name, err := arg()
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Join, Name: name}, nil
	case "START":
		return Command{Kind: Start}, nil
	case "MOVE":
		a, err := arg()
		if err != nil {
			return Command{}, err
		}
		p1, p2, err := parsePositions(a)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Move, Pos1: p1, Pos2: p2}, nil
	case "CHAT":
		text, err := arg()
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Chat, Text: text}, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", gerr.ErrMalformedCommand, f[0])
	}
}

// parsePositions reads "p1,p2".  Like scanf's "%d,%d" it skips leading
// blanks before each number and ignores anything after the second.
func parsePositions(s string) (int, int, error) {
	p1, rest, ok := leadingInt(s)
	if !ok || !strings.HasPrefix(rest, ",") {
		return 0, 0, fmt.Errorf("%w: bad positions %q", gerr.ErrMalformedCommand, s)
	}
	p2, _, ok := leadingInt(rest[1:])
	if !ok {
		return 0, 0, fmt.Errorf("%w: bad positions %q", gerr.ErrMalformedCommand, s)
	}
	return p1, p2, nil
}

func leadingInt(s string) (int, string, bool) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, s, false
	}
	return n, s[end:], true
}
