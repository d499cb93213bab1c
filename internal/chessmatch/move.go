package chessmatch

import (
	"fmt"
	"regexp"

	chess "github.com/corentings/chess/v2"
)

// Move grammar: start square, target square, optional promotion letter.
var moveRe = regexp.MustCompile(`^([a-h][1-8])([a-h][1-8])([rnbq])?$`)

// Square is a board coordinate with file and rank in [0,7].
type Square struct {
	File int
	Rank int
}

// NewSquare builds a Square from algebraic file/rank characters. It fails on
// anything out of range, so no unchecked coordinate ever reaches the engine.
func NewSquare(file, rank byte) (Square, error) {
	f := int(file) - 'a'
	r := int(rank) - '1'
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return Square{}, fmt.Errorf("square %c%c out of range", file, rank)
	}
	return Square{File: f, Rank: r}, nil
}

func (s Square) String() string {
	return string([]byte{byte('a' + s.File), byte('1' + s.Rank)})
}

// Move is a parsed board move before legality checking.
type Move struct {
	From      Square
	To        Square
	Promotion chess.PieceType // NoPieceType when absent
}

// UCI renders the move in the engine's coordinate notation.
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	switch m.Promotion {
	case chess.Rook:
		s += "r"
	case chess.Knight:
		s += "n"
	case chess.Bishop:
		s += "b"
	case chess.Queen:
		s += "q"
	}
	return s
}

// ParseMove parses a move string against the grammar. Parsing is total and
// deterministic; legality is the engine's concern, not the parser's.
func ParseMove(text string) (Move, error) {
	m := moveRe.FindStringSubmatch(text)
	if m == nil {
		return Move{}, fmt.Errorf("move %q does not match grammar", text)
	}
	from, err := NewSquare(m[1][0], m[1][1])
	if err != nil {
		return Move{}, err
	}
	to, err := NewSquare(m[2][0], m[2][1])
	if err != nil {
		return Move{}, err
	}
	promo := chess.NoPieceType
	switch m[3] {
	case "r":
		promo = chess.Rook
	case "n":
		promo = chess.Knight
	case "b":
		promo = chess.Bishop
	case "q":
		promo = chess.Queen
	}
	return Move{From: from, To: to, Promotion: promo}, nil
}
