// Package board implements the tic-tac-toe rules: board representation,
// move legality, win detection and result classification. Everything here
// is pure — no state, no locks — so it can be shared freely between the
// game manager and the bot's search.
package board

import "errors"

// ErrIllegalMove is returned when a move targets an occupied cell or a
// position outside the board.
var ErrIllegalMove = errors.New("illegal move")

// Cell is the content of a single board cell.
type Cell byte

const (
	Empty Cell = '-'
	MarkX Cell = 'X'
	MarkO Cell = 'O'
)

// Size is the number of cells on the board.
//
//	0 | 1 | 2
//	---------
//	3 | 4 | 5
//	---------
//	6 | 7 | 8
const Size = 9

// Board is a flat, fixed-size tic-tac-toe board. It is a value type:
// Apply returns a new Board and never mutates its receiver.
type Board [Size]Cell

// winningLines enumerates the 8 winning triples in a fixed order:
// rows, columns, diagonals. Winner and WinningLine scan in this order,
// which makes both deterministic for malformed boards too.
var winningLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Result classifies a board position.
type Result string

const (
	ResultOngoing Result = "ongoing"
	ResultWin     Result = "win"
	ResultDraw    Result = "draw"
)

// New returns a board with all cells empty.
func New() Board {
	var b Board
	for i := range b {
		b[i] = Empty
	}
	return b
}

// Parse builds a board from its 9-character string form, as stored in the
// games table. Returns false if the input is not a well-formed board.
func Parse(s string) (Board, bool) {
	var b Board
	if len(s) != Size {
		return b, false
	}
	for i := 0; i < Size; i++ {
		c := Cell(s[i])
		if c != Empty && c != MarkX && c != MarkO {
			return b, false
		}
		b[i] = c
	}
	return b, true
}

// String renders the board in its 9-character wire/storage form.
func (b Board) String() string {
	return string(b[:])
}

// IsLegal reports whether placing a mark at position is allowed.
// Out-of-range positions are illegal, not an error.
func (b Board) IsLegal(position int) bool {
	if position < 0 || position >= Size {
		return false
	}
	return b[position] == Empty
}

// Apply returns a copy of the board with the mark placed at position.
// The receiver is never modified.
func (b Board) Apply(position int, mark Cell) (Board, error) {
	if !b.IsLegal(position) {
		return b, ErrIllegalMove
	}
	next := b
	next[position] = mark
	return next, nil
}

// Winner returns the mark completing any winning triple, or Empty if
// there is none. The first matching triple in enumeration order wins.
func (b Board) Winner() Cell {
	for _, line := range winningLines {
		c := b[line[0]]
		if c != Empty && c == b[line[1]] && c == b[line[2]] {
			return c
		}
	}
	return Empty
}

// WinningLine returns the positions of the completed triple, or nil.
func (b Board) WinningLine() []int {
	for _, line := range winningLines {
		c := b[line[0]]
		if c != Empty && c == b[line[1]] && c == b[line[2]] {
			return []int{line[0], line[1], line[2]}
		}
	}
	return nil
}

// IsFull reports whether no empty cells remain.
func (b Board) IsFull() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Result classifies the position: win if a triple is complete, draw if
// the board is full with no winner, ongoing otherwise.
func (b Board) Result() Result {
	if b.Winner() != Empty {
		return ResultWin
	}
	if b.IsFull() {
		return ResultDraw
	}
	return ResultOngoing
}

// Available returns the empty positions in ascending order.
func (b Board) Available() []int {
	moves := make([]int, 0, Size)
	for i, c := range b {
		if c == Empty {
			moves = append(moves, i)
		}
	}
	return moves
}

// MoveCount returns the number of occupied cells.
func (b Board) MoveCount() int {
	n := 0
	for _, c := range b {
		if c != Empty {
			n++
		}
	}
	return n
}

// Opponent returns the other player's mark.
func Opponent(mark Cell) Cell {
	if mark == MarkX {
		return MarkO
	}
	return MarkX
}
