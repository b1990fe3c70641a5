package game

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mezonai/peerchain/jsonx"
)

// BoardSize is the number of cells on a tic-tac-toe board.
const BoardSize = 9

// Cell is a board position or a player symbol. The empty cell encodes as JSON null.
type Cell string

const (
	Empty Cell = ""
	X     Cell = "X"
	O     Cell = "O"
)

var (
	ErrGameOver     = errors.New("game is already over")
	ErrCellOccupied = errors.New("cell is occupied")
	ErrOutOfBoard   = errors.New("cell is outside the board")
)

func (c Cell) MarshalJSON() ([]byte, error) {
	if c == Empty {
		return []byte("null"), nil
	}
	return jsonx.Marshal(string(c))
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Empty
		return nil
	}
	var s string
	if err := jsonx.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Cell(s)
	return nil
}

// Other returns the opposing symbol.
func (c Cell) Other() Cell {
	if c == X {
		return O
	}
	return X
}

// State is one snapshot of a game, carried as a block payload.
type State struct {
	Board  []Cell `json:"board"`
	Turn   Cell   `json:"turn"`
	Winner Cell   `json:"winner"`
	IsDraw bool   `json:"isDraw"`
}

// NewState returns an empty board with X to move.
func NewState() State {
	return State{
		Board: make([]Cell, BoardSize),
		Turn:  X,
	}
}

// Finished reports whether the game has a winner or ended in a draw.
func (s State) Finished() bool {
	return s.Winner != Empty || s.IsDraw
}

// Clone returns a copy that does not share the board.
func (s State) Clone() State {
	c := s
	c.Board = append([]Cell(nil), s.Board...)
	return c
}

var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the symbol holding a full line, or Empty.
func Winner(board []Cell) Cell {
	if len(board) != BoardSize {
		return Empty
	}
	for _, line := range winningLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != Empty && a == b && a == c {
			return a
		}
	}
	return Empty
}

func boardFull(board []Cell) bool {
	for _, c := range board {
		if c == Empty {
			return false
		}
	}
	return true
}

// ApplyMove places the current player's symbol at cell, passes the turn and
// records a winner or draw. The input state is not modified.
func ApplyMove(s State, cell int) (State, error) {
	if s.Finished() {
		return s, ErrGameOver
	}
	if len(s.Board) != BoardSize || cell < 0 || cell >= BoardSize {
		return s, ErrOutOfBoard
	}
	if s.Board[cell] != Empty {
		return s, fmt.Errorf("%w: %d", ErrCellOccupied, cell)
	}

	next := s.Clone()
	next.Board[cell] = s.Turn
	next.Turn = s.Turn.Other()
	next.Winner = Winner(next.Board)
	if next.Winner == Empty && boardFull(next.Board) {
		next.IsDraw = true
	}
	return next, nil
}

// Render draws the board for a terminal.
func Render(s State) string {
	cell := func(i int) string {
		if i >= len(s.Board) || s.Board[i] == Empty {
			return " "
		}
		return string(s.Board[i])
	}
	var b strings.Builder
	for row := 0; row < 3; row++ {
		fmt.Fprintf(&b, " %s | %s | %s \n", cell(row*3), cell(row*3+1), cell(row*3+2))
		if row < 2 {
			b.WriteString("---+---+---\n")
		}
	}
	return b.String()
}
