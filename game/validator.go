package game

import (
	"github.com/mezonai/peerchain/validation"
)

const (
	MsgBoardSize     = "Board must have %d cells, but found %d"
	MsgPrevBoardSize = "Previous board must have %d cells, but found %d"
	MsgGameOver      = "Game is already over"
	MsgChangeCount   = "Expected 1 change, but found %d"
	MsgIllegalChange = "Position %d illegally changed"
	MsgWrongSymbol   = "Expected %s at position %d, but found %s"
)

// ValidateTransition judges whether next is a legal single move after prev:
// exactly one previously empty cell gains the symbol whose turn it was.
func ValidateTransition(prev, next State) validation.Verdict {
	var c validation.Collector

	if len(next.Board) != BoardSize {
		c.Addf(MsgBoardSize, BoardSize, len(next.Board))
		return c.Verdict()
	}
	if len(prev.Board) != BoardSize {
		c.Addf(MsgPrevBoardSize, BoardSize, len(prev.Board))
		return c.Verdict()
	}
	if prev.Finished() {
		c.Add(MsgGameOver)
		return c.Verdict()
	}

	var changed []int
	for i := range next.Board {
		if next.Board[i] != prev.Board[i] {
			changed = append(changed, i)
		}
	}
	if len(changed) != 1 {
		c.Addf(MsgChangeCount, len(changed))
	}

	for _, i := range changed {
		if prev.Board[i] != Empty {
			c.Addf(MsgIllegalChange, i)
			continue
		}
		if next.Board[i] != prev.Turn {
			c.Addf(MsgWrongSymbol, symbolName(prev.Turn), i, symbolName(next.Board[i]))
		}
	}

	return c.Verdict()
}

func symbolName(c Cell) string {
	if c == Empty {
		return "null"
	}
	return string(c)
}
