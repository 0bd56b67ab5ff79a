// Package bot implements move selection for the automated opponent.
// Easy picks a random legal cell, medium mixes random play with a
// depth-bounded minimax, hard runs a full alpha-beta search and never
// loses. A Bot carries no mutable state between calls, so one instance
// per game can be used from concurrent request handlers.
package bot

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gridplay/tictac-server-go/internal/board"
)

// Difficulty selects the bot's playing strength.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty received from a client.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

// ErrNoMoves is returned when the bot is asked to move on a board with
// no empty cells.
var ErrNoMoves = errors.New("no moves available")

// mediumMaxDepth bounds the medium tier's lookahead, in plies.
const mediumMaxDepth = 3

// Bot chooses moves for one side of a game.
type Bot struct {
	difficulty Difficulty
	mark       board.Cell
	opponent   board.Cell
}

// New creates a bot playing the given mark at the given difficulty.
func New(difficulty Difficulty, mark board.Cell) *Bot {
	return &Bot{
		difficulty: difficulty,
		mark:       mark,
		opponent:   board.Opponent(mark),
	}
}

// Difficulty returns the bot's configured difficulty.
func (bt *Bot) Difficulty() Difficulty {
	return bt.difficulty
}

// ChooseMove returns the position the bot plays on the given board.
func (bt *Bot) ChooseMove(b board.Board) (int, error) {
	if len(b.Available()) == 0 {
		return 0, ErrNoMoves
	}

	switch bt.difficulty {
	case DifficultyEasy:
		return bt.randomMove(b), nil
	case DifficultyMedium:
		return bt.mediumMove(b), nil
	default:
		return bt.hardMove(b), nil
	}
}

// randomMove picks uniformly among the empty cells.
func (bt *Bot) randomMove(b board.Board) int {
	moves := b.Available()
	return moves[rand.IntN(len(moves))]
}

// mediumMove plays randomly half the time, otherwise searches 3 plies
// deep. Falls back to a random move when the bounded search records no
// move.
func (bt *Bot) mediumMove(b board.Board) int {
	if rand.Float64() < 0.5 {
		return bt.randomMove(b)
	}

	_, move := bt.minimax(b, 0, true)
	if move < 0 {
		return bt.randomMove(b)
	}
	return move
}

// hardMove runs a full alpha-beta search. The 9-cell tree is small
// enough to search to terminal depth, so the result is optimal.
func (bt *Bot) hardMove(b board.Board) int {
	_, move := bt.alphaBeta(b, 0, minScore, maxScore, true)
	if move < 0 {
		return bt.randomMove(b)
	}
	return move
}

// Scores are depth-adjusted so that among equal outcomes the search
// prefers the quickest win and the slowest loss.
const (
	minScore = -100
	maxScore = 100
)

// score classifies a position from the bot's point of view, or reports
// ok=false when the position is not terminal.
func (bt *Bot) score(b board.Board, depth int) (int, bool) {
	switch b.Winner() {
	case bt.mark:
		return 10 - depth, true
	case bt.opponent:
		return -10 + depth, true
	}
	if b.IsFull() {
		return 0, true
	}
	return 0, false
}

// minimax is the depth-bounded search used by the medium tier. It
// returns the best score and the first move achieving it, or -1 when no
// move was recorded (terminal position or depth cutoff).
func (bt *Bot) minimax(b board.Board, depth int, maximizing bool) (int, int) {
	if s, terminal := bt.score(b, depth); terminal {
		return s, -1
	}
	if depth >= mediumMaxDepth {
		return 0, -1
	}

	mark := bt.mark
	if !maximizing {
		mark = bt.opponent
	}

	best := minScore
	if !maximizing {
		best = maxScore
	}
	bestMove := -1

	for _, move := range b.Available() {
		next, err := b.Apply(move, mark)
		if err != nil {
			continue
		}
		s, _ := bt.minimax(next, depth+1, !maximizing)

		if maximizing && s > best || !maximizing && s < best {
			best = s
			bestMove = move
		}
	}

	return best, bestMove
}

// alphaBeta searches the full game tree with alpha-beta pruning. The
// maximizing branch prunes once its best score reaches beta, the
// minimizing branch once it drops to alpha. Move enumeration order is
// fixed (ascending positions), so for a given board the chosen move is
// deterministic.
func (bt *Bot) alphaBeta(b board.Board, depth, alpha, beta int, maximizing bool) (int, int) {
	if s, terminal := bt.score(b, depth); terminal {
		return s, -1
	}

	if maximizing {
		best := minScore
		bestMove := -1
		for _, move := range b.Available() {
			next, err := b.Apply(move, bt.mark)
			if err != nil {
				continue
			}
			s, _ := bt.alphaBeta(next, depth+1, alpha, beta, false)
			if s > best {
				best = s
				bestMove = move
			}
			if s > alpha {
				alpha = s
			}
			if best >= beta {
				break
			}
		}
		return best, bestMove
	}

	best := maxScore
	bestMove := -1
	for _, move := range b.Available() {
		next, err := b.Apply(move, bt.opponent)
		if err != nil {
			continue
		}
		s, _ := bt.alphaBeta(next, depth+1, alpha, beta, true)
		if s < best {
			best = s
			bestMove = move
		}
		if s < beta {
			beta = s
		}
		if best <= alpha {
			break
		}
	}
	return best, bestMove
}
