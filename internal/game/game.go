// Package game owns all live games: it creates them, serializes moves
// against the rules engine, drives the lifecycle to a terminal state and
// hands finished games to the standings updater and the persistence
// collaborator. The Manager is the only shared mutable state in the
// server core.
package game

import (
	"errors"
	"sync"
	"time"

	"github.com/gridplay/tictac-server-go/internal/board"
	"github.com/gridplay/tictac-server-go/internal/bot"
)

var (
	// ErrGameNotFound means the game ID is unknown or already evicted.
	ErrGameNotFound = errors.New("game not found")
	// ErrNotYourTurn means the game exists but the mover does not hold
	// the turn. Stale bot triggers surface as this and are safe to drop.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrGameFinished means the game already reached a terminal state.
	ErrGameFinished = errors.New("game already finished")
	// ErrAlreadyInGame means a player tried to enter a second game.
	ErrAlreadyInGame = errors.New("player already in an active game")
)

// Status is the lifecycle state of a game. Games are created active and
// never leave finished.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Reason records why a game finished.
type Reason string

const (
	ReasonWin       Reason = "win"
	ReasonDraw      Reason = "draw"
	ReasonAbandoned Reason = "abandoned"
)

// Opponent identifies the non-initiating side of a game: either a human
// user or the automated opponent at a difficulty tier. Using a tagged
// value instead of a reserved user ID keeps bot checks out of the ID
// space.
type Opponent struct {
	userID     int64
	difficulty bot.Difficulty
	automated  bool
}

// HumanOpponent returns an Opponent for a human user.
func HumanOpponent(userID int64) Opponent {
	return Opponent{userID: userID}
}

// BotOpponent returns an automated Opponent at the given difficulty.
func BotOpponent(difficulty bot.Difficulty) Opponent {
	return Opponent{difficulty: difficulty, automated: true}
}

// IsBot reports whether the opponent is automated.
func (o Opponent) IsBot() bool {
	return o.automated
}

// UserID returns the opponent's user ID; ok is false for bots.
func (o Opponent) UserID() (int64, bool) {
	if o.automated {
		return 0, false
	}
	return o.userID, true
}

// Difficulty returns the bot difficulty; ok is false for humans.
func (o Opponent) Difficulty() (bot.Difficulty, bool) {
	if !o.automated {
		return "", false
	}
	return o.difficulty, true
}

// Participant identifies one side of a game in results and events.
type Participant struct {
	UserID int64 `json:"user_id,omitempty"`
	Bot    bool  `json:"bot,omitempty"`
}

// Game is one live or concluded tic-tac-toe game. All fields behind mu
// are mutated only by the Manager while holding the game lock.
type Game struct {
	id       string
	player1  int64    // mark X, moves first
	opponent Opponent // mark O

	mu        sync.Mutex
	board     board.Board
	turn      board.Cell // mark holding the turn
	moveCount int
	status    Status
	winner    Participant // zero value until finished with a winner
	reason    Reason
	engine    *bot.Bot // nil for human-vs-human games

	createdAt  time.Time
	finishedAt time.Time
}

// participant returns the Participant playing the given mark.
func (g *Game) participant(mark board.Cell) Participant {
	if mark == board.MarkX {
		return Participant{UserID: g.player1}
	}
	if id, ok := g.opponent.UserID(); ok {
		return Participant{UserID: id}
	}
	return Participant{Bot: true}
}

// markOf resolves a human mover to their mark. ok is false when the
// user is not a participant of this game.
func (g *Game) markOf(userID int64) (board.Cell, bool) {
	if userID == g.player1 {
		return board.MarkX, true
	}
	if id, ok := g.opponent.UserID(); ok && id == userID {
		return board.MarkO, true
	}
	return board.Empty, false
}

// Snapshot is an immutable copy of a game's externally visible state.
type Snapshot struct {
	ID            string
	Player1       Participant
	Player2       Participant
	BotGame       bool
	BotDifficulty bot.Difficulty
	Board         board.Board
	Turn          Participant
	MoveCount     int
	Status        Status
	Winner        *Participant
	Reason        Reason
	CreatedAt     time.Time
}

// snapshotLocked builds a Snapshot; the caller holds g.mu.
func (g *Game) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        g.id,
		Player1:   Participant{UserID: g.player1},
		Player2:   g.participant(board.MarkO),
		BotGame:   g.opponent.IsBot(),
		Board:     g.board,
		Turn:      g.participant(g.turn),
		MoveCount: g.moveCount,
		Status:    g.status,
		Reason:    g.reason,
		CreatedAt: g.createdAt,
	}
	if d, ok := g.opponent.Difficulty(); ok {
		snap.BotDifficulty = d
	}
	if g.status == StatusFinished && g.reason != ReasonDraw {
		w := g.winner
		snap.Winner = &w
	}
	return snap
}

// MoveResult reports the outcome of a single applied move or forfeit.
type MoveResult struct {
	GameID      string
	Mover       Participant
	Mark        board.Cell
	Position    int // -1 for forfeits
	Board       board.Board
	MoveNumber  int
	Turn        *Participant // nil once the game is finished
	Finished    bool
	Reason      Reason
	Winner      *Participant
	WinningLine []int
}
