package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridplay/tictac-server-go/internal/board"
	"github.com/gridplay/tictac-server-go/internal/bot"
)

// MoveRecord is the persistence collaborator's view of one applied move.
type MoveRecord struct {
	GameID     string
	Mover      Participant
	Position   int
	Mark       board.Cell
	BoardAfter string
	MoveNumber int
	PlayedAt   time.Time
}

// FinishRecord is the persistence collaborator's view of a terminal game.
type FinishRecord struct {
	GameID     string
	Reason     Reason
	Winner     *Participant
	FinalBoard string
	FinishedAt time.Time
}

// Recorder is the persistence collaborator. Calls are best-effort: the
// Manager logs failures and never rolls back in-memory state, which is
// authoritative for live play. Implementations must not call back into
// the Manager.
type Recorder interface {
	RecordGame(ctx context.Context, snap Snapshot) error
	RecordMove(ctx context.Context, mv MoveRecord) error
	RecordFinish(ctx context.Context, fin FinishRecord) error
}

// Outcome describes a finished human-vs-human game for the standings
// updater. WinnerID is zero for draws.
type Outcome struct {
	GameID   string
	Player1  int64
	Player2  int64
	WinnerID int64
	Reason   Reason
}

// StandingsUpdater consumes terminal outcomes. Invoked exactly once per
// finished game between two humans; bot games never reach it.
type StandingsUpdater interface {
	RecordOutcome(ctx context.Context, out Outcome) error
}

// Manager owns every live game and the user-to-game index. Each game
// carries its own lock so moves on different games never contend; the
// manager lock only guards the maps. Lock order: a game lock may be
// held while taking the manager lock (eviction), never the other way
// around.
type Manager struct {
	mu       sync.RWMutex
	games    map[string]*Game
	userGame map[int64]string

	recorder  Recorder
	standings StandingsUpdater
	logger    *zap.Logger
}

// NewManager creates a game manager. recorder and standings may be nil
// when persistence is not wired (tests).
func NewManager(recorder Recorder, standings StandingsUpdater, logger *zap.Logger) *Manager {
	return &Manager{
		games:     make(map[string]*Game),
		userGame:  make(map[int64]string),
		recorder:  recorder,
		standings: standings,
		logger:    logger,
	}
}

// CreateGame starts a new game between player1 (mark X, first to move)
// and the given opponent. Both human participants are registered in the
// user index atomically with game creation; ErrAlreadyInGame is
// re-validated under the registry lock even if the caller checked first.
func (m *Manager) CreateGame(ctx context.Context, player1 int64, opponent Opponent) (Snapshot, error) {
	g := &Game{
		id:        uuid.NewString(),
		player1:   player1,
		opponent:  opponent,
		board:     board.New(),
		turn:      board.MarkX,
		status:    StatusActive,
		createdAt: time.Now(),
	}
	if d, ok := opponent.Difficulty(); ok {
		g.engine = bot.New(d, board.MarkO)
	}

	m.mu.Lock()
	if _, busy := m.userGame[player1]; busy {
		m.mu.Unlock()
		return Snapshot{}, ErrAlreadyInGame
	}
	if id, ok := opponent.UserID(); ok {
		if _, busy := m.userGame[id]; busy {
			m.mu.Unlock()
			return Snapshot{}, ErrAlreadyInGame
		}
		m.userGame[id] = g.id
	}
	m.userGame[player1] = g.id
	m.games[g.id] = g
	m.mu.Unlock()

	g.mu.Lock()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	m.logger.Info("game created",
		zap.String("game_id", g.id),
		zap.Int64("player1", player1),
		zap.Bool("bot_game", opponent.IsBot()),
		zap.String("difficulty", string(snap.BotDifficulty)),
	)

	if m.recorder != nil {
		if err := m.recorder.RecordGame(ctx, snap); err != nil {
			m.logger.Error("failed to persist new game",
				zap.String("game_id", g.id),
				zap.Error(err),
			)
		}
	}

	return snap, nil
}

// ApplyMove validates and applies a move by a human participant. On a
// terminal move the standings updater runs synchronously and the game is
// evicted from the registry before the call returns.
func (m *Manager) ApplyMove(ctx context.Context, gameID string, userID int64, position int) (MoveResult, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return MoveResult{}, err
	}

	g.mu.Lock()
	mark, ok := g.markOf(userID)
	if !ok {
		g.mu.Unlock()
		return MoveResult{}, ErrNotYourTurn
	}
	res, out, err := m.applyLocked(g, mark, position)
	g.mu.Unlock()
	if err != nil {
		return MoveResult{}, err
	}

	m.afterMove(ctx, g, res, out)
	return res, nil
}

// TriggerBotMove computes and applies the automated opponent's reply.
// The move is validated through the same path as a human move, so a
// trigger that lost a race with a forfeit or was issued out of turn
// fails with ErrNotYourTurn or ErrGameFinished and changes nothing.
func (m *Manager) TriggerBotMove(ctx context.Context, gameID string) (MoveResult, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return MoveResult{}, err
	}
	if g.engine == nil {
		return MoveResult{}, ErrNotYourTurn
	}

	// Search on a copy of the board outside the game lock; the result
	// is re-validated when applied.
	g.mu.Lock()
	if g.status != StatusActive {
		g.mu.Unlock()
		return MoveResult{}, ErrGameFinished
	}
	if g.turn != board.MarkO {
		g.mu.Unlock()
		return MoveResult{}, ErrNotYourTurn
	}
	current := g.board
	g.mu.Unlock()

	position, err := g.engine.ChooseMove(current)
	if err != nil {
		return MoveResult{}, err
	}

	g.mu.Lock()
	res, out, err := m.applyLocked(g, board.MarkO, position)
	g.mu.Unlock()
	if err != nil {
		return MoveResult{}, err
	}

	m.afterMove(ctx, g, res, out)
	return res, nil
}

// applyLocked performs the active→active / active→finished transition.
// The caller holds g.mu. A non-nil Outcome is returned when a
// human-vs-human game finished.
func (m *Manager) applyLocked(g *Game, mark board.Cell, position int) (MoveResult, *Outcome, error) {
	if g.status != StatusActive {
		return MoveResult{}, nil, ErrGameFinished
	}
	if g.turn != mark {
		return MoveResult{}, nil, ErrNotYourTurn
	}

	next, err := g.board.Apply(position, mark)
	if err != nil {
		return MoveResult{}, nil, err
	}

	g.board = next
	g.moveCount++

	res := MoveResult{
		GameID:     g.id,
		Mover:      g.participant(mark),
		Mark:       mark,
		Position:   position,
		Board:      next,
		MoveNumber: g.moveCount,
	}

	var out *Outcome
	switch next.Result() {
	case board.ResultWin:
		winner := g.participant(mark)
		g.finishLocked(ReasonWin, winner)
		res.Finished = true
		res.Reason = ReasonWin
		res.Winner = &winner
		res.WinningLine = next.WinningLine()
		out = g.outcomeLocked()
	case board.ResultDraw:
		g.finishLocked(ReasonDraw, Participant{})
		res.Finished = true
		res.Reason = ReasonDraw
		out = g.outcomeLocked()
	default:
		g.turn = board.Opponent(mark)
		turn := g.participant(g.turn)
		res.Turn = &turn
	}

	return res, out, nil
}

// Forfeit finishes an active game with the opponent of the forfeiting
// player as winner, regardless of whose turn it is.
func (m *Manager) Forfeit(ctx context.Context, gameID string, userID int64) (MoveResult, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return MoveResult{}, err
	}

	g.mu.Lock()
	mark, ok := g.markOf(userID)
	if !ok {
		g.mu.Unlock()
		return MoveResult{}, ErrNotYourTurn
	}
	if g.status != StatusActive {
		g.mu.Unlock()
		return MoveResult{}, ErrGameFinished
	}

	winner := g.participant(board.Opponent(mark))
	g.finishLocked(ReasonAbandoned, winner)

	res := MoveResult{
		GameID:     g.id,
		Mover:      g.participant(mark),
		Position:   -1,
		Board:      g.board,
		MoveNumber: g.moveCount,
		Finished:   true,
		Reason:     ReasonAbandoned,
		Winner:     &winner,
	}
	out := g.outcomeLocked()
	g.mu.Unlock()

	m.logger.Info("game forfeited",
		zap.String("game_id", g.id),
		zap.Int64("forfeited_by", userID),
	)

	m.afterMove(ctx, g, res, out)
	return res, nil
}

// finishLocked applies the single terminal transition. Caller holds g.mu.
func (g *Game) finishLocked(reason Reason, winner Participant) {
	g.status = StatusFinished
	g.reason = reason
	g.winner = winner
	g.finishedAt = time.Now()
}

// outcomeLocked builds the standings outcome for a finished game, or
// nil for bot games. Caller holds g.mu.
func (g *Game) outcomeLocked() *Outcome {
	p2, ok := g.opponent.UserID()
	if !ok {
		return nil
	}
	out := &Outcome{
		GameID:  g.id,
		Player1: g.player1,
		Player2: p2,
		Reason:  g.reason,
	}
	if !g.winner.Bot && g.winner.UserID != 0 {
		out.WinnerID = g.winner.UserID
	}
	return out
}

// afterMove runs the post-transition work that must not hold the game
// lock: move persistence, the standings updater, eviction and the
// finalize record.
func (m *Manager) afterMove(ctx context.Context, g *Game, res MoveResult, out *Outcome) {
	if m.recorder != nil && res.Position >= 0 {
		if err := m.recorder.RecordMove(ctx, MoveRecord{
			GameID:     g.id,
			Mover:      res.Mover,
			Position:   res.Position,
			Mark:       res.Mark,
			BoardAfter: res.Board.String(),
			MoveNumber: res.MoveNumber,
			PlayedAt:   time.Now(),
		}); err != nil {
			m.logger.Error("failed to persist move",
				zap.String("game_id", g.id),
				zap.Error(err),
			)
		}
	}

	if !res.Finished {
		return
	}

	if out != nil && m.standings != nil {
		if err := m.standings.RecordOutcome(ctx, *out); err != nil {
			m.logger.Error("failed to update standings",
				zap.String("game_id", g.id),
				zap.Error(err),
			)
		}
	}

	m.evict(g)

	if m.recorder != nil {
		if err := m.recorder.RecordFinish(ctx, FinishRecord{
			GameID:     g.id,
			Reason:     res.Reason,
			Winner:     res.Winner,
			FinalBoard: res.Board.String(),
			FinishedAt: time.Now(),
		}); err != nil {
			m.logger.Error("failed to persist game finish",
				zap.String("game_id", g.id),
				zap.Error(err),
			)
		}
	}

	m.logger.Info("game finished",
		zap.String("game_id", g.id),
		zap.String("reason", string(res.Reason)),
	)
}

// evict removes a finished game and its index entries in one registry
// critical section.
func (m *Manager) evict(g *Game) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.games, g.id)
	if m.userGame[g.player1] == g.id {
		delete(m.userGame, g.player1)
	}
	if id, ok := g.opponent.UserID(); ok && m.userGame[id] == g.id {
		delete(m.userGame, id)
	}
}

// lookup resolves a game ID to the live game.
func (m *Manager) lookup(gameID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Snapshot returns an immutable copy of a live game's state.
func (m *Manager) Snapshot(gameID string) (Snapshot, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return Snapshot{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked(), nil
}

// ActiveGameID returns the game the user currently occupies, if any.
func (m *Manager) ActiveGameID(userID int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.userGame[userID]
	return id, ok
}

// ActiveGameCount returns the number of live games.
func (m *Manager) ActiveGameCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
