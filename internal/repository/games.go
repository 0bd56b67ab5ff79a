package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gridplay/tictac-server-go/internal/game"
)

// GameRepository records games and moves as they happen. Implements
// game.Recorder; the game manager treats failures as best-effort and
// never rolls back in-memory state.
type GameRepository struct {
	db *DB
}

// NewGameRepository creates a game repository.
func NewGameRepository(db *DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) RecordGame(ctx context.Context, snap game.Snapshot) error {
	var player2 *int64
	if !snap.Player2.Bot {
		player2 = &snap.Player2.UserID
	}
	var difficulty *string
	if snap.BotGame {
		d := string(snap.BotDifficulty)
		difficulty = &d
	}

	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO games (id, player1_id, player2_id, bot_difficulty, status, board, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ID, snap.Player1.UserID, player2, difficulty,
		string(snap.Status), snap.Board.String(), snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record game: %w", err)
	}
	return nil
}

func (r *GameRepository) RecordMove(ctx context.Context, mv game.MoveRecord) error {
	var playerID *int64
	if !mv.Mover.Bot {
		playerID = &mv.Mover.UserID
	}

	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO moves (game_id, player_id, position, mark, board_after, move_number, played_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		mv.GameID, playerID, mv.Position, string(mv.Mark),
		mv.BoardAfter, mv.MoveNumber, mv.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("record move: %w", err)
	}
	return nil
}

func (r *GameRepository) RecordFinish(ctx context.Context, fin game.FinishRecord) error {
	var winnerID *int64
	botWon := false
	if fin.Winner != nil {
		if fin.Winner.Bot {
			botWon = true
		} else {
			winnerID = &fin.Winner.UserID
		}
	}

	_, err := r.db.pool.Exec(ctx,
		`UPDATE games
		 SET status = $2, board = $3, winner_id = $4, bot_won = $5, reason = $6, finished_at = $7
		 WHERE id = $1`,
		fin.GameID, string(game.StatusFinished), fin.FinalBoard,
		winnerID, botWon, string(fin.Reason), fin.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record finish: %w", err)
	}
	return nil
}

// HistoryEntry is one finished game from a player's point of view.
type HistoryEntry struct {
	GameID     string
	Opponent   string
	Result     string // win, loss or draw
	BotGame    bool
	FinishedAt time.Time
}

// HistoryFor returns the player's most recent finished games, newest
// first.
func (r *GameRepository) HistoryFor(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT g.id, g.player1_id,
		        COALESCE(u1.username, ''), COALESCE(u2.username, ''),
		        g.winner_id, g.bot_won, g.bot_difficulty, g.finished_at
		 FROM games g
		 LEFT JOIN users u1 ON u1.id = g.player1_id
		 LEFT JOIN users u2 ON u2.id = g.player2_id
		 WHERE g.status = $1 AND (g.player1_id = $2 OR g.player2_id = $2)
		 ORDER BY g.finished_at DESC
		 LIMIT $3`,
		string(game.StatusFinished), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			entry      HistoryEntry
			player1    int64
			name1      string
			name2      string
			winnerID   *int64
			botWon     bool
			difficulty *string
			finishedAt *time.Time
		)
		if err := rows.Scan(&entry.GameID, &player1, &name1, &name2,
			&winnerID, &botWon, &difficulty, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		entry.BotGame = difficulty != nil
		switch {
		case player1 != userID:
			entry.Opponent = name1
		case entry.BotGame:
			entry.Opponent = fmt.Sprintf("Bot (%s)", *difficulty)
		default:
			entry.Opponent = name2
		}

		switch {
		case winnerID != nil && *winnerID == userID:
			entry.Result = "win"
		case winnerID == nil && !botWon:
			entry.Result = "draw"
		default:
			entry.Result = "loss"
		}

		if finishedAt != nil {
			entry.FinishedAt = *finishedAt
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
