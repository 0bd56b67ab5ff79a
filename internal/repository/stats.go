package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gridplay/tictac-server-go/internal/stats"
)

// startingRankingPoints seeds new players' ranking scores.
const startingRankingPoints = 1000

// StatsRepository stores per-player standings. Implements stats.Store.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Standing(ctx context.Context, userID int64) (stats.Standing, error) {
	var st stats.Standing
	err := r.db.pool.QueryRow(ctx,
		`SELECT user_id, total_games, wins, losses, draws, abandoned,
		        win_streak, best_win_streak, ranking_points
		 FROM standings WHERE user_id = $1`,
		userID,
	).Scan(&st.UserID, &st.TotalGames, &st.Wins, &st.Losses, &st.Draws,
		&st.Abandoned, &st.WinStreak, &st.BestWinStreak, &st.RankingPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats.Standing{UserID: userID, RankingPoints: startingRankingPoints}, nil
	}
	if err != nil {
		return stats.Standing{}, fmt.Errorf("load standing: %w", err)
	}
	return st, nil
}

func (r *StatsRepository) SaveStanding(ctx context.Context, st stats.Standing) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO standings (user_id, total_games, wins, losses, draws, abandoned,
		                        win_streak, best_win_streak, ranking_points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id) DO UPDATE SET
		   total_games = EXCLUDED.total_games,
		   wins = EXCLUDED.wins,
		   losses = EXCLUDED.losses,
		   draws = EXCLUDED.draws,
		   abandoned = EXCLUDED.abandoned,
		   win_streak = EXCLUDED.win_streak,
		   best_win_streak = EXCLUDED.best_win_streak,
		   ranking_points = EXCLUDED.ranking_points`,
		st.UserID, st.TotalGames, st.Wins, st.Losses, st.Draws,
		st.Abandoned, st.WinStreak, st.BestWinStreak, st.RankingPoints,
	)
	if err != nil {
		return fmt.Errorf("save standing: %w", err)
	}
	return nil
}

// Leaderboard returns the top standings by ranking points.
func (r *StatsRepository) Leaderboard(ctx context.Context, limit int) ([]stats.Standing, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT user_id, total_games, wins, losses, draws, abandoned,
		        win_streak, best_win_streak, ranking_points
		 FROM standings ORDER BY ranking_points DESC, wins DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []stats.Standing
	for rows.Next() {
		var st stats.Standing
		if err := rows.Scan(&st.UserID, &st.TotalGames, &st.Wins, &st.Losses,
			&st.Draws, &st.Abandoned, &st.WinStreak, &st.BestWinStreak,
			&st.RankingPoints); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
