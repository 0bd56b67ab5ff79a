// Package stats turns terminal game outcomes into standing updates:
// win/loss/draw/abandon counters, win streaks and ranking points. It is
// invoked exactly once per finished human-vs-human game; standings are
// never touched mid-game.
package stats

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridplay/tictac-server-go/internal/game"
)

// Standing is one player's cumulative record and ranking score.
type Standing struct {
	UserID        int64
	TotalGames    int
	Wins          int
	Losses        int
	Draws         int
	Abandoned     int
	WinStreak     int
	BestWinStreak int
	RankingPoints int
}

// Store loads and saves standings. Missing players must be returned as
// a fresh Standing with the store's starting ranking points.
type Store interface {
	Standing(ctx context.Context, userID int64) (Standing, error)
	SaveStanding(ctx context.Context, st Standing) error
}

// Updater applies the rating policy to both participants of a finished
// game. It implements game.StandingsUpdater.
type Updater struct {
	store       Store
	winPoints   int
	lossPenalty int
	logger      *zap.Logger
}

// NewUpdater creates an Updater awarding winPoints per win and
// deducting lossPenalty per loss (floored at zero).
func NewUpdater(store Store, winPoints, lossPenalty int, logger *zap.Logger) *Updater {
	return &Updater{
		store:       store,
		winPoints:   winPoints,
		lossPenalty: lossPenalty,
		logger:      logger,
	}
}

// RecordOutcome updates both players' standings for one terminal game.
func (u *Updater) RecordOutcome(ctx context.Context, out game.Outcome) error {
	for _, userID := range []int64{out.Player1, out.Player2} {
		st, err := u.store.Standing(ctx, userID)
		if err != nil {
			return fmt.Errorf("load standing for user %d: %w", userID, err)
		}
		st.UserID = userID

		u.apply(&st, out.Reason, userID == out.WinnerID)

		if err := u.store.SaveStanding(ctx, st); err != nil {
			return fmt.Errorf("save standing for user %d: %w", userID, err)
		}
	}

	u.logger.Info("standings updated",
		zap.String("game_id", out.GameID),
		zap.Int64("player1", out.Player1),
		zap.Int64("player2", out.Player2),
		zap.Int64("winner", out.WinnerID),
		zap.String("reason", string(out.Reason)),
	)

	return nil
}

// apply mutates a single standing according to the outcome. Every
// terminal game counts toward total games exactly once. Abandonment is
// scored as a win for the non-forfeiting side but moves no ranking
// points.
func (u *Updater) apply(st *Standing, reason game.Reason, won bool) {
	st.TotalGames++

	switch reason {
	case game.ReasonDraw:
		st.Draws++
		st.WinStreak = 0
	case game.ReasonAbandoned:
		if won {
			st.Wins++
			st.WinStreak++
			if st.WinStreak > st.BestWinStreak {
				st.BestWinStreak = st.WinStreak
			}
		} else {
			st.Abandoned++
			st.WinStreak = 0
		}
	case game.ReasonWin:
		if won {
			st.Wins++
			st.WinStreak++
			if st.WinStreak > st.BestWinStreak {
				st.BestWinStreak = st.WinStreak
			}
			st.RankingPoints += u.winPoints
		} else {
			st.Losses++
			st.WinStreak = 0
			st.RankingPoints -= u.lossPenalty
			if st.RankingPoints < 0 {
				st.RankingPoints = 0
			}
		}
	}
}
