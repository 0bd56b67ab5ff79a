package game

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridplay/tictac-server-go/internal/board"
	"github.com/gridplay/tictac-server-go/internal/bot"
)

type fakeRecorder struct {
	mu       sync.Mutex
	games    []Snapshot
	moves    []MoveRecord
	finishes []FinishRecord
}

func (r *fakeRecorder) RecordGame(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, snap)
	return nil
}

func (r *fakeRecorder) RecordMove(_ context.Context, mv MoveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, mv)
	return nil
}

func (r *fakeRecorder) RecordFinish(_ context.Context, fin FinishRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, fin)
	return nil
}

type fakeStandings struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *fakeStandings) RecordOutcome(_ context.Context, out Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
	return nil
}

func newTestManager() (*Manager, *fakeRecorder, *fakeStandings) {
	rec := &fakeRecorder{}
	st := &fakeStandings{}
	return NewManager(rec, st, zap.NewNop()), rec, st
}

func TestCreateGame(t *testing.T) {
	t.Run("human vs human", func(t *testing.T) {
		m, rec, _ := newTestManager()

		snap, err := m.CreateGame(context.Background(), 1, HumanOpponent(2))
		require.NoError(t, err)

		assert.NotEmpty(t, snap.ID)
		assert.Equal(t, Participant{UserID: 1}, snap.Player1)
		assert.Equal(t, Participant{UserID: 2}, snap.Player2)
		assert.False(t, snap.BotGame)
		assert.Equal(t, StatusActive, snap.Status)
		assert.Equal(t, Participant{UserID: 1}, snap.Turn, "initiator moves first")
		assert.Equal(t, "---------", snap.Board.String())

		id, ok := m.ActiveGameID(1)
		require.True(t, ok)
		assert.Equal(t, snap.ID, id)
		id, ok = m.ActiveGameID(2)
		require.True(t, ok)
		assert.Equal(t, snap.ID, id)

		require.Len(t, rec.games, 1)
	})

	t.Run("bot game", func(t *testing.T) {
		m, _, _ := newTestManager()

		snap, err := m.CreateGame(context.Background(), 1, BotOpponent(bot.DifficultyHard))
		require.NoError(t, err)

		assert.True(t, snap.BotGame)
		assert.Equal(t, bot.DifficultyHard, snap.BotDifficulty)
		assert.Equal(t, Participant{Bot: true}, snap.Player2)

		_, ok := m.ActiveGameID(1)
		assert.True(t, ok)
	})

	t.Run("player already in a game", func(t *testing.T) {
		m, _, _ := newTestManager()

		_, err := m.CreateGame(context.Background(), 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.CreateGame(context.Background(), 1, HumanOpponent(3))
		assert.ErrorIs(t, err, ErrAlreadyInGame)

		_, err = m.CreateGame(context.Background(), 3, HumanOpponent(2))
		assert.ErrorIs(t, err, ErrAlreadyInGame)

		// The failed creates must not leave stray index entries.
		_, ok := m.ActiveGameID(3)
		assert.False(t, ok)
		assert.Equal(t, 1, m.ActiveGameCount())
	})
}

func TestApplyMoveValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown game", func(t *testing.T) {
		m, _, _ := newTestManager()
		_, err := m.ApplyMove(ctx, "missing", 1, 0)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("wrong turn", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.ApplyMove(ctx, snap.ID, 2, 0)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})

	t.Run("non-participant", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.ApplyMove(ctx, snap.ID, 99, 0)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})

	t.Run("illegal position", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.ApplyMove(ctx, snap.ID, 1, 9)
		assert.ErrorIs(t, err, board.ErrIllegalMove)

		// Occupied cell.
		_, err = m.ApplyMove(ctx, snap.ID, 1, 4)
		require.NoError(t, err)
		_, err = m.ApplyMove(ctx, snap.ID, 2, 4)
		assert.ErrorIs(t, err, board.ErrIllegalMove)
	})
}

func TestApplyMoveFlipsTurn(t *testing.T) {
	ctx := context.Background()
	m, rec, _ := newTestManager()

	snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	res, err := m.ApplyMove(ctx, snap.ID, 1, 4)
	require.NoError(t, err)

	assert.False(t, res.Finished)
	require.NotNil(t, res.Turn)
	assert.Equal(t, Participant{UserID: 2}, *res.Turn)
	assert.Equal(t, 1, res.MoveNumber)
	assert.Equal(t, board.MarkX, res.Mark)
	assert.Equal(t, "----X----", res.Board.String())

	require.Len(t, rec.moves, 1)
	assert.Equal(t, 4, rec.moves[0].Position)
	assert.Equal(t, "----X----", rec.moves[0].BoardAfter)
}

func TestWinFlow(t *testing.T) {
	ctx := context.Background()
	m, rec, st := newTestManager()

	snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	// X takes the top row: 0,1,2; O answers at 3,4.
	moves := []struct {
		user int64
		pos  int
	}{
		{1, 0}, {2, 3}, {1, 1}, {2, 4},
	}
	for _, mv := range moves {
		res, err := m.ApplyMove(ctx, snap.ID, mv.user, mv.pos)
		require.NoError(t, err)
		require.False(t, res.Finished)
	}

	res, err := m.ApplyMove(ctx, snap.ID, 1, 2)
	require.NoError(t, err)

	assert.True(t, res.Finished)
	assert.Equal(t, ReasonWin, res.Reason)
	require.NotNil(t, res.Winner)
	assert.Equal(t, Participant{UserID: 1}, *res.Winner)
	assert.Equal(t, []int{0, 1, 2}, res.WinningLine)
	assert.Nil(t, res.Turn)

	// Terminal games are evicted and their standings updated once.
	_, err = m.Snapshot(snap.ID)
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, ok := m.ActiveGameID(1)
	assert.False(t, ok)
	_, ok = m.ActiveGameID(2)
	assert.False(t, ok)

	require.Len(t, st.outcomes, 1)
	assert.Equal(t, Outcome{
		GameID:   snap.ID,
		Player1:  1,
		Player2:  2,
		WinnerID: 1,
		Reason:   ReasonWin,
	}, st.outcomes[0])

	require.Len(t, rec.finishes, 1)
	assert.Equal(t, ReasonWin, rec.finishes[0].Reason)
	assert.Len(t, rec.moves, 5)

	// No transition exists out of finished.
	_, err = m.ApplyMove(ctx, snap.ID, 2, 5)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestDrawFlow(t *testing.T) {
	ctx := context.Background()
	m, _, st := newTestManager()

	snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	// Full board with no triple: X at 0,2,3,7,8 / O at 1,4,5,6.
	moves := []int{0, 1, 2, 4, 3, 5, 7, 6, 8}
	var last MoveResult
	for i, pos := range moves {
		user := int64(1)
		if i%2 == 1 {
			user = 2
		}
		last, err = m.ApplyMove(ctx, snap.ID, user, pos)
		require.NoError(t, err)
	}

	assert.True(t, last.Finished)
	assert.Equal(t, ReasonDraw, last.Reason)
	assert.Nil(t, last.Winner)
	assert.Nil(t, last.WinningLine)

	require.Len(t, st.outcomes, 1)
	assert.Equal(t, int64(0), st.outcomes[0].WinnerID)
	assert.Equal(t, ReasonDraw, st.outcomes[0].Reason)
}

func TestForfeit(t *testing.T) {
	ctx := context.Background()

	t.Run("zero moves made", func(t *testing.T) {
		m, rec, st := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		res, err := m.Forfeit(ctx, snap.ID, 1)
		require.NoError(t, err)

		assert.True(t, res.Finished)
		assert.Equal(t, ReasonAbandoned, res.Reason)
		require.NotNil(t, res.Winner)
		assert.Equal(t, Participant{UserID: 2}, *res.Winner)

		_, err = m.Snapshot(snap.ID)
		assert.ErrorIs(t, err, ErrGameNotFound)

		require.Len(t, st.outcomes, 1)
		assert.Equal(t, int64(2), st.outcomes[0].WinnerID)
		assert.Equal(t, ReasonAbandoned, st.outcomes[0].Reason)

		require.Len(t, rec.finishes, 1)
		assert.Empty(t, rec.moves, "a forfeit is not a move")
	})

	t.Run("out of turn", func(t *testing.T) {
		// Forfeiting works regardless of whose turn it is.
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		res, err := m.Forfeit(ctx, snap.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, Participant{UserID: 1}, *res.Winner)
	})

	t.Run("unknown game", func(t *testing.T) {
		m, _, _ := newTestManager()
		_, err := m.Forfeit(ctx, "missing", 1)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("non-participant", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.Forfeit(ctx, snap.ID, 99)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})
}

func TestBotGame(t *testing.T) {
	ctx := context.Background()

	t.Run("bot replies through the validated path", func(t *testing.T) {
		m, rec, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, BotOpponent(bot.DifficultyHard))
		require.NoError(t, err)

		res, err := m.ApplyMove(ctx, snap.ID, 1, 0)
		require.NoError(t, err)
		require.NotNil(t, res.Turn)
		assert.Equal(t, Participant{Bot: true}, *res.Turn)

		botRes, err := m.TriggerBotMove(ctx, snap.ID)
		require.NoError(t, err)

		assert.Equal(t, Participant{Bot: true}, botRes.Mover)
		assert.Equal(t, board.MarkO, botRes.Mark)
		assert.Equal(t, 2, botRes.MoveNumber)
		require.NotNil(t, botRes.Turn)
		assert.Equal(t, Participant{UserID: 1}, *botRes.Turn)

		require.Len(t, rec.moves, 2)
		assert.True(t, rec.moves[1].Mover.Bot)
	})

	t.Run("trigger out of turn", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, BotOpponent(bot.DifficultyEasy))
		require.NoError(t, err)

		_, err = m.TriggerBotMove(ctx, snap.ID)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})

	t.Run("trigger on a human game", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
		require.NoError(t, err)

		_, err = m.TriggerBotMove(ctx, snap.ID)
		assert.ErrorIs(t, err, ErrNotYourTurn)
	})

	t.Run("stale trigger after forfeit is a no-op", func(t *testing.T) {
		m, _, _ := newTestManager()
		snap, err := m.CreateGame(ctx, 1, BotOpponent(bot.DifficultyEasy))
		require.NoError(t, err)

		_, err = m.ApplyMove(ctx, snap.ID, 1, 0)
		require.NoError(t, err)

		_, err = m.Forfeit(ctx, snap.ID, 1)
		require.NoError(t, err)

		_, err = m.TriggerBotMove(ctx, snap.ID)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})

	t.Run("bot games never touch standings", func(t *testing.T) {
		m, rec, st := newTestManager()
		snap, err := m.CreateGame(ctx, 1, BotOpponent(bot.DifficultyHard))
		require.NoError(t, err)

		// Drive the game to a terminal state: the human plays the
		// lowest legal cell, the bot answers optimally.
		for {
			cur, err := m.Snapshot(snap.ID)
			if err == ErrGameNotFound {
				break
			}
			require.NoError(t, err)

			if cur.Turn.Bot {
				_, err = m.TriggerBotMove(ctx, snap.ID)
			} else {
				_, err = m.ApplyMove(ctx, snap.ID, 1, cur.Board.Available()[0])
			}
			require.NoError(t, err)
		}

		assert.Empty(t, st.outcomes)
		require.Len(t, rec.finishes, 1)
	})
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	created, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	snap, err := m.Snapshot(created.ID)
	require.NoError(t, err)

	snap.Board[0] = board.MarkX
	snap.Status = StatusFinished

	fresh, err := m.Snapshot(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "---------", fresh.Board.String())
	assert.Equal(t, StatusActive, fresh.Status)
}

func TestConcurrentMovesOnSameGame(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	// Both players race for the same cell. Exactly one move lands; the
	// loser observes a consistent post-state: wrong turn or an occupied
	// cell.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, user int64) {
			defer wg.Done()
			_, errs[i] = m.ApplyMove(ctx, snap.ID, user, 0)
		}(i, user)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t,
				err == ErrNotYourTurn || err == board.ErrIllegalMove,
				"unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	cur, err := m.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.MoveCount, "exactly one new mark on the board")
	assert.Equal(t, 1, cur.Board.MoveCount())
}

func TestIndependentGamesDoNotBlock(t *testing.T) {
	ctx := context.Background()
	m, _, st := newTestManager()

	const games = 8
	var wg sync.WaitGroup
	for i := 0; i < games; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			p1 := int64(100 + 2*i)
			p2 := int64(101 + 2*i)
			snap, err := m.CreateGame(ctx, p1, HumanOpponent(p2))
			assert.NoError(t, err)

			// X wins with the top row.
			seq := []struct {
				user int64
				pos  int
			}{
				{p1, 0}, {p2, 3}, {p1, 1}, {p2, 4}, {p1, 2},
			}
			for _, mv := range seq {
				_, err := m.ApplyMove(ctx, snap.ID, mv.user, mv.pos)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, m.ActiveGameCount())

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Len(t, st.outcomes, games)
}

func TestActiveGameIDLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	_, ok := m.ActiveGameID(1)
	assert.False(t, ok)

	snap, err := m.CreateGame(ctx, 1, BotOpponent(bot.DifficultyEasy))
	require.NoError(t, err)

	id, ok := m.ActiveGameID(1)
	require.True(t, ok)
	assert.Equal(t, snap.ID, id)

	_, err = m.Forfeit(ctx, snap.ID, 1)
	require.NoError(t, err)

	_, ok = m.ActiveGameID(1)
	assert.False(t, ok)

	// Finished and evicted: the player can start a new game.
	_, err = m.CreateGame(ctx, 1, HumanOpponent(2))
	assert.NoError(t, err)
}

func TestMoveRecordNumbersAreSequential(t *testing.T) {
	ctx := context.Background()
	m, rec, _ := newTestManager()

	snap, err := m.CreateGame(ctx, 1, HumanOpponent(2))
	require.NoError(t, err)

	seq := []struct {
		user int64
		pos  int
	}{
		{1, 0}, {2, 3}, {1, 1}, {2, 4}, {1, 2},
	}
	for _, mv := range seq {
		_, err := m.ApplyMove(ctx, snap.ID, mv.user, mv.pos)
		require.NoError(t, err)
	}

	require.Len(t, rec.moves, 5)
	for i, mv := range rec.moves {
		assert.Equal(t, i+1, mv.MoveNumber)
		assert.Equal(t, snap.ID, mv.GameID)
	}
	assert.Equal(t, "XXXOO----", rec.moves[4].BoardAfter)
}
