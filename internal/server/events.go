package server

import (
	"github.com/gridplay/tictac-server-go/internal/board"
	"github.com/gridplay/tictac-server-go/internal/game"
)

// Command is one inbound client message.
type Command struct {
	Type string      `json:"type"`
	Data commandData `json:"data"`
}

// commandData carries every command's parameters; unused fields stay at
// their zero value.
type commandData struct {
	Difficulty   string `json:"difficulty"`
	TargetUserID int64  `json:"target_user_id"`
	InvitationID string `json:"invitation_id"`
	GameID       string `json:"game_id"`
	Position     *int   `json:"position"`
}

// playerView is one side of a game as shown to clients. ID is null for
// the automated opponent.
type playerView struct {
	ID       *int64 `json:"id"`
	Username string `json:"username"`
	Symbol   string `json:"symbol"`
}

type gameStartedPayload struct {
	GameID        string     `json:"game_id"`
	Player1       playerView `json:"player1"`
	Player2       playerView `json:"player2"`
	Board         string     `json:"board"`
	CurrentTurn   string     `json:"current_turn"`
	IsBotGame     bool       `json:"is_bot_game,omitempty"`
	BotDifficulty string     `json:"bot_difficulty,omitempty"`
}

type movePayload struct {
	GameID      string `json:"game_id"`
	Position    int    `json:"position"`
	PlayerID    *int64 `json:"player_id"`
	Board       string `json:"board"`
	CurrentTurn string `json:"current_turn,omitempty"`
	GameOver    bool   `json:"game_over"`
	Result      string `json:"result,omitempty"`
	WinnerID    *int64 `json:"winner_id,omitempty"`
	WinningLine []int  `json:"winning_line,omitempty"`
}

type forfeitPayload struct {
	GameID      string `json:"game_id"`
	ForfeitedBy int64  `json:"forfeited_by"`
	WinnerID    *int64 `json:"winner_id"`
	Result      string `json:"result"`
}

type invitationReceivedPayload struct {
	InvitationID string `json:"invitation_id"`
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username"`
}

type invitationSentPayload struct {
	InvitationID string `json:"invitation_id"`
	ToUsername   string `json:"to_username"`
}

type invitationRejectedPayload struct {
	InvitationID string `json:"invitation_id"`
}

type onlineUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func errorEvent(message string) Event {
	return Event{Type: "error", Data: map[string]string{"message": message}}
}

// participantID converts a Participant to the wire form: a user ID or
// null for the bot.
func participantID(p game.Participant) *int64 {
	if p.Bot {
		return nil
	}
	id := p.UserID
	return &id
}

// moveEvent renders an applied move for both sides of the game.
func moveEvent(res game.MoveResult) Event {
	p := movePayload{
		GameID:   res.GameID,
		Position: res.Position,
		PlayerID: participantID(res.Mover),
		Board:    res.Board.String(),
		GameOver: res.Finished,
	}
	if res.Finished {
		p.Result = string(res.Reason)
		if res.Winner != nil {
			p.WinnerID = participantID(*res.Winner)
		}
		p.WinningLine = res.WinningLine
	} else {
		p.CurrentTurn = string(board.Opponent(res.Mark))
	}
	return Event{Type: "move_made", Data: p}
}

// forfeitEvent renders a forfeit for both sides of the game.
func forfeitEvent(res game.MoveResult, forfeitedBy int64) Event {
	p := forfeitPayload{
		GameID:      res.GameID,
		ForfeitedBy: forfeitedBy,
		Result:      string(res.Reason),
	}
	if res.Winner != nil {
		p.WinnerID = participantID(*res.Winner)
	}
	return Event{Type: "game_forfeited", Data: p}
}
