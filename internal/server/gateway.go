// Package server is the websocket gateway: it authenticates
// connections against the session manager, translates the JSON
// command/event vocabulary into manager calls, fans events out to the
// participants and paces the automated opponent's replies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gridplay/tictac-server-go/internal/board"
	"github.com/gridplay/tictac-server-go/internal/bot"
	"github.com/gridplay/tictac-server-go/internal/config"
	"github.com/gridplay/tictac-server-go/internal/game"
	"github.com/gridplay/tictac-server-go/internal/invite"
	"github.com/gridplay/tictac-server-go/internal/repository"
	"github.com/gridplay/tictac-server-go/internal/session"
	"github.com/gridplay/tictac-server-go/internal/stats"
	"github.com/gridplay/tictac-server-go/internal/user"
)

// StandingsSource reads player standings for the stats and leaderboard
// endpoints.
type StandingsSource interface {
	Standing(ctx context.Context, userID int64) (stats.Standing, error)
	Leaderboard(ctx context.Context, limit int) ([]stats.Standing, error)
}

// HistorySource reads a player's finished games for the history
// endpoint.
type HistorySource interface {
	HistoryFor(ctx context.Context, userID int64, limit int) ([]repository.HistoryEntry, error)
}

// Gateway serves the HTTP auth endpoints and the websocket game
// protocol.
type Gateway struct {
	cfg      config.ServerConfig
	botDelay time.Duration

	hub       *Hub
	sessions  *session.Manager
	users     *user.Manager
	games     *game.Manager
	invites   *invite.Manager
	standings StandingsSource
	history   HistorySource
	logger    *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	// ctx is the server lifetime; background bot replies stop with it.
	ctx context.Context
}

// NewGateway wires the gateway. standings and history may be nil; the
// corresponding endpoints then report 503.
func NewGateway(
	cfg *config.Config,
	sessions *session.Manager,
	users *user.Manager,
	games *game.Manager,
	invites *invite.Manager,
	standings StandingsSource,
	history HistorySource,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		cfg:       cfg.Server,
		botDelay:  cfg.Game.BotMoveDelay,
		ctx:       context.Background(),
		hub:       NewHub(logger),
		sessions:  sessions,
		users:     users,
		games:     games,
		invites:   invites,
		standings: standings,
		history:   history,
		logger:    logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// checkOrigin allows everything when no origins are configured and
// exact matches otherwise.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Handler builds the route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", g.handleRegister)
	mux.HandleFunc("POST /api/login", g.handleLogin)
	mux.HandleFunc("POST /api/logout", g.handleLogout)
	mux.HandleFunc("GET /api/stats", g.handleStats)
	mux.HandleFunc("GET /api/leaderboard", g.handleLeaderboard)
	mux.HandleFunc("GET /api/history", g.handleHistory)
	mux.HandleFunc("GET /ws", g.handleWebsocket)
	return mux
}

// Run serves until the listener fails or Shutdown is called. ctx bounds
// the background work spawned for bot replies.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx
	g.httpSrv = &http.Server{
		Addr:              g.cfg.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("gateway listening", zap.String("address", g.cfg.Address))
	if err := g.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown disconnects all clients and stops the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.CloseAll()
	if g.httpSrv == nil {
		return nil
	}
	return g.httpSrv.Shutdown(ctx)
}

// ===== HTTP endpoints =====

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type authResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := g.users.Register(r.Context(), req.Username, req.Password, req.Email)
	if errors.Is(err, user.ErrUsernameTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := g.sessions.Create(u.ID)
	writeJSON(w, http.StatusCreated, authResponse{UserID: u.ID, Username: u.Username, Token: s.Token})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := g.users.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		g.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s := g.sessions.Create(u.ID)
	writeJSON(w, http.StatusOK, authResponse{UserID: u.ID, Username: u.Username, Token: s.Token})
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	g.sessions.Remove(token)
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	TotalGames    int     `json:"total_games"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	WinRate       float64 `json:"win_rate"`
	RankingPoints int     `json:"ranking_points"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	s, ok := g.authenticate(w, r)
	if !ok {
		return
	}
	if g.standings == nil {
		writeError(w, http.StatusServiceUnavailable, "standings unavailable")
		return
	}

	st, err := g.standings.Standing(r.Context(), s.UserID)
	if err != nil {
		g.logger.Error("failed to load standing", zap.Int64("user_id", s.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := statsResponse{
		TotalGames:    st.TotalGames,
		Wins:          st.Wins,
		Losses:        st.Losses,
		Draws:         st.Draws,
		RankingPoints: st.RankingPoints,
		CurrentStreak: st.WinStreak,
		BestStreak:    st.BestWinStreak,
	}
	if st.TotalGames > 0 {
		resp.WinRate = float64(st.Wins) / float64(st.TotalGames) * 100
	}
	writeJSON(w, http.StatusOK, resp)
}

type leaderboardEntry struct {
	UserID        int64 `json:"user_id"`
	TotalGames    int   `json:"total_games"`
	Wins          int   `json:"wins"`
	RankingPoints int   `json:"ranking_points"`
	BestStreak    int   `json:"best_streak"`
}

func (g *Gateway) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if g.standings == nil {
		writeError(w, http.StatusServiceUnavailable, "standings unavailable")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	rows, err := g.standings.Leaderboard(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to load leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]leaderboardEntry, 0, len(rows))
	for _, st := range rows {
		out = append(out, leaderboardEntry{
			UserID:        st.UserID,
			TotalGames:    st.TotalGames,
			Wins:          st.Wins,
			RankingPoints: st.RankingPoints,
			BestStreak:    st.BestWinStreak,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type historyEntryResponse struct {
	GameID     string `json:"game_id"`
	Opponent   string `json:"opponent"`
	Result     string `json:"result"`
	IsBotGame  bool   `json:"is_bot_game"`
	FinishedAt string `json:"finished_at"`
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := g.authenticate(w, r)
	if !ok {
		return
	}
	if g.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	entries, err := g.history.HistoryFor(r.Context(), s.UserID, limit)
	if err != nil {
		g.logger.Error("failed to load game history", zap.Int64("user_id", s.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			GameID:     e.GameID,
			Opponent:   e.Opponent,
			Result:     e.Result,
			IsBotGame:  e.BotGame,
			FinishedAt: e.FinishedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// authenticate resolves the request's session token.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return session.Session{}, false
	}
	s, ok := g.sessions.Get(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return session.Session{}, false
	}
	return s, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ===== Websocket =====

func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	s, ok := g.authenticate(w, r)
	if !ok {
		return
	}
	u, err := g.users.ByID(r.Context(), s.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(g, conn, u.ID, u.Username)
	g.hub.register(c)
	go c.writePump()

	g.hub.SendToUser(c.userID, Event{Type: "authenticated", Data: map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
	}})
	g.replayPending(c)
	g.broadcastOnline()

	c.readPump()
}

// replayPending re-delivers pending invitations so a reconnecting
// client does not miss challenges sent while it was away.
func (g *Gateway) replayPending(c *client) {
	for _, inv := range g.invites.PendingFor(c.userID) {
		from, err := g.users.ByID(g.ctx, inv.FromUserID)
		if err != nil {
			continue
		}
		g.hub.SendToUser(c.userID, Event{Type: "invitation_received", Data: invitationReceivedPayload{
			InvitationID: inv.ID,
			FromUserID:   inv.FromUserID,
			FromUsername: from.Username,
		}})
	}
}

func (g *Gateway) handleDisconnect(c *client) {
	g.broadcastOnline()
}

func (g *Gateway) broadcastOnline() {
	g.hub.Broadcast(Event{Type: "online_users", Data: map[string]any{
		"users": g.hub.Online(),
	}})
}

// dispatch routes one inbound frame to its command handler.
func (g *Gateway) dispatch(c *client, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		g.hub.SendToUser(c.userID, errorEvent("invalid message"))
		return
	}

	switch cmd.Type {
	case "play_bot":
		g.handlePlayBot(c, cmd.Data)
	case "invite":
		g.handleInvite(c, cmd.Data)
	case "accept_invitation":
		g.handleAcceptInvitation(c, cmd.Data)
	case "reject_invitation":
		g.handleRejectInvitation(c, cmd.Data)
	case "make_move":
		g.handleMakeMove(c, cmd.Data)
	case "forfeit":
		g.handleForfeit(c, cmd.Data)
	default:
		g.hub.SendToUser(c.userID, errorEvent("unknown command"))
	}
}

func (g *Gateway) handlePlayBot(c *client, data commandData) {
	difficulty := bot.DifficultyMedium
	if data.Difficulty != "" {
		d, err := bot.ParseDifficulty(data.Difficulty)
		if err != nil {
			g.hub.SendToUser(c.userID, errorEvent("unknown difficulty"))
			return
		}
		difficulty = d
	}

	snap, err := g.games.CreateGame(g.ctx, c.userID, game.BotOpponent(difficulty))
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	g.hub.SendToUser(c.userID, Event{Type: "game_started", Data: gameStartedPayload{
		GameID:        snap.ID,
		Player1:       playerView{ID: participantID(snap.Player1), Username: c.username, Symbol: string(board.MarkX)},
		Player2:       playerView{Username: fmt.Sprintf("Bot (%s)", difficulty), Symbol: string(board.MarkO)},
		Board:         snap.Board.String(),
		CurrentTurn:   string(board.MarkX),
		IsBotGame:     true,
		BotDifficulty: string(difficulty),
	}})
}

func (g *Gateway) handleInvite(c *client, data commandData) {
	target := data.TargetUserID
	switch {
	case target == 0:
		g.hub.SendToUser(c.userID, errorEvent("target user ID required"))
		return
	case target == c.userID:
		g.hub.SendToUser(c.userID, errorEvent("cannot invite yourself"))
		return
	case !g.hub.IsOnline(target):
		g.hub.SendToUser(c.userID, errorEvent("user is offline"))
		return
	}
	if _, busy := g.games.ActiveGameID(target); busy {
		g.hub.SendToUser(c.userID, errorEvent("user is already in a game"))
		return
	}

	targetUser, err := g.users.ByID(g.ctx, target)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent("user not found"))
		return
	}

	inv := g.invites.Create(c.userID, target)

	g.hub.SendToUser(target, Event{Type: "invitation_received", Data: invitationReceivedPayload{
		InvitationID: inv.ID,
		FromUserID:   c.userID,
		FromUsername: c.username,
	}})
	g.hub.SendToUser(c.userID, Event{Type: "invitation_sent", Data: invitationSentPayload{
		InvitationID: inv.ID,
		ToUsername:   targetUser.Username,
	}})
}

func (g *Gateway) handleAcceptInvitation(c *client, data commandData) {
	inv, err := g.invites.Accept(data.InvitationID, c.userID)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	snap, err := g.games.CreateGame(g.ctx, inv.FromUserID, game.HumanOpponent(inv.ToUserID))
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}
	if err := g.invites.AttachGame(inv.ID, snap.ID); err != nil {
		g.logger.Warn("failed to bind invitation to game",
			zap.String("invitation_id", inv.ID),
			zap.String("game_id", snap.ID),
			zap.Error(err),
		)
	}

	p1, err1 := g.users.ByID(g.ctx, inv.FromUserID)
	p2, err2 := g.users.ByID(g.ctx, inv.ToUserID)
	if err1 != nil || err2 != nil {
		g.logger.Error("failed to load game participants", zap.String("game_id", snap.ID))
		return
	}

	started := Event{Type: "game_started", Data: gameStartedPayload{
		GameID:      snap.ID,
		Player1:     playerView{ID: participantID(snap.Player1), Username: p1.Username, Symbol: string(board.MarkX)},
		Player2:     playerView{ID: participantID(snap.Player2), Username: p2.Username, Symbol: string(board.MarkO)},
		Board:       snap.Board.String(),
		CurrentTurn: string(board.MarkX),
	}}
	g.hub.SendToUser(inv.FromUserID, started)
	g.hub.SendToUser(inv.ToUserID, started)
}

func (g *Gateway) handleRejectInvitation(c *client, data commandData) {
	inv, err := g.invites.Reject(data.InvitationID, c.userID)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	g.hub.SendToUser(inv.FromUserID, Event{Type: "invitation_rejected", Data: invitationRejectedPayload{
		InvitationID: inv.ID,
	}})
}

func (g *Gateway) handleMakeMove(c *client, data commandData) {
	if data.Position == nil || *data.Position < 0 || *data.Position > 8 {
		g.hub.SendToUser(c.userID, errorEvent("position must be between 0 and 8"))
		return
	}

	// The participant list must be captured before the move: a terminal
	// move evicts the game.
	snap, err := g.games.Snapshot(data.GameID)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	res, err := g.games.ApplyMove(g.ctx, data.GameID, c.userID, *data.Position)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	g.hub.SendToUsers(recipients(snap), moveEvent(res))

	if snap.BotGame && !res.Finished {
		g.scheduleBotReply(res.GameID, c.userID)
	}
}

func (g *Gateway) handleForfeit(c *client, data commandData) {
	snap, err := g.games.Snapshot(data.GameID)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	res, err := g.games.Forfeit(g.ctx, data.GameID, c.userID)
	if err != nil {
		g.hub.SendToUser(c.userID, errorEvent(clientMessage(err)))
		return
	}

	g.hub.SendToUsers(recipients(snap), forfeitEvent(res, c.userID))
}

// scheduleBotReply triggers the automated reply after the presentation
// delay. Triggers that lose a race with a forfeit or another terminal
// transition are dropped silently.
func (g *Gateway) scheduleBotReply(gameID string, humanID int64) {
	go func() {
		timer := time.NewTimer(g.botDelay)
		defer timer.Stop()
		select {
		case <-g.ctx.Done():
			return
		case <-timer.C:
		}

		res, err := g.games.TriggerBotMove(g.ctx, gameID)
		if err != nil {
			switch {
			case errors.Is(err, game.ErrGameNotFound),
				errors.Is(err, game.ErrNotYourTurn),
				errors.Is(err, game.ErrGameFinished):
				g.logger.Debug("dropped stale bot trigger",
					zap.String("game_id", gameID),
					zap.Error(err),
				)
			default:
				g.logger.Error("bot move failed",
					zap.String("game_id", gameID),
					zap.Error(err),
				)
			}
			return
		}

		g.hub.SendToUser(humanID, moveEvent(res))
	}()
}

// recipients lists the human participants of a game.
func recipients(snap game.Snapshot) []int64 {
	ids := []int64{snap.Player1.UserID}
	if !snap.Player2.Bot {
		ids = append(ids, snap.Player2.UserID)
	}
	return ids
}

// clientMessage maps manager errors to the messages clients see.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return "game not found"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not your turn"
	case errors.Is(err, game.ErrGameFinished):
		return "game already finished"
	case errors.Is(err, game.ErrAlreadyInGame):
		return "already in a game"
	case errors.Is(err, board.ErrIllegalMove):
		return "invalid move"
	case errors.Is(err, invite.ErrInvitationNotFound),
		errors.Is(err, invite.ErrNotInvitee):
		return "invitation not found"
	case errors.Is(err, invite.ErrAlreadyResolved):
		return "invitation already responded"
	default:
		return "internal error"
	}
}
