// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/throwdown-gg/throwdown/internal/cache"
	"github.com/throwdown-gg/throwdown/internal/database"
	"github.com/throwdown-gg/throwdown/internal/game"
	"github.com/throwdown-gg/throwdown/internal/middleware"
	"github.com/throwdown-gg/throwdown/internal/presence"
	"github.com/throwdown-gg/throwdown/internal/ws"
)

// maxFrameBytes caps inbound frame size. An oversized frame fails the
// read and drops the connection (the library closes with
// StatusMessageTooBig before the handler ever sees the frame) rather
// than answering with a typed error payload.
const maxFrameBytes = 4096

// gameMessage is the envelope for inbound messages on the game channel.
type gameMessage struct {
	Type       string `json:"type"`
	OpponentID string `json:"opponentId,omitempty"`
	MatchID    string `json:"matchId,omitempty"`
	Move       string `json:"move,omitempty"`
}

// GameWSHandler upgrades the HTTP connection to WebSocket for the game
// channel. It authenticates the user (creating an ephemeral guest if
// needed), registers the connection, and runs the read loop dispatching
// create/join/move messages into the match engine.
func GameWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer sock.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if sock.Subprotocol() != "game" {
			logger.Warnf("Client connected with invalid subprotocol: %s", sock.Subprotocol())
			sock.Close(ws.BadSubprotocol, "Client must use the 'game' subprotocol.")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed on game channel: %v", err)
			sock.Close(ws.AuthFailed, "Authentication failed.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sock.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := ws.NewConn(userID, logger)
		s.Registry.Register(userID, presence.ChannelGame, conn)
		s.Presence.Connect(userID, presence.ChannelGame)
		defer func() {
			s.Registry.Unregister(userID, presence.ChannelGame, conn)
			s.Presence.Disconnect(userID, presence.ChannelGame)
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
		}()

		go conn.WritePump(ctx, sock)
		ws.StartMonitor(ctx, sock, ws.KeepAliveInterval, logger)

		conn.Send(map[string]interface{}{
			"type":   "registered",
			"userId": userID.String(),
		})

		readGameMessages(ctx, sock, conn, s, userID, logger)
	}
}

// readGameMessages blocks reading frames from the client until the
// connection closes or the context ends, routing each message to the
// matching handler.
func readGameMessages(ctx context.Context, sock *websocket.Conn, conn *ws.Conn, s *Server, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := sock.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s.", userID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s.", userID)
			} else {
				logger.Warnf("Error reading from WebSocket for user %s: %v (Status: %d)", userID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s. Ignoring.", msgType, userID)
			continue
		}

		var msg gameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s: %v. Data: %s", userID, err, string(data))
			conn.SendError("Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "create":
			s.handleCreate(ctx, conn, userID, msg)
		case "join":
			s.handleJoin(ctx, conn, userID, msg)
		case "move":
			s.handleMove(ctx, conn, userID, msg)
		default:
			logger.Warnf("Unknown message type '%s' from user %s.", msg.Type, userID)
			conn.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// handleCreate starts a match for the requesting user. An empty opponent id
// (or the bot's own id) requests a bot match under the first-to policy;
// a real opponent must be a friend and plays the fixed-rounds policy.
// An existing ongoing match for the same pair is reused instead of
// rejected, so a reconnecting client lands back in its game.
func (s *Server) handleCreate(ctx context.Context, conn *ws.Conn, userID uuid.UUID, msg gameMessage) {
	opponentID := s.BotID
	botMatch := true
	if msg.OpponentID != "" {
		parsed, err := uuid.Parse(msg.OpponentID)
		if err != nil {
			conn.SendError("invalid opponentId")
			return
		}
		if parsed != s.BotID {
			opponentID = parsed
			botMatch = false
		}
	}

	if !botMatch {
		if opponentID == userID {
			conn.SendError("cannot play against yourself")
			return
		}
		friends, err := database.AreFriends(ctx, userID, opponentID)
		if err != nil {
			s.Logger.WithError(err).Warn("friendship check failed")
			conn.SendError("failed to create match")
			return
		}
		if !friends {
			conn.SendError("opponent is not a friend")
			return
		}
	}

	if id, ok, err := database.OngoingMatchBetween(ctx, userID, opponentID); err != nil {
		s.Logger.WithError(err).Warn("ongoing match lookup failed")
		conn.SendError("failed to create match")
		return
	} else if ok {
		m, r, err := s.Engine.GetState(ctx, id)
		if err != nil {
			s.Logger.WithError(err).Warn("failed to load ongoing match")
			conn.SendError("failed to create match")
			return
		}
		conn.Send(gameStatePayload("gameState", m, r))
		return
	}

	policy := game.PolicyFixedRounds
	if botMatch {
		policy = game.PolicyFirstTo
	}

	m, r, err := s.Engine.Create(ctx, userID, opponentID, policy)
	if errors.Is(err, game.ErrOngoingMatch) {
		// Lost the lookup-then-create race; fall back to the match that won.
		if id, ok, lookupErr := database.OngoingMatchBetween(ctx, userID, opponentID); lookupErr == nil && ok {
			if m, r, stateErr := s.Engine.GetState(ctx, id); stateErr == nil {
				conn.Send(gameStatePayload("gameState", m, r))
				return
			}
		}
		conn.SendError(err.Error())
		return
	}
	if err != nil {
		s.Logger.WithError(err).Warn("match creation failed")
		conn.SendError("failed to create match")
		return
	}

	conn.Send(gameStatePayload("gameCreated", m, r))
	if !botMatch {
		s.Registry.SendToUser(opponentID, presence.ChannelGame, gameStatePayload("gameCreated", m, r))
	}
}

// handleJoin sends the current state of a match to one of its participants,
// used for display and reconnects.
func (s *Server) handleJoin(ctx context.Context, conn *ws.Conn, userID uuid.UUID, msg gameMessage) {
	matchID, err := uuid.Parse(msg.MatchID)
	if err != nil {
		conn.SendError("invalid matchId")
		return
	}
	m, r, err := s.Engine.GetState(ctx, matchID)
	if err != nil {
		s.Logger.WithError(err).Warn("match state lookup failed")
		conn.SendError("match not found")
		return
	}
	if !m.HasParticipant(userID) {
		conn.SendError(game.ErrNotParticipant.Error())
		return
	}
	conn.Send(gameStatePayload("gameState", m, r))
}

// handleMove submits the user's move. A one-sided submission acknowledges
// as pending; in a bot match the bot's answer is computed and submitted
// immediately, so the round resolves in the same call. Resolutions fan out
// to both participants.
func (s *Server) handleMove(ctx context.Context, conn *ws.Conn, userID uuid.UUID, msg gameMessage) {
	matchID, err := uuid.Parse(msg.MatchID)
	if err != nil {
		conn.SendError("invalid matchId")
		return
	}
	if !game.ValidMove(msg.Move) {
		conn.SendError(fmt.Sprintf("invalid move: %s", msg.Move))
		return
	}

	res, err := s.Engine.SubmitMove(ctx, matchID, userID, game.Move(msg.Move))
	if err != nil {
		s.sendEngineError(conn, err)
		return
	}

	if res.Pending {
		conn.Send(map[string]interface{}{
			"type":    "moveAccepted",
			"matchId": res.Match.ID.String(),
			"roundId": res.Round.ID.String(),
		})
		if res.Match.HasParticipant(s.BotID) {
			s.submitBotMove(ctx, conn, res.Match, userID)
		}
		return
	}

	s.broadcastResolution(ctx, res)
}

// submitBotMove computes the bot's answer from the opponent model and plays
// it. A statistics failure aborts the bot's move rather than guessing.
func (s *Server) submitBotMove(ctx context.Context, conn *ws.Conn, m *game.Match, userID uuid.UUID) {
	mv, err := s.Bot.ChooseMove(ctx, userID, s.BotID)
	if err != nil {
		s.Logger.WithError(err).Warn("bot move selection failed")
		conn.SendError("opponent failed to move")
		return
	}
	res, err := s.Engine.SubmitMove(ctx, m.ID, s.BotID, mv)
	if err != nil {
		s.Logger.WithError(err).Warn("bot move submission failed")
		conn.SendError("opponent failed to move")
		return
	}
	if res.Pending {
		return
	}
	s.broadcastResolution(ctx, res)
}

// broadcastResolution fans a resolved round out to both human participants.
// Final results go to every channel the player has open, not just the game
// channel. The resolution is also queued for the history consumer.
func (s *Server) broadcastResolution(ctx context.Context, res *game.MoveResult) {
	payload := map[string]interface{}{
		"type":      "roundResolved",
		"match":     res.Match,
		"round":     res.Round,
		"outcome":   res.Outcome,
		"nextRound": res.NextRound,
	}
	for _, pid := range []uuid.UUID{res.Match.ParticipantA, res.Match.ParticipantB} {
		if pid == s.BotID {
			continue
		}
		if res.Match.Status == game.MatchFinished {
			s.Registry.SendToAllChannels(pid, payload)
		} else {
			s.Registry.SendToUser(pid, presence.ChannelGame, payload)
		}
	}

	record := cache.RoundRecord{
		MatchID:     res.Match.ID,
		RoundNumber: res.Round.Number,
		MoveA:       string(*res.Round.MoveA),
		MoveB:       string(*res.Round.MoveB),
		Timestamp:   time.Now().UnixMilli(),
	}
	if res.Round.WinnerID != nil {
		record.WinnerID = res.Round.WinnerID.String()
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.PublishRound(pubCtx, record); err != nil {
			s.Logger.WithError(err).Warn("failed to queue round record")
		}
	}()
}

// sendEngineError maps engine errors onto client-facing messages. State
// conflicts carry their own text; anything else is reported generically.
func (s *Server) sendEngineError(conn *ws.Conn, err error) {
	switch {
	case errors.Is(err, game.ErrMatchFinished),
		errors.Is(err, game.ErrAlreadyMoved),
		errors.Is(err, game.ErrNotParticipant),
		errors.Is(err, game.ErrNoOpenRound):
		conn.SendError(err.Error())
	default:
		s.Logger.WithError(err).Warn("move submission failed")
		conn.SendError("failed to submit move")
	}
}

func gameStatePayload(msgType string, m *game.Match, r *game.Round) map[string]interface{} {
	return map[string]interface{}{
		"type":  msgType,
		"match": m,
		"round": r,
	}
}
