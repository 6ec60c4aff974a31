// internal/handlers/presence_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/throwdown-gg/throwdown/internal/database"
	"github.com/throwdown-gg/throwdown/internal/middleware"
	"github.com/throwdown-gg/throwdown/internal/presence"
	"github.com/throwdown-gg/throwdown/internal/ws"
)

// maxWatchBatch caps how many user ids one watch request may name.
const maxWatchBatch = 50

// presenceMessage is the envelope for inbound messages on the presence
// channel.
type presenceMessage struct {
	Type    string   `json:"type"`
	UserID  string   `json:"userId,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// watchSet is the set of user ids one presence connection is watching.
// The tracker's subscriber callback reads it concurrently with the read
// loop adding ids to it.
type watchSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func newWatchSet() *watchSet {
	return &watchSet{ids: make(map[uuid.UUID]struct{})}
}

func (s *watchSet) add(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *watchSet) has(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// PresenceWSHandler upgrades the HTTP connection to WebSocket for the
// presence channel. The client subscribes to status changes for specific
// users (watch/check/watchFriends); updates for watched users are pushed
// as they happen. Watch targets must be the requester or a friend.
func PresenceWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"presence"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer sock.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if sock.Subprotocol() != "presence" {
			sock.Close(ws.BadSubprotocol, "Client must use the 'presence' subprotocol.")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed on presence channel: %v", err)
			sock.Close(ws.AuthFailed, "Authentication failed.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sock.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := ws.NewConn(userID, logger)
		watched := newWatchSet()

		subID := s.Presence.Subscribe(func(e presence.Entry) {
			if watched.has(e.UserID) {
				conn.Send(map[string]interface{}{
					"type": "presenceUpdate",
					"user": e,
				})
			}
		})

		s.Registry.Register(userID, presence.ChannelPresence, conn)
		s.Presence.Connect(userID, presence.ChannelPresence)
		defer func() {
			s.Presence.Unsubscribe(subID)
			s.Registry.Unregister(userID, presence.ChannelPresence, conn)
			s.Presence.Disconnect(userID, presence.ChannelPresence)
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
		}()

		go conn.WritePump(ctx, sock)
		ws.StartMonitor(ctx, sock, ws.KeepAliveInterval, logger)

		conn.Send(map[string]interface{}{
			"type":   "registered",
			"userId": userID.String(),
		})

		readPresenceMessages(ctx, sock, conn, s, userID, watched, logger)
	}
}

func readPresenceMessages(ctx context.Context, sock *websocket.Conn, conn *ws.Conn, s *Server, userID uuid.UUID, watched *watchSet, logger *logrus.Logger) {
	for {
		msgType, data, err := sock.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("Error reading from presence WebSocket for user %s: %v", userID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg presenceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.SendError("Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "watch":
			s.handleWatch(ctx, conn, userID, watched, msg.UserIDs)
		case "check":
			s.handleWatch(ctx, conn, userID, watched, []string{msg.UserID})
		case "watchFriends":
			friendIDs, err := database.FriendIDsOf(ctx, userID)
			if err != nil {
				s.Logger.WithError(err).Warn("friend list lookup failed")
				conn.SendError("failed to look up friends")
				continue
			}
			targets := make([]uuid.UUID, 0, len(friendIDs))
			for _, id := range friendIDs {
				watched.add(id)
				targets = append(targets, id)
			}
			conn.Send(map[string]interface{}{
				"type":  "presenceSnapshot",
				"users": s.Presence.SnapshotMany(targets),
			})
		default:
			conn.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// handleWatch authorizes each requested target, adds the allowed ones to
// the connection's watch set, and answers with a snapshot of their current
// status. Unauthorized targets are rejected as a whole rather than
// silently filtered.
func (s *Server) handleWatch(ctx context.Context, conn *ws.Conn, userID uuid.UUID, watched *watchSet, rawIDs []string) {
	if len(rawIDs) == 0 {
		conn.SendError("no user ids given")
		return
	}
	if len(rawIDs) > maxWatchBatch {
		conn.SendError(fmt.Sprintf("too many user ids in one request (max %d)", maxWatchBatch))
		return
	}

	targets := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			conn.SendError(fmt.Sprintf("invalid user id: %s", raw))
			return
		}
		if id != userID {
			friends, err := database.AreFriends(ctx, userID, id)
			if err != nil {
				s.Logger.WithError(err).Warn("friendship check failed")
				conn.SendError("failed to check friendship")
				return
			}
			if !friends {
				conn.SendError(fmt.Sprintf("not allowed to watch user %s", id))
				return
			}
		}
		targets = append(targets, id)
	}

	for _, id := range targets {
		watched.add(id)
	}
	conn.Send(map[string]interface{}{
		"type":  "presenceSnapshot",
		"users": s.Presence.SnapshotMany(targets),
	})
}
