// internal/handlers/chat_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/throwdown-gg/throwdown/internal/database"
	"github.com/throwdown-gg/throwdown/internal/middleware"
	"github.com/throwdown-gg/throwdown/internal/presence"
	"github.com/throwdown-gg/throwdown/internal/ws"
)

// chatMessage is the envelope for inbound messages on the chat channel.
type chatMessage struct {
	Type    string `json:"type"`
	To      string `json:"to,omitempty"`
	Message string `json:"message,omitempty"`
}

// ChatWSHandler upgrades the HTTP connection to WebSocket for the chat
// channel and relays direct messages between friends. Messages to
// non-friends are rejected; delivery to an offline recipient is dropped.
func ChatWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"chat"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer sock.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if sock.Subprotocol() != "chat" {
			sock.Close(ws.BadSubprotocol, "Client must use the 'chat' subprotocol.")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed on chat channel: %v", err)
			sock.Close(ws.AuthFailed, "Authentication failed.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sock.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := ws.NewConn(userID, logger)
		s.Registry.Register(userID, presence.ChannelChat, conn)
		s.Presence.Connect(userID, presence.ChannelChat)
		defer func() {
			s.Registry.Unregister(userID, presence.ChannelChat, conn)
			s.Presence.Disconnect(userID, presence.ChannelChat)
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
		}()

		go conn.WritePump(ctx, sock)
		ws.StartMonitor(ctx, sock, ws.KeepAliveInterval, logger)

		conn.Send(map[string]interface{}{
			"type":   "registered",
			"userId": userID.String(),
		})

		readChatMessages(ctx, sock, conn, s, userID, logger)
	}
}

func readChatMessages(ctx context.Context, sock *websocket.Conn, conn *ws.Conn, s *Server, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := sock.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("Error reading from chat WebSocket for user %s: %v", userID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg chatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.SendError("Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "chat":
			s.relayChat(ctx, conn, userID, msg)
		default:
			conn.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// relayChat delivers a direct message to every connection the recipient
// has open on the chat channel, after a friendship check.
func (s *Server) relayChat(ctx context.Context, conn *ws.Conn, userID uuid.UUID, msg chatMessage) {
	to, err := uuid.Parse(msg.To)
	if err != nil {
		conn.SendError("invalid recipient id")
		return
	}
	if msg.Message == "" {
		conn.SendError("empty message")
		return
	}
	if to == userID {
		conn.SendError("cannot message yourself")
		return
	}

	friends, err := database.AreFriends(ctx, userID, to)
	if err != nil {
		s.Logger.WithError(err).Warn("friendship check failed")
		conn.SendError("failed to send message")
		return
	}
	if !friends {
		conn.SendError("recipient is not a friend")
		return
	}

	s.Registry.SendToUser(to, presence.ChannelChat, map[string]interface{}{
		"type":    "chat",
		"from":    userID.String(),
		"message": msg.Message,
	})
}
