// internal/handlers/server.go
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/throwdown-gg/throwdown/internal/database"
	"github.com/throwdown-gg/throwdown/internal/game"
	"github.com/throwdown-gg/throwdown/internal/presence"
	"github.com/throwdown-gg/throwdown/internal/ws"
)

// Server holds the shared state behind every live connection: the match
// engine, the bot, the connection registry and the presence tracker.
type Server struct {
	Engine   *game.Engine
	Bot      *game.Bot
	BotID    uuid.UUID
	Registry *ws.Registry
	Presence *presence.Tracker
	Logger   *logrus.Logger
}

// NewServer wires the engine and bot against the pgx-backed stores and
// resolves the bot identity, creating it on first boot.
func NewServer(ctx context.Context, logger *logrus.Logger) (*Server, error) {
	bot, err := database.EnsureBotUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot user: %w", err)
	}

	return &Server{
		Engine:   game.NewEngine(database.Matches{}, logger),
		Bot:      game.NewBot(database.Stats{}),
		BotID:    bot.ID,
		Registry: ws.NewRegistry(),
		Presence: presence.NewTracker(logger),
		Logger:   logger,
	}, nil
}
