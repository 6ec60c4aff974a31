// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/throwdown-gg/throwdown/internal/auth"
	"github.com/throwdown-gg/throwdown/internal/cache"
	"github.com/throwdown-gg/throwdown/internal/database"
	"github.com/throwdown-gg/throwdown/internal/handlers"
	"github.com/throwdown-gg/throwdown/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("Redis unavailable, round history queue disabled: %v", err)
		cache.Rdb = nil
	}

	srv, err := handlers.NewServer(context.Background(), logger)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/claim", handlers.ClaimEphemeralHandler)

	// friend endpoints
	mux.HandleFunc("/friends/add", handlers.AddFriendHandler)
	mux.HandleFunc("/friends/accept", handlers.AcceptFriendHandler)
	mux.HandleFunc("/friends/list", handlers.ListFriendsHandler)
	mux.HandleFunc("/friends/remove", handlers.RemoveFriendHandler)

	// live channels
	mux.Handle("/game/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GameWSHandler(logger, srv),
	)))
	mux.Handle("/presence/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.PresenceWSHandler(logger, srv),
	)))
	mux.Handle("/chat/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ChatWSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
