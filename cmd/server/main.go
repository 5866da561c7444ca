// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/auth"
	"github.com/whostune/server/internal/cache"
	"github.com/whostune/server/internal/database"
	"github.com/whostune/server/internal/handlers"
	"github.com/whostune/server/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis and Postgres are both optional; the game runs fully in memory
	// without them.
	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Warnf("redis unavailable, event logging disabled: %v", err)
		}
	}
	if err := database.Connect(context.Background()); err != nil {
		logger.Warnf("database unavailable, result archiving disabled: %v", err)
	}

	s := handlers.NewServer(logger)

	mux := http.NewServeMux()

	// room REST endpoints
	mux.Handle("/api/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		s.CreateRoomHandler,
	)))
	mux.Handle("/api/room/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		s.RoomHandler,
	)))

	// music profile deposit
	mux.Handle("/api/profile", middleware.LogMiddleware(logger)(http.HandlerFunc(
		s.ProfileHandler,
	)))

	// room websocket
	mux.Handle("/ws/", http.HandlerFunc(s.WSHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
