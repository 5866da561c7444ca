// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/profile"
	"github.com/whostune/server/internal/room"
)

// Server bundles the shared state every HTTP and websocket handler needs:
// the live room registry and the session profile store.
type Server struct {
	Registry *room.Registry
	Profiles *profile.Store
	Logger   *logrus.Logger
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		Registry: room.NewRegistry(clockwork.NewRealClock()),
		Profiles: profile.NewStore(),
		Logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
