// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/whostune/server/internal/models"
	"github.com/whostune/server/internal/room"
)

// CreateRoomHandler handles POST /api/room/create. The body may carry partial
// settings and a forced code (used by tests and private parties); both are
// optional and an empty body is fine.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Settings  models.SettingsPatch `json:"settings"`
		ForceCode string               `json:"forceCode"`
	}
	if r.Body != nil {
		// Ignore decode errors from an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	settings := models.DefaultRoomSettings()
	settings.Merge(req.Settings)

	rm := s.Registry.CreateRoom(settings, req.ForceCode)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"code":     rm.Code,
		"settings": settings,
	})
}

// RoomHandler dispatches GET /api/room/{code} and GET /api/room/{code}/qr.
func (s *Server) RoomHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/room/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}
	code := parts[0]

	rm, err := s.Registry.Get(code)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(parts) > 1 && parts[1] == "qr" {
		s.roomQRHandler(w, rm)
		return
	}

	writeJSON(w, http.StatusOK, rm.View())
}

// roomQRHandler renders a join link QR code as PNG, so the host can put the
// room on a shared screen and let phones scan in.
func (s *Server) roomQRHandler(w http.ResponseWriter, rm *room.Room) {
	base := os.Getenv("PUBLIC_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	joinURL := fmt.Sprintf("%s/join/%s", strings.TrimRight(base, "/"), rm.Code)

	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		s.Logger.Warnf("failed to encode QR for room %s: %v", rm.Code, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
