// internal/handlers/profile.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/whostune/server/internal/auth"
	"github.com/whostune/server/internal/models"
	"github.com/whostune/server/internal/profile"
)

// ProfileHandler handles POST /api/profile: the client deposits its display
// identity and track library after linking a music account. The profile is
// keyed to the caller's session, which this handler mints on first contact.
//
// GET returns the caller's current profile sans tracks, so the frontend can
// show whether linking already happened.
func (s *Server) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := auth.EnsureSession(w, r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to establish session")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var p models.PlayerMusicProfile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid profile payload")
			return
		}
		if p.Name == "" {
			p.Name = "Player"
		}
		if p.Emoji == "" {
			p.Emoji = profile.RandomEmoji()
		}
		s.Profiles.Put(sessionID, &p)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":     p.Name,
			"emoji":    p.Emoji,
			"platform": p.Platform,
			"tracks":   len(p.Tracks),
		})

	case http.MethodGet:
		p, ok := s.Profiles.Get(sessionID)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no profile for this session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":     p.Name,
			"emoji":    p.Emoji,
			"platform": p.Platform,
			"tracks":   len(p.Tracks),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
