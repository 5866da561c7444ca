package models

import "github.com/google/uuid"

// Player is a member of a room. ID always equals the player's current
// connection id and is rewritten in place when a known session reconnects;
// SessionID is the stable cross-reconnect identity.
type Player struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	Platform  string    `json:"platform,omitempty"`
	Tracks    []Track   `json:"-"`
	IsHost    bool      `json:"isHost"`
}

// Active reports whether the player counts toward the quiz: a linked
// platform and at least one track. Inactive players stay visible in the
// lobby but never receive scores.
func (p *Player) Active() bool {
	return p.Platform != "" && len(p.Tracks) > 0
}

// View is the public projection broadcast to room members. It never exposes
// the track list or the session id.
func (p *Player) View() map[string]interface{} {
	var platform interface{}
	if p.Platform != "" {
		platform = p.Platform
	}
	return map[string]interface{}{
		"id":       p.ID.String(),
		"name":     p.Name,
		"emoji":    p.Emoji,
		"platform": platform,
		"isHost":   p.IsHost,
	}
}
