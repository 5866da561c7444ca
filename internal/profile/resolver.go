package profile

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/models"
)

// Resolver looks up a session's music profile: display identity plus the
// track library deposited after account linking.
type Resolver interface {
	Resolve(ctx context.Context, sessionID uuid.UUID) (*models.PlayerMusicProfile, error)
}

// ResolveOrEmpty degrades a failed lookup to a trackless profile so a player
// can always enter a room as a spectator. The returned profile is never nil.
func ResolveOrEmpty(ctx context.Context, r Resolver, sessionID uuid.UUID) *models.PlayerMusicProfile {
	p, err := r.Resolve(ctx, sessionID)
	if err != nil || p == nil {
		if err != nil {
			log.Debugf("profile: no profile for session %s: %v", sessionID, err)
		}
		return &models.PlayerMusicProfile{}
	}
	return p
}
