package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/whostune/server/internal/models"
)

// ErrProfileNotFound is returned when a session has never deposited a
// profile.
var ErrProfileNotFound = errors.New("no music profile for session")

// Store holds deposited music profiles in memory, keyed by session id. It
// satisfies Resolver.
type Store struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*models.PlayerMusicProfile
}

func NewStore() *Store {
	return &Store{
		profiles: make(map[uuid.UUID]*models.PlayerMusicProfile),
	}
}

// Put replaces a session's profile wholesale.
func (s *Store) Put(sessionID uuid.UUID, p *models.PlayerMusicProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[sessionID] = p
}

func (s *Store) Get(sessionID uuid.UUID) (*models.PlayerMusicProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[sessionID]
	return p, ok
}

func (s *Store) Delete(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, sessionID)
}

// Resolve implements Resolver.
func (s *Store) Resolve(_ context.Context, sessionID uuid.UUID) (*models.PlayerMusicProfile, error) {
	p, ok := s.Get(sessionID)
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}
