package room

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/models"
)

// validCode constrains caller-supplied codes to the same shape clients type
// in: exactly 4 uppercase alphanumerics. Generated codes are the hex subset.
var validCode = regexp.MustCompile(`^[0-9A-Z]{4}$`)

// Registry is the in-memory index of live rooms, keyed by join code. Rooms
// exist only here; when the last member leaves, the room removes itself.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	clock clockwork.Clock
}

// NewRegistry builds an empty registry. The clock is handed to every room it
// creates so tests can drive quiz timers deterministically.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		clock: clock,
	}
}

// CreateRoom allocates a room under a fresh 4-character code, or under
// forceCode (uppercased) when it is a valid unoccupied code. Malformed
// forced codes are not an error; a generated code is used instead.
// Non-positive settings fields fall back to the defaults.
func (reg *Registry) CreateRoom(settings models.RoomSettings, forceCode string) *Room {
	defaults := models.DefaultRoomSettings()
	if settings.Questions <= 0 {
		settings.Questions = defaults.Questions
	}
	if settings.Timer <= 0 {
		settings.Timer = defaults.Timer
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := strings.ToUpper(forceCode)
	if !validCode.MatchString(code) || reg.rooms[code] != nil {
		for {
			code = randCode()
			if reg.rooms[code] == nil {
				break
			}
		}
	}

	r := NewRoom(code, settings, reg.clock)
	r.OnEmpty = reg.Delete
	reg.rooms[code] = r

	log.Infof("room %s created (questions=%d timer=%ds)", code, settings.Questions, settings.Timer)
	return r
}

// Get looks a room up by code, case-insensitively.
func (reg *Registry) Get(code string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes a room from the index. Idempotent.
func (reg *Registry) Delete(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[code]; ok {
		delete(reg.rooms, code)
		log.Infof("room %s deleted", code)
	}
}

// randCode draws two random bytes and renders them as 4 uppercase hex
// characters, the shortest code that is easy to read out loud.
func randCode() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
