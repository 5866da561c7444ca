package room

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/models"
	"github.com/whostune/server/internal/quiz"
)

// State of a room's lifecycle. Transitions only run forward; a finished room
// is never restarted in place, only deleted.
type State string

const (
	StateLobby    State = "lobby"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

// MaxPlayers caps room membership.
const MaxPlayers = 8

// MinActivePlayers is the smallest active-player count a game can start with.
const MinActivePlayers = 2

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full (8 players max)")
	ErrGameInProgress      = errors.New("game already in progress")
	ErrInsufficientPlayers = errors.New("need at least 2 players with linked music")
	ErrNoQuestions         = errors.New("not enough usable tracks to build questions")
	ErrNotHost             = errors.New("only the host can do that")
)

// Room is one game instance: ordered player membership, host assignment,
// settings, and (once started) the quiz runtime. All state is guarded by Mu;
// the runtime's timer callbacks re-acquire the same lock, so mutations for a
// room are fully serialized.
type Room struct {
	Code     string
	HostID   uuid.UUID
	Settings models.RoomSettings
	State    State

	// Players in join order; index 0 inherits the host role when the host
	// disconnects.
	Players []*models.Player

	Quiz *quiz.Runtime

	Connections map[uuid.UUID]*Connection

	// OnEmpty is invoked after the last member leaves, typically wired by
	// the registry to delete the room.
	OnEmpty func(code string)

	clock clockwork.Clock
	Mu    sync.Mutex
}

// NewRoom builds an empty lobby-state room.
func NewRoom(code string, settings models.RoomSettings, clock clockwork.Clock) *Room {
	return &Room{
		Code:        code,
		Settings:    settings,
		State:       StateLobby,
		Connections: make(map[uuid.UUID]*Connection),
		clock:       clock,
	}
}

// Join admits a new member, or rewires an existing member's connection when
// the session id is already known. Reconnection bypasses the lobby-only and
// capacity guards since the player already occupies a slot.
//
// The caller builds the player from the session's resolved music profile;
// player.ID must equal conn.ID.
func (r *Room) Join(conn *Connection, player *models.Player) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	for _, existing := range r.Players {
		if existing.SessionID == conn.SessionID {
			r.reconnectUnsafe(conn, existing)
			return nil
		}
	}

	if r.State != StateLobby {
		return ErrGameInProgress
	}
	if len(r.Players) >= MaxPlayers {
		return ErrRoomFull
	}

	player.IsHost = len(r.Players) == 0
	if player.IsHost {
		r.HostID = conn.ID
	}
	r.Players = append(r.Players, player)
	r.Connections[conn.ID] = conn

	conn.Write(map[string]interface{}{
		"type":     EventJoined,
		"playerId": conn.ID.String(),
		"isHost":   player.IsHost,
		"room":     r.viewUnsafe(),
	})
	r.broadcastOthersUnsafe(conn.ID, map[string]interface{}{
		"type":   EventPlayerJoined,
		"player": player.View(),
		"room":   r.viewUnsafe(),
	})

	log.Infof("room %s: %s joined (%d players)", r.Code, player.Name, len(r.Players))
	return nil
}

// reconnectUnsafe swaps a known session onto a fresh connection id, closing
// any connection the session previously held.
func (r *Room) reconnectUnsafe(conn *Connection, player *models.Player) {
	oldID := player.ID
	if old, ok := r.Connections[oldID]; ok && old != conn {
		old.Close()
		delete(r.Connections, oldID)
	}

	player.ID = conn.ID
	if player.IsHost {
		r.HostID = conn.ID
	}
	if r.Quiz != nil {
		r.Quiz.ReconnectUnsafe(oldID, conn.ID)
		r.Quiz.RejoinUnsafe(player)
	}
	r.Connections[conn.ID] = conn

	conn.Write(map[string]interface{}{
		"type":     EventJoined,
		"playerId": conn.ID.String(),
		"isHost":   player.IsHost,
		"room":     r.viewUnsafe(),
	})
	log.Infof("room %s: %s reconnected", r.Code, player.Name)
}

// Leave handles a connection loss: the player is removed, the host role is
// promoted deterministically, and an emptied room tears itself down along
// with any live timers.
func (r *Room) Leave(connID uuid.UUID) {
	r.Mu.Lock()

	conn, ok := r.Connections[connID]
	if !ok {
		// Already replaced by a reconnect, or never joined.
		r.Mu.Unlock()
		return
	}
	delete(r.Connections, connID)
	conn.Close()

	var departed *models.Player
	for i, p := range r.Players {
		if p.ID == connID {
			departed = p
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			break
		}
	}
	if departed == nil {
		r.Mu.Unlock()
		return
	}

	r.broadcastUnsafe(map[string]interface{}{
		"type":     EventPlayerLeft,
		"playerId": connID.String(),
		"room":     r.viewUnsafe(),
	})

	wasHost := r.HostID == connID
	if wasHost && len(r.Players) > 0 {
		next := r.Players[0]
		next.IsHost = true
		r.HostID = next.ID
		r.broadcastUnsafe(map[string]interface{}{
			"type":     EventNewHost,
			"playerId": next.ID.String(),
		})
		log.Infof("room %s: host left, %s promoted", r.Code, next.Name)
	}

	if r.Quiz != nil {
		r.Quiz.HandleDisconnectUnsafe(connID)
	}

	empty := len(r.Players) == 0
	if empty && r.Quiz != nil {
		r.Quiz.StopUnsafe()
	}
	onEmpty := r.OnEmpty
	r.Mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty(r.Code)
	}
}

// UpdateSettings shallow-merges a partial settings update. Host only; the
// merged settings are broadcast to every member regardless of room state.
func (r *Room) UpdateSettings(connID uuid.UUID, patch models.SettingsPatch) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != connID {
		return ErrNotHost
	}
	r.Settings.Merge(patch)
	r.broadcastUnsafe(map[string]interface{}{
		"type":     EventSettingsUpdated,
		"settings": r.Settings,
	})
	return nil
}

// StartGame builds the question sequence and launches the quiz runtime. Host
// only, lobby only, and at least two active players with at least one
// buildable question.
func (r *Room) StartGame(connID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != connID {
		return ErrNotHost
	}
	if r.State != StateLobby {
		return ErrGameInProgress
	}

	active := r.activePlayersUnsafe()
	if len(active) < MinActivePlayers {
		return ErrInsufficientPlayers
	}

	questions := quiz.BuildQuestions(active, r.Settings.Questions)
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	rt := quiz.NewRuntime(questions, active, r.Settings, &r.Mu, r.clock)
	rt.Broadcast = func(event string, payload map[string]interface{}) {
		msg := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			msg[k] = v
		}
		msg["type"] = event
		r.broadcastUnsafe(msg)
	}
	rt.BroadcastTo = func(target uuid.UUID, event string, payload map[string]interface{}) {
		conn, ok := r.Connections[target]
		if !ok {
			return
		}
		msg := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			msg[k] = v
		}
		msg["type"] = event
		conn.Write(msg)
	}
	rt.OnFinished = func(rankings []quiz.RankingEntry) {
		r.State = StateFinished
		logRoomEvent(r.Code, "game_over", map[string]interface{}{"rankings": rankings})
		archiveResult(r.Code, rankings)
	}

	r.Quiz = rt
	r.State = StatePlaying
	log.Infof("room %s: game started with %d active players, %d questions", r.Code, len(active), len(questions))
	logRoomEvent(r.Code, "game_started", map[string]interface{}{
		"players":   len(active),
		"questions": len(questions),
	})

	rt.BeginUnsafe()
	return nil
}

// SubmitAnswer routes a guess to the quiz runtime. Answers outside the
// playing state are ignored, not erred.
func (r *Room) SubmitAnswer(connID, answeredPlayerID uuid.UUID) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State != StatePlaying || r.Quiz == nil {
		return
	}
	r.Quiz.SubmitAnswerUnsafe(connID, answeredPlayerID)
}

// AdvanceQuestion moves the quiz forward on the host's signal. Past the last
// question the runtime finishes the game and flips the room to finished.
func (r *Room) AdvanceQuestion(connID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.HostID != connID {
		return ErrNotHost
	}
	if r.State != StatePlaying || r.Quiz == nil {
		return nil
	}
	r.Quiz.AdvanceUnsafe()
	return nil
}

// View is the public read-only projection of the room, also served to REST
// polling clients. No track lists, no session ids.
func (r *Room) View() map[string]interface{} {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.viewUnsafe()
}

func (r *Room) viewUnsafe() map[string]interface{} {
	players := make([]map[string]interface{}, len(r.Players))
	for i, p := range r.Players {
		players[i] = p.View()
	}
	return map[string]interface{}{
		"code":     r.Code,
		"state":    string(r.State),
		"settings": r.Settings,
		"players":  players,
	}
}

func (r *Room) activePlayersUnsafe() []*models.Player {
	var active []*models.Player
	for _, p := range r.Players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) broadcastUnsafe(msg map[string]interface{}) {
	for _, conn := range r.Connections {
		conn.Write(msg)
	}
}

func (r *Room) broadcastOthersUnsafe(exclude uuid.UUID, msg map[string]interface{}) {
	for id, conn := range r.Connections {
		if id != exclude {
			conn.Write(msg)
		}
	}
}
