// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/auth"
	"github.com/whostune/server/internal/models"
	"github.com/whostune/server/internal/profile"
	"github.com/whostune/server/internal/room"
)

// wsPacket is the inbound message envelope. Fields beyond Type are only read
// by the actions that need them.
type wsPacket struct {
	Type             string                `json:"type"`
	PlayerName       string                `json:"playerName"`
	PlayerEmoji      string                `json:"playerEmoji"`
	Settings         *models.SettingsPatch `json:"settings"`
	AnsweredPlayerID string                `json:"answeredPlayerId"`
}

// WSHandler upgrades /ws/{code} to the room websocket. The session cookie is
// established before the handshake so the Set-Cookie header rides the
// upgrade response; after that the connection joins the room and the
// read/write pumps take over for its lifetime.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		sessionID, err := auth.EnsureSession(w, r)
		if err != nil {
			s.Logger.Warnf("session setup failed for room %s: %v", code, err)
			http.Error(w, "failed to establish session", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"whostune"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "whostune" {
			c.Close(BadSubprotocolError, "client must speak the whostune subprotocol")
			return
		}

		rm, err := s.Registry.Get(code)
		if err != nil {
			c.Close(InvalidRoomCodeError, "room does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &room.Connection{
			ID:        uuid.New(),
			SessionID: sessionID,
			Cancel:    cancel,
			OutChan:   make(chan map[string]interface{}, 32),
		}

		s.Logger.Infof("session %s connected to room %s from %s", sessionID, rm.Code, r.RemoteAddr)

		go writePump(ctx, c, conn, s.Logger)
		s.readPump(ctx, c, rm, conn)

		// readPump exited: the socket is gone, detach from the room.
		rm.Leave(conn.ID)
	}
}

// readPump consumes inbound messages until the connection dies. All room
// mutation goes through the room's own locked methods.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, rm *room.Room, conn *room.Connection) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.Logger.Infof("room %s: websocket closed normally for connection %s", rm.Code, conn.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				s.Logger.Warnf("room %s: read error for connection %s: %v", rm.Code, conn.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet wsPacket
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("invalid JSON format")
			continue
		}

		s.handleRoomMessage(packet, rm, conn)
	}
}

// handleRoomMessage interprets the packet's "type" field. Host-gated actions
// from non-hosts answer with a private error; unknown actions likewise.
func (s *Server) handleRoomMessage(packet wsPacket, rm *room.Room, conn *room.Connection) {
	switch packet.Type {
	case "join":
		p := profile.ResolveOrEmpty(context.Background(), s.Profiles, conn.SessionID)
		name := packet.PlayerName
		if name == "" {
			name = p.Name
		}
		if name == "" {
			name = "Player"
		}
		emoji := packet.PlayerEmoji
		if emoji == "" {
			emoji = p.Emoji
		}
		if emoji == "" {
			emoji = profile.RandomEmoji()
		}

		player := &models.Player{
			ID:        conn.ID,
			SessionID: conn.SessionID,
			Name:      name,
			Emoji:     emoji,
			Platform:  p.Platform,
			Tracks:    p.Tracks,
		}
		if err := rm.Join(conn, player); err != nil {
			conn.WriteError(err.Error())
		}

	case "update-settings":
		if packet.Settings == nil {
			conn.WriteError("missing settings payload")
			return
		}
		if err := rm.UpdateSettings(conn.ID, *packet.Settings); err != nil && !errors.Is(err, room.ErrNotHost) {
			conn.WriteError(err.Error())
		}

	case "start-game":
		if err := rm.StartGame(conn.ID); err != nil && !errors.Is(err, room.ErrNotHost) {
			conn.WriteError(err.Error())
		}

	case "submit-answer":
		answeredID, err := uuid.Parse(packet.AnsweredPlayerID)
		if err != nil {
			conn.WriteError("invalid answeredPlayerId")
			return
		}
		rm.SubmitAnswer(conn.ID, answeredID)

	case "next-question":
		// Host-only actions from non-hosts are dropped without a reply.
		_ = rm.AdvanceQuestion(conn.ID)

	default:
		conn.WriteError("unknown action type: " + packet.Type)
	}
}

// writePump drains the connection's out channel onto the socket and keeps the
// connection alive with periodic pings. It exits when the channel closes, the
// context is cancelled, or a write fails.
func writePump(ctx context.Context, c *websocket.Conn, conn *room.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "connection replaced or room closed")
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for connection %s: %v", conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for connection %s: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for connection %s, assuming disconnect: %v", conn.ID, err)
				return
			}
		}
	}
}
