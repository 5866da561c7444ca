package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/whostune/server/internal/models"
	"github.com/whostune/server/internal/quiz"
)

func newTestConn() *Connection {
	return &Connection{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		OutChan:   make(chan map[string]interface{}, 64),
	}
}

func playerFor(conn *Connection, name string, trackCount int) *models.Player {
	p := &models.Player{
		ID:        conn.ID,
		SessionID: conn.SessionID,
		Name:      name,
		Emoji:     "🎤",
	}
	if trackCount > 0 {
		p.Platform = "spotify"
		for i := 0; i < trackCount; i++ {
			p.Tracks = append(p.Tracks, models.Track{
				ID:     fmt.Sprintf("%s-%d", name, i),
				Title:  fmt.Sprintf("Song %d of %s", i, name),
				Artist: "Artist " + name,
			})
		}
	}
	return p
}

// waitEvent reads the connection's out channel until a message of the wanted
// type arrives, skipping everything else.
func waitEvent(t *testing.T, conn *Connection, want string) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-conn.OutChan:
			require.True(t, ok, "out channel closed while waiting for %q", want)
			if typ, _ := msg["type"].(string); typ == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func newLobbyRoom(t *testing.T) (*Room, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return NewRoom("AB12", models.RoomSettings{Questions: 2, Timer: 20}, clock), clock
}

func TestJoinFirstPlayerBecomesHost(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	host := newTestConn()
	guest := newTestConn()

	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))

	joined := waitEvent(t, host, EventJoined)
	require.Equal(t, true, joined["isHost"])
	require.Equal(t, host.ID, rm.HostID)

	joined2 := waitEvent(t, guest, EventJoined)
	require.Equal(t, false, joined2["isHost"])

	// The host is told about the newcomer.
	pj := waitEvent(t, host, EventPlayerJoined)
	require.NotNil(t, pj["player"])
}

func TestJoinCapacity(t *testing.T) {
	rm, _ := newLobbyRoom(t)

	for i := 0; i < MaxPlayers; i++ {
		c := newTestConn()
		require.NoError(t, rm.Join(c, playerFor(c, fmt.Sprintf("p%d", i), 1)))
	}

	extra := newTestConn()
	err := rm.Join(extra, playerFor(extra, "late", 1))
	require.ErrorIs(t, err, ErrRoomFull)
	require.Len(t, rm.Players, MaxPlayers)
}

func TestJoinAfterStartRejected(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))
	require.NoError(t, rm.StartGame(host.ID))

	late := newTestConn()
	err := rm.Join(late, playerFor(late, "late", 3))
	require.ErrorIs(t, err, ErrGameInProgress)
}

func TestWriteAfterCloseDropsMessage(t *testing.T) {
	c := newTestConn()
	c.Close()

	require.NotPanics(t, func() {
		c.WriteError("too late")
		c.Write(map[string]interface{}{"type": "anything"})
	})

	// Idempotent.
	require.NotPanics(t, c.Close)
}

func TestReplacedConnectionCanStillWriteSafely(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	first := newTestConn()
	require.NoError(t, rm.Join(first, playerFor(first, "alice", 3)))

	// A reconnect closes the first connection's out channel while its read
	// pump may still be handling a final inbound message.
	second := newTestConn()
	second.SessionID = first.SessionID
	require.NoError(t, rm.Join(second, playerFor(second, "alice", 3)))

	require.NotPanics(t, func() {
		first.WriteError("stale gateway reply")
	})
}

func TestReconnectSameSessionKeepsSingleSlot(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	first := newTestConn()
	require.NoError(t, rm.Join(first, playerFor(first, "alice", 3)))

	second := newTestConn()
	second.SessionID = first.SessionID
	require.NoError(t, rm.Join(second, playerFor(second, "alice", 3)))

	require.Len(t, rm.Players, 1)
	require.Equal(t, second.ID, rm.Players[0].ID)
	require.Equal(t, second.ID, rm.HostID)
	require.True(t, rm.Players[0].IsHost)

	joined := waitEvent(t, second, EventJoined)
	require.Equal(t, true, joined["isHost"])
}

func TestLeavePromotesNextHost(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))

	rm.Leave(host.ID)

	require.Len(t, rm.Players, 1)
	require.Equal(t, guest.ID, rm.HostID)
	require.True(t, rm.Players[0].IsHost)

	waitEvent(t, guest, EventPlayerLeft)
	nh := waitEvent(t, guest, EventNewHost)
	require.Equal(t, guest.ID.String(), nh["playerId"])
}

func TestLastLeaveFiresOnEmpty(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)
	rm := reg.CreateRoom(models.RoomSettings{}, "CC77")

	c := newTestConn()
	require.NoError(t, rm.Join(c, playerFor(c, "solo", 1)))
	rm.Leave(c.ID)

	_, err := reg.Get("CC77")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestUpdateSettingsHostOnly(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))

	five := 5
	err := rm.UpdateSettings(guest.ID, models.SettingsPatch{Questions: &five})
	require.ErrorIs(t, err, ErrNotHost)
	require.Equal(t, 2, rm.Settings.Questions)

	thirty := 30
	require.NoError(t, rm.UpdateSettings(host.ID, models.SettingsPatch{Timer: &thirty}))
	require.Equal(t, 30, rm.Settings.Timer)
	require.Equal(t, 2, rm.Settings.Questions)

	su := waitEvent(t, guest, EventSettingsUpdated)
	require.NotNil(t, su["settings"])
}

func TestUpdateSettingsZeroTimerNeverReachesScoring(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)
	rm := reg.CreateRoom(models.RoomSettings{Questions: 1, Timer: 20}, "BB44")

	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))

	zero := 0
	require.NoError(t, rm.UpdateSettings(host.ID, models.SettingsPatch{Timer: &zero}))
	require.Equal(t, 20, rm.Settings.Timer)

	require.NoError(t, rm.StartGame(host.ID))
	clock.Advance(800 * time.Millisecond)
	waitEvent(t, guest, quiz.EventQuestion)

	rm.Mu.Lock()
	owner := rm.Quiz.Questions[0].OwnerID
	rm.Mu.Unlock()

	rm.SubmitAnswer(guest.ID, owner)
	ack := waitEvent(t, guest, quiz.EventAnswerAck)
	require.Equal(t, true, ack["correct"])
	require.Equal(t, 1000, ack["pts"])

	rm.Mu.Lock()
	require.Equal(t, 1000, rm.Quiz.Scores[guest.ID])
	rm.Mu.Unlock()
}

func TestStartGameGuards(t *testing.T) {
	rm, _ := newLobbyRoom(t)
	host := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))

	// A lone active player cannot start.
	require.ErrorIs(t, rm.StartGame(host.ID), ErrInsufficientPlayers)

	// A trackless spectator does not count as active.
	spectator := newTestConn()
	require.NoError(t, rm.Join(spectator, playerFor(spectator, "watcher", 0)))
	require.ErrorIs(t, rm.StartGame(host.ID), ErrInsufficientPlayers)

	guest := newTestConn()
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))

	// Only the host can start.
	require.ErrorIs(t, rm.StartGame(guest.ID), ErrNotHost)

	require.NoError(t, rm.StartGame(host.ID))
	require.Equal(t, StatePlaying, rm.State)

	// No double start.
	require.ErrorIs(t, rm.StartGame(host.ID), ErrGameInProgress)
}

func TestFullGameScenario(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)
	rm := reg.CreateRoom(models.RoomSettings{Questions: 2, Timer: 20}, "AA11")

	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))
	waitEvent(t, host, EventJoined)
	waitEvent(t, guest, EventJoined)

	require.NoError(t, rm.StartGame(host.ID))
	started := waitEvent(t, host, quiz.EventGameStarted)
	require.Equal(t, 2, started["totalQuestions"])
	require.Equal(t, 20, started["timer"])
	waitEvent(t, guest, quiz.EventGameStarted)

	for round := 0; round < 2; round++ {
		if round == 0 {
			clock.Advance(800 * time.Millisecond)
		} else {
			clock.Advance(500 * time.Millisecond)
		}

		q := waitEvent(t, host, quiz.EventQuestion)
		waitEvent(t, guest, quiz.EventQuestion)
		require.Equal(t, round, q["index"])
		_, leaked := q["ownerId"]
		require.False(t, leaked, "question payload must not disclose the owner")

		rm.Mu.Lock()
		owner := rm.Quiz.Questions[round].OwnerID
		rm.Mu.Unlock()
		wrong := host.ID
		if owner == host.ID {
			wrong = guest.ID
		}

		// The guest nails it at full time, the host guesses wrong.
		rm.SubmitAnswer(guest.ID, owner)
		ack := waitEvent(t, guest, quiz.EventAnswerAck)
		require.Equal(t, true, ack["correct"])
		require.Equal(t, 1000, ack["pts"])
		waitEvent(t, host, quiz.EventAnswerCount)

		rm.SubmitAnswer(host.ID, wrong)
		hostAck := waitEvent(t, host, quiz.EventAnswerAck)
		require.Equal(t, false, hostAck["correct"])

		// Everyone answered: the reveal comes without waiting out the timer.
		reveal := waitEvent(t, guest, quiz.EventReveal)
		require.Equal(t, owner.String(), reveal["ownerId"])
		require.Equal(t, round == 1, reveal["isLast"])
		scores := reveal["scores"].(map[string]int)
		require.Equal(t, (round+1)*1000, scores[guest.ID.String()])
		require.Zero(t, scores[host.ID.String()])
		waitEvent(t, host, quiz.EventReveal)

		require.NoError(t, rm.AdvanceQuestion(host.ID))
	}

	over := waitEvent(t, host, quiz.EventGameOver)
	rankings := over["rankings"].([]quiz.RankingEntry)
	require.Len(t, rankings, 2)
	require.Equal(t, guest.ID, rankings[0].ID)
	require.Equal(t, 2000, rankings[0].Score)
	require.Equal(t, host.ID, rankings[1].ID)
	require.Zero(t, rankings[1].Score)

	rm.Mu.Lock()
	require.Equal(t, StateFinished, rm.State)
	rm.Mu.Unlock()
}

func TestQuestionTimeoutRevealsAutomatically(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)
	rm := reg.CreateRoom(models.RoomSettings{Questions: 1, Timer: 3}, "EE99")

	host := newTestConn()
	guest := newTestConn()
	spectator := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))
	require.NoError(t, rm.Join(spectator, playerFor(spectator, "watcher", 0)))

	require.NoError(t, rm.StartGame(host.ID))

	// Only the two active players hold scores.
	rm.Mu.Lock()
	require.Len(t, rm.Quiz.Scores, 2)
	owner := rm.Quiz.Questions[0].OwnerID
	rm.Mu.Unlock()

	clock.Advance(800 * time.Millisecond)
	waitEvent(t, host, quiz.EventQuestion)

	rm.SubmitAnswer(host.ID, owner)
	waitEvent(t, host, quiz.EventAnswerAck)

	// The guest never answers; the countdown runs out and the reveal fires
	// on its own, with the guest absent from the answer map.
	for i := 3; i > 0; i-- {
		clock.Advance(time.Second)
		tick := waitEvent(t, host, quiz.EventTick)
		require.Equal(t, i-1, tick["t"])
	}
	reveal := waitEvent(t, host, quiz.EventReveal)
	answers := reveal["answers"].(map[string]quiz.Answer)
	_, hostAnswered := answers[host.ID.String()]
	require.True(t, hostAnswered)
	_, guestAnswered := answers[guest.ID.String()]
	require.False(t, guestAnswered)
}

func TestMidGameDisconnectDoesNotStallQuestion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)
	rm := reg.CreateRoom(models.RoomSettings{Questions: 1, Timer: 20}, "DD88")

	host := newTestConn()
	guest := newTestConn()
	require.NoError(t, rm.Join(host, playerFor(host, "alice", 3)))
	require.NoError(t, rm.Join(guest, playerFor(guest, "bob", 3)))
	require.NoError(t, rm.StartGame(host.ID))
	clock.Advance(800 * time.Millisecond)
	waitEvent(t, host, quiz.EventQuestion)

	rm.Mu.Lock()
	owner := rm.Quiz.Questions[0].OwnerID
	rm.Mu.Unlock()

	rm.SubmitAnswer(host.ID, owner)
	rm.Leave(guest.ID)

	// The host is the only participant left and has answered, so the reveal
	// fires instead of waiting for the departed player.
	waitEvent(t, host, quiz.EventReveal)
}
