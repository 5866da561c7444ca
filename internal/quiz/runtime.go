package quiz

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/whostune/server/internal/models"
)

// Hand-off pauses between game phases, giving clients time to transition
// screens before the next question payload arrives.
const (
	firstQuestionDelay = 800 * time.Millisecond
	nextQuestionDelay  = 500 * time.Millisecond
)

// basePoints is awarded for any correct answer; up to bonusPoints more are
// added proportionally to the time remaining at the moment of submission.
const (
	basePoints  = 500
	bonusPoints = 500
)

// Answer records one connection's submission for the current question.
type Answer struct {
	AnsweredPlayerID uuid.UUID `json:"answeredPlayerId"`
	Correct          bool      `json:"correct"`
	Points           int       `json:"pts"`
}

// RankingEntry is one row of the final leaderboard.
type RankingEntry struct {
	Rank     int       `json:"rank"`
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Emoji    string    `json:"emoji"`
	Platform string    `json:"platform,omitempty"`
	Score    int       `json:"score"`
}

// BroadcastFunc sends an event payload to every member of the room.
type BroadcastFunc func(event string, payload map[string]interface{})

// BroadcastToFunc sends an event payload to a single connection.
type BroadcastToFunc func(connID uuid.UUID, event string, payload map[string]interface{})

// Runtime drives one game's fixed question sequence: countdown, answer
// collection, scoring, reveal and final rankings. It is created at game
// start and discarded with the room.
//
// All methods with the Unsafe suffix assume the owning room's lock is held.
// The countdown goroutine and delayed question sends re-acquire that same
// lock through mu before touching any state, so every mutation is serialized
// per room. At most one countdown is live at any time; every transition away
// from the answering phase cancels it synchronously.
type Runtime struct {
	Questions []models.Question
	Current   int
	Scores    map[uuid.UUID]int
	Answers   map[uuid.UUID]Answer
	TimeLeft  int

	// players holds the active players in join order; it shares pointers
	// with the room's player list and shrinks when a participant
	// disconnects mid-game.
	players  []*models.Player
	settings models.RoomSettings

	mu    sync.Locker
	clock clockwork.Clock

	// tickStop identifies the live countdown goroutine; a goroutine whose
	// stop channel no longer matches is stale and exits without acting.
	tickStop chan struct{}

	// sendGen invalidates pending question sends the same way the stop
	// channel invalidates ticks.
	sendGen int
	pending clockwork.Timer

	finished bool
	stopped  bool

	Broadcast   BroadcastFunc
	BroadcastTo BroadcastToFunc

	// OnFinished is invoked with the lock held once the final rankings have
	// been broadcast, letting the room flip its state to finished.
	OnFinished func(rankings []RankingEntry)
}

// NewRuntime builds a runtime for the given fixed question sequence. Scores
// are initialized to zero for every active player and never reset.
func NewRuntime(questions []models.Question, players []*models.Player, settings models.RoomSettings, mu sync.Locker, clock clockwork.Clock) *Runtime {
	scores := make(map[uuid.UUID]int, len(players))
	for _, p := range players {
		scores[p.ID] = 0
	}
	return &Runtime{
		Questions: questions,
		Scores:    scores,
		Answers:   make(map[uuid.UUID]Answer),
		players:   players,
		settings:  settings,
		mu:        mu,
		clock:     clock,
	}
}

// BeginUnsafe broadcasts the game-start summary and schedules the first
// question after a short hand-off pause.
func (rt *Runtime) BeginUnsafe() {
	views := make([]map[string]interface{}, len(rt.players))
	for i, p := range rt.players {
		views[i] = p.View()
	}
	rt.broadcastUnsafe(EventGameStarted, map[string]interface{}{
		"totalQuestions": len(rt.Questions),
		"timer":          rt.settings.Timer,
		"players":        views,
	})
	rt.scheduleSendUnsafe(firstQuestionDelay)
}

// scheduleSendUnsafe arms a delayed sendQuestion. The generation counter
// guards against a stale callback firing after the game moved on.
func (rt *Runtime) scheduleSendUnsafe(delay time.Duration) {
	rt.cancelPendingUnsafe()
	gen := rt.sendGen
	rt.pending = rt.clock.AfterFunc(delay, func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.stopped || rt.finished || gen != rt.sendGen {
			return
		}
		rt.sendQuestionUnsafe()
	})
}

func (rt *Runtime) cancelPendingUnsafe() {
	rt.sendGen++
	if rt.pending != nil {
		rt.pending.Stop()
		rt.pending = nil
	}
}

// sendQuestionUnsafe arms the current question: resets the answer map,
// restores the countdown, and broadcasts the payload. The true owner is
// withheld; it is disclosed only at reveal.
func (rt *Runtime) sendQuestionUnsafe() {
	if rt.Current < 0 || rt.Current >= len(rt.Questions) {
		return
	}
	q := rt.Questions[rt.Current]

	rt.Answers = make(map[uuid.UUID]Answer)
	rt.TimeLeft = rt.settings.Timer

	rt.broadcastUnsafe(EventQuestion, map[string]interface{}{
		"index":      rt.Current,
		"total":      len(rt.Questions),
		"title":      q.Title,
		"artist":     q.Artist,
		"previewUrl": q.PreviewURL,
		"albumArt":   q.AlbumArt,
		"options":    q.Options,
		"timer":      rt.settings.Timer,
	})

	rt.startCountdownUnsafe()
}

// startCountdownUnsafe spawns the one-second countdown goroutine. Any
// previous countdown is cancelled first so exactly one is ever live.
func (rt *Runtime) startCountdownUnsafe() {
	rt.stopCountdownUnsafe()

	stop := make(chan struct{})
	rt.tickStop = stop
	ticker := rt.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				rt.mu.Lock()
				if rt.stopped || rt.finished || rt.tickStop != stop {
					rt.mu.Unlock()
					return
				}
				rt.tickUnsafe()
				rt.mu.Unlock()
			}
		}
	}()
}

// stopCountdownUnsafe cancels the live countdown, if any.
func (rt *Runtime) stopCountdownUnsafe() {
	if rt.tickStop != nil {
		close(rt.tickStop)
		rt.tickStop = nil
	}
}

// tickUnsafe decrements the clock, broadcasts the remaining time, and
// triggers the reveal when time runs out.
func (rt *Runtime) tickUnsafe() {
	rt.TimeLeft--
	rt.broadcastUnsafe(EventTick, map[string]interface{}{"t": rt.TimeLeft})
	if rt.TimeLeft <= 0 {
		rt.stopCountdownUnsafe()
		rt.revealUnsafe()
	}
}

// SubmitAnswerUnsafe records a connection's guess for the current question.
// Late or duplicate submissions are silently ignored. A correct answer earns
// the base points plus a time bonus proportional to the time remaining at
// submission, credited to the running score immediately. The submitter gets
// a private ack; the room gets the running answered count. Once every
// remaining active player has answered, the countdown is cancelled and the
// reveal proceeds early.
func (rt *Runtime) SubmitAnswerUnsafe(connID, answeredPlayerID uuid.UUID) {
	if rt.stopped || rt.finished {
		return
	}
	if rt.tickStop == nil {
		// No countdown live: question not armed yet or already revealed.
		return
	}
	if _, already := rt.Answers[connID]; already {
		return
	}

	q := rt.Questions[rt.Current]
	correct := answeredPlayerID == q.OwnerID
	pts := 0
	if correct {
		bonus := int(math.Round(float64(rt.TimeLeft) / float64(rt.settings.Timer) * bonusPoints))
		pts = basePoints + bonus
	}

	rt.Answers[connID] = Answer{AnsweredPlayerID: answeredPlayerID, Correct: correct, Points: pts}
	if correct {
		if _, scored := rt.Scores[connID]; scored {
			rt.Scores[connID] += pts
		}
	}

	rt.broadcastToUnsafe(connID, EventAnswerAck, map[string]interface{}{
		"correct":         correct,
		"pts":             pts,
		"correctPlayerId": q.OwnerID.String(),
	})
	rt.broadcastUnsafe(EventAnswerCount, map[string]interface{}{
		"answered": len(rt.Answers),
		"total":    len(rt.players),
	})

	if len(rt.Answers) >= len(rt.players) {
		rt.stopCountdownUnsafe()
		rt.revealUnsafe()
	}
}

// revealUnsafe discloses the true owner, every connection's result for this
// question, and the full scoreboard. The isLast flag is informational; the
// host's explicit advance drives the transition.
func (rt *Runtime) revealUnsafe() {
	if rt.Current < 0 || rt.Current >= len(rt.Questions) {
		return
	}
	q := rt.Questions[rt.Current]

	answers := make(map[string]Answer, len(rt.Answers))
	for id, a := range rt.Answers {
		answers[id.String()] = a
	}

	rt.broadcastUnsafe(EventReveal, map[string]interface{}{
		"ownerId":    q.OwnerID.String(),
		"ownerName":  q.OwnerName,
		"ownerEmoji": q.OwnerEmoji,
		"title":      q.Title,
		"artist":     q.Artist,
		"answers":    answers,
		"scores":     rt.scoreboardUnsafe(),
		"isLast":     rt.Current >= len(rt.Questions)-1,
	})
}

// AdvanceUnsafe moves to the next question on the host's signal, or ends the
// game when the sequence is exhausted.
func (rt *Runtime) AdvanceUnsafe() {
	if rt.stopped || rt.finished {
		return
	}
	rt.stopCountdownUnsafe()
	rt.Current++
	if rt.Current >= len(rt.Questions) {
		rt.endGameUnsafe()
		return
	}
	rt.scheduleSendUnsafe(nextQuestionDelay)
}

// endGameUnsafe cancels any live timers, computes the final leaderboard and
// broadcasts it, then hands control back to the room via OnFinished.
func (rt *Runtime) endGameUnsafe() {
	if rt.finished {
		return
	}
	rt.finished = true
	rt.stopCountdownUnsafe()
	rt.cancelPendingUnsafe()

	rankings := rt.RankingsUnsafe()
	rt.broadcastUnsafe(EventGameOver, map[string]interface{}{"rankings": rankings})

	if rt.OnFinished != nil {
		rt.OnFinished(rankings)
	}
}

// RankingsUnsafe returns the leaderboard: descending score, ties broken by
// original join order (the stable sort over the join-ordered player list).
func (rt *Runtime) RankingsUnsafe() []RankingEntry {
	ranked := make([]*models.Player, len(rt.players))
	copy(ranked, rt.players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rt.Scores[ranked[i].ID] > rt.Scores[ranked[j].ID]
	})

	entries := make([]RankingEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = RankingEntry{
			Rank:     i + 1,
			ID:       p.ID,
			Name:     p.Name,
			Emoji:    p.Emoji,
			Platform: p.Platform,
			Score:    rt.Scores[p.ID],
		}
	}
	return entries
}

// HandleDisconnectUnsafe drops a departed participant from the remaining
// active set. Their score survives in case they reconnect before the game
// ends, but the everyone-answered threshold shrinks so a question never
// stalls waiting for a player who is gone.
func (rt *Runtime) HandleDisconnectUnsafe(connID uuid.UUID) {
	for i, p := range rt.players {
		if p.ID == connID {
			rt.players = append(rt.players[:i], rt.players[i+1:]...)
			break
		}
	}
	if rt.stopped || rt.finished || rt.tickStop == nil {
		return
	}
	if len(rt.players) > 0 && len(rt.Answers) >= len(rt.players) {
		rt.stopCountdownUnsafe()
		rt.revealUnsafe()
	}
}

// ReconnectUnsafe re-keys a participant's score and current answer when the
// room rewires a known session to a fresh connection id.
func (rt *Runtime) ReconnectUnsafe(oldID, newID uuid.UUID) {
	if s, ok := rt.Scores[oldID]; ok {
		delete(rt.Scores, oldID)
		rt.Scores[newID] = s
	}
	if a, ok := rt.Answers[oldID]; ok {
		delete(rt.Answers, oldID)
		rt.Answers[newID] = a
	}
}

// RejoinUnsafe restores a reconnecting player into the remaining active set
// if they were dropped by a disconnect mid-game.
func (rt *Runtime) RejoinUnsafe(p *models.Player) {
	for _, existing := range rt.players {
		if existing.ID == p.ID {
			return
		}
	}
	if _, scored := rt.Scores[p.ID]; scored {
		rt.players = append(rt.players, p)
	}
}

// StopUnsafe tears the runtime down when its room is destroyed or replaced.
// No callback may mutate a superseded runtime afterwards.
func (rt *Runtime) StopUnsafe() {
	rt.stopped = true
	rt.stopCountdownUnsafe()
	rt.cancelPendingUnsafe()
}

// Finished reports whether the final rankings have been broadcast. Assumes
// the room lock is held.
func (rt *Runtime) Finished() bool {
	return rt.finished
}

func (rt *Runtime) scoreboardUnsafe() map[string]int {
	scores := make(map[string]int, len(rt.Scores))
	for id, s := range rt.Scores {
		scores[id.String()] = s
	}
	return scores
}

func (rt *Runtime) broadcastUnsafe(event string, payload map[string]interface{}) {
	if rt.Broadcast == nil {
		log.Warnf("quiz: no broadcast function wired, dropping %q", event)
		return
	}
	rt.Broadcast(event, payload)
}

func (rt *Runtime) broadcastToUnsafe(connID uuid.UUID, event string, payload map[string]interface{}) {
	if rt.BroadcastTo == nil {
		log.Warnf("quiz: no private broadcast function wired, dropping %q", event)
		return
	}
	rt.BroadcastTo(connID, event, payload)
}
