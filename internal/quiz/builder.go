package quiz

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/whostune/server/internal/models"
)

// maxTracksPerPlayer caps how many of each player's tracks enter the
// candidate pool, so one huge library cannot dominate the quiz.
const maxTracksPerPlayer = 30

type ownedTrack struct {
	models.Track
	ownerID    uuid.UUID
	ownerName  string
	ownerEmoji string
}

// BuildQuestions produces up to count questions from the active players'
// libraries. Each player's first tracks are tagged with their owner, the
// combined pool is shuffled, and tracks are selected in shuffled order,
// skipping untitled tracks and tracks whose owner cannot be resolved. The
// options list is the true owner plus up to 3 random decoys, shuffled
// together so the answer position is unpredictable.
//
// Selection order is question order and is fixed for the whole game. Fewer
// than count valid tracks is not an error; the quiz is simply shorter. An
// empty result is the caller's signal that the game cannot start.
func BuildQuestions(players []*models.Player, count int) []models.Question {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	var pool []ownedTrack
	for _, p := range players {
		tracks := p.Tracks
		if len(tracks) > maxTracksPerPlayer {
			tracks = tracks[:maxTracksPerPlayer]
		}
		for _, t := range tracks {
			pool = append(pool, ownedTrack{Track: t, ownerID: p.ID, ownerName: p.Name, ownerEmoji: p.Emoji})
		}
	}
	r.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	byID := make(map[uuid.UUID]*models.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	questions := make([]models.Question, 0, count)
	for _, t := range pool {
		if len(questions) >= count {
			break
		}
		if t.Title == "" {
			continue
		}
		owner, ok := byID[t.ownerID]
		if !ok {
			continue
		}

		decoys := make([]*models.Player, 0, len(players)-1)
		for _, p := range players {
			if p.ID != t.ownerID {
				decoys = append(decoys, p)
			}
		}
		r.Shuffle(len(decoys), func(i, j int) {
			decoys[i], decoys[j] = decoys[j], decoys[i]
		})
		if len(decoys) > 3 {
			decoys = decoys[:3]
		}

		choices := append([]*models.Player{owner}, decoys...)
		r.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})

		options := make([]models.PlayerOption, len(choices))
		for i, p := range choices {
			options[i] = models.PlayerOption{ID: p.ID, Name: p.Name, Emoji: p.Emoji, Platform: p.Platform}
		}

		questions = append(questions, models.Question{
			TrackID:    t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			PreviewURL: t.PreviewURL,
			AlbumArt:   t.AlbumArt,
			OwnerID:    t.ownerID,
			OwnerName:  t.ownerName,
			OwnerEmoji: t.ownerEmoji,
			Options:    options,
		})
	}
	return questions
}
