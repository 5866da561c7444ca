package quiz

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/whostune/server/internal/models"
)

func testPlayer(name string, trackCount int) *models.Player {
	p := &models.Player{
		ID:       uuid.New(),
		Name:     name,
		Emoji:    "🎸",
		Platform: "spotify",
	}
	for i := 0; i < trackCount; i++ {
		p.Tracks = append(p.Tracks, models.Track{
			ID:     fmt.Sprintf("%s-track-%d", name, i),
			Title:  fmt.Sprintf("Song %d by %s", i, name),
			Artist: "Artist " + name,
		})
	}
	return p
}

func TestBuildQuestionsRespectsCount(t *testing.T) {
	players := []*models.Player{testPlayer("alice", 10), testPlayer("bob", 10)}

	qs := BuildQuestions(players, 5)
	require.Len(t, qs, 5)
}

func TestBuildQuestionsShortPoolYieldsFewerQuestions(t *testing.T) {
	players := []*models.Player{testPlayer("alice", 2), testPlayer("bob", 1)}

	qs := BuildQuestions(players, 10)
	require.Len(t, qs, 3)
}

func TestBuildQuestionsNoTracks(t *testing.T) {
	players := []*models.Player{testPlayer("alice", 0), testPlayer("bob", 0)}

	qs := BuildQuestions(players, 10)
	require.Empty(t, qs)
}

func TestBuildQuestionsSkipsUntitledTracks(t *testing.T) {
	alice := testPlayer("alice", 0)
	alice.Tracks = []models.Track{
		{ID: "t1", Title: "", Artist: "x"},
		{ID: "t2", Title: "Named", Artist: "y"},
	}
	bob := testPlayer("bob", 0)

	qs := BuildQuestions([]*models.Player{alice, bob}, 10)
	require.Len(t, qs, 1)
	require.Equal(t, "Named", qs[0].Title)
}

func TestBuildQuestionsOwnerAlwaysAnOption(t *testing.T) {
	players := []*models.Player{
		testPlayer("alice", 5),
		testPlayer("bob", 5),
		testPlayer("carol", 5),
		testPlayer("dave", 5),
		testPlayer("erin", 5),
		testPlayer("frank", 5),
	}

	qs := BuildQuestions(players, 20)
	require.NotEmpty(t, qs)

	for _, q := range qs {
		found := false
		for _, opt := range q.Options {
			if opt.ID == q.OwnerID {
				found = true
			}
		}
		require.True(t, found, "owner must appear among the options")
		require.LessOrEqual(t, len(q.Options), 4)
		require.GreaterOrEqual(t, len(q.Options), 2)
	}
}

func TestBuildQuestionsTwoPlayersTwoOptions(t *testing.T) {
	players := []*models.Player{testPlayer("alice", 3), testPlayer("bob", 3)}

	qs := BuildQuestions(players, 6)
	require.NotEmpty(t, qs)
	for _, q := range qs {
		require.Len(t, q.Options, 2)
	}
}

func TestBuildQuestionsCapsTracksPerPlayer(t *testing.T) {
	whale := testPlayer("whale", 100)
	other := testPlayer("other", 1)

	qs := BuildQuestions([]*models.Player{whale, other}, 100)
	// 30 from the whale, 1 from the other player.
	require.Len(t, qs, 31)
}
