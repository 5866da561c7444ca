package profile

import "math/rand"

// emojis is the avatar pool assigned to players without a chosen emoji.
var emojis = []string{
	"🎸", "🎹", "🥁", "🎷", "🎺", "🎻", "🎤", "🎧",
	"🪗", "🪘", "🎼", "🎵", "🎶", "🔊", "🪕", "🎙",
}

// RandomEmoji picks one avatar from the pool.
func RandomEmoji() string {
	return emojis[rand.Intn(len(emojis))]
}
