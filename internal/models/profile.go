package models

// PlayerMusicProfile is the normalized output of the external music-provider
// resolver: whatever OAuth/track-fetching produced it, the coordinator only
// sees this shape. Tracks may be empty and Platform may be blank when no
// account is linked; such players are lobby-visible but quiz-inactive.
type PlayerMusicProfile struct {
	Name     string  `json:"name"`
	Emoji    string  `json:"emoji"`
	Platform string  `json:"platform,omitempty"`
	Tracks   []Track `json:"tracks"`
}
