package models

// Track is one normalized song entry from a player's linked music platform.
// PreviewURL and AlbumArt may be empty; the quiz still uses such tracks as
// long as the title is present.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	PreviewURL string `json:"previewUrl,omitempty"`
	AlbumArt   string `json:"albumArt,omitempty"`
}
