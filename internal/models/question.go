package models

import "github.com/google/uuid"

// PlayerOption is one answer choice shown under a question. The true owner
// is always among the options, shuffled in with the decoys.
type PlayerOption struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Emoji    string    `json:"emoji"`
	Platform string    `json:"platform,omitempty"`
}

// Question is immutable once built. The owner fields are withheld from the
// question broadcast and disclosed only at reveal.
type Question struct {
	TrackID    string         `json:"trackId"`
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	PreviewURL string         `json:"previewUrl,omitempty"`
	AlbumArt   string         `json:"albumArt,omitempty"`
	OwnerID    uuid.UUID      `json:"ownerId"`
	OwnerName  string         `json:"ownerName"`
	OwnerEmoji string         `json:"ownerEmoji"`
	Options    []PlayerOption `json:"options"`
}
