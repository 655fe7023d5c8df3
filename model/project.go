package model

import "time"

// ProjectRecord represents a lightweight workspace built around an uploaded
// audio file. One is created automatically per upload; clients may then
// attach lyrics and extra assets to it.
type ProjectRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AudioID     string    `json:"audioId"`
	LyricsID    string    `json:"lyricsId,omitempty"` // blob key suffix under "lyrics/"
	AssetIDs    []string  `json:"assetIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
