package model

import "time"

// AudioRecord represents a stored audio file and everything known about it.
// The raw bytes live in blob storage under "audio/{id}"; this record is the
// KV-store entry describing them.
type AudioRecord struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"contentType"`
	Size        int64          `json:"size"`
	FileHash    string         `json:"fileHash"` // SHA-256 of the file bytes, lowercase hex
	Metadata    *AudioMetadata `json:"metadata,omitempty"`
	CoverArt    *CoverArt      `json:"coverArt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// AudioMetadata holds tag data extracted from the file itself.
type AudioMetadata struct {
	Title    string   `json:"title,omitempty"`
	Artist   string   `json:"artist,omitempty"`
	Album    string   `json:"album,omitempty"`
	Year     int      `json:"year,omitempty"`
	Genre    []string `json:"genre,omitempty"`
	Duration float64  `json:"duration,omitempty"` // seconds
}

// CoverArt describes embedded artwork stored as its own blob under
// "covers/{id}".
type CoverArt struct {
	ID     string `json:"id"`
	Format string `json:"format"` // MIME type, e.g. image/jpeg
	Size   int64  `json:"size"`
}
