package model

import "time"

// ReelStatus is the pipeline state of a reel. A reel starts in
// StatusProcessing and ends in exactly one of the other values.
type ReelStatus string

const (
	StatusProcessing    ReelStatus = "PROCESSING"
	StatusFailed        ReelStatus = "FAILED"
	StatusNoAddress     ReelStatus = "NO_ADDRESS"
	StatusPlaceFound    ReelStatus = "PLACE_FOUND"
	StatusPlaceNotFound ReelStatus = "PLACE_NOT_FOUND"
)

// Valid reports whether s is one of the known statuses.
func (s ReelStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusFailed, StatusNoAddress, StatusPlaceFound, StatusPlaceNotFound:
		return true
	}
	return false
}

// Terminal reports whether the pipeline never moves a reel out of s.
func (s ReelStatus) Terminal() bool {
	return s.Valid() && s != StatusProcessing
}

// Reel represents a saved short video link and the outcome of mining its
// caption for places.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – owner of the reel.
//  ReelURL      – link as submitted, unique per user.
//  ThumbnailURL – preview image derived from the link (nullable).
//  Caption      – caption text fetched from the source (nullable).
//  Status       – pipeline state.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Reel struct {
	ID           uint64     // reels.id
	UserID       uint64     // reels.user_id
	ReelURL      string     // reels.reel_url
	ThumbnailURL *string    // reels.thumbnail_url (nullable)
	Caption      *string    // reels.caption (nullable)
	Status       ReelStatus // reels.status
	CreatedAt    time.Time  // reels.created_at
	UpdatedAt    time.Time  // reels.updated_at
}

// CaptionText returns the caption or an empty string when none was stored.
func (r Reel) CaptionText() string {
	if r.Caption == nil {
		return ""
	}
	return *r.Caption
}
