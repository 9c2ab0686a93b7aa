package model

import "time"

// MaxPlaceImages caps how many photos are stored per place.
const MaxPlaceImages = 3

// Place is a point of interest resolved through the place search provider
// and owned by a single user. A user owns at most one place per
// ExternalPlaceID.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – owner of the place.
//  ExternalPlaceID – provider identifier, unique per user.
//  Name            – display name returned by the provider.
//  Address         – formatted address returned by the provider.
//  Rating          – average rating with one fractional digit (nullable).
//  ReviewCount     – number of ratings (nullable).
//  Images          – up to MaxPlaceImages photos ordered by SortOrder.
//  CreatedAt       – creation timestamp.
type Place struct {
	ID              uint64       // places.id
	UserID          uint64       // places.user_id
	ExternalPlaceID string       // places.external_place_id
	Name            string       // places.name
	Address         string       // places.address
	Rating          *float64     // places.rating (nullable)
	ReviewCount     *int         // places.review_count (nullable)
	Images          []PlaceImage // place_images rows
	CreatedAt       time.Time    // places.created_at
}

// PlaceImage is one photo of a place. SortOrder 0 is the primary image.
type PlaceImage struct {
	ID        uint64 // place_images.id
	PlaceID   uint64 // place_images.place_id
	ImageURL  string // place_images.image_url
	SortOrder int    // place_images.sort_order
}

// ReelPlace links a reel to a place found in its caption. Rows are only
// ever inserted.
type ReelPlace struct {
	ID        uint64    // reel_places.id
	ReelID    uint64    // reel_places.reel_id
	PlaceID   uint64    // reel_places.place_id
	CreatedAt time.Time // reel_places.created_at
}
