package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/reelsplace/internal/database"
	"github.com/iliyamo/reelsplace/internal/model"
)

// ReelPlaceRepo stores the links between reels and the places found in
// their captions. Links are only ever inserted, at most once per pair.
type ReelPlaceRepo struct {
	db *sql.DB
}

// NewReelPlaceRepo constructs a ReelPlaceRepo with the provided DB handle.
func NewReelPlaceRepo(db *sql.DB) *ReelPlaceRepo {
	return &ReelPlaceRepo{db: db}
}

// Create links reelID to placeID. An existing link is returned unchanged.
func (r *ReelPlaceRepo) Create(ctx context.Context, reelID, placeID uint64) (model.ReelPlace, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reel_places (reel_id, place_id, created_at) VALUES (?, ?, ?)",
		reelID, placeID, now)
	if err != nil {
		if database.IsDuplicate(err) {
			return r.find(ctx, reelID, placeID)
		}
		return model.ReelPlace{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ReelPlace{}, err
	}
	return model.ReelPlace{ID: uint64(id), ReelID: reelID, PlaceID: placeID, CreatedAt: now}, nil
}

func (r *ReelPlaceRepo) find(ctx context.Context, reelID, placeID uint64) (model.ReelPlace, error) {
	var rp model.ReelPlace
	err := r.db.QueryRowContext(ctx,
		"SELECT id, reel_id, place_id, created_at FROM reel_places WHERE reel_id = ? AND place_id = ?",
		reelID, placeID).Scan(&rp.ID, &rp.ReelID, &rp.PlaceID, &rp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReelPlace{}, ErrNotFound
	}
	return rp, err
}
