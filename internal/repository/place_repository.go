package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/reelsplace/internal/database"
	"github.com/iliyamo/reelsplace/internal/model"
)

const placeColumns = "id, user_id, external_place_id, name, address, rating, review_count, created_at"

// PlaceRepo encapsulates all database queries related to places and their
// images. A place and its images are always written together.
type PlaceRepo struct {
	db *sql.DB
}

// NewPlaceRepo constructs a PlaceRepo with the provided DB handle.
func NewPlaceRepo(db *sql.DB) *PlaceRepo {
	return &PlaceRepo{db: db}
}

// FindByExternalID loads the user's place with provider id externalID,
// including its images. It returns ErrNotFound when there is none.
func (r *PlaceRepo) FindByExternalID(ctx context.Context, userID uint64, externalID string) (model.Place, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+placeColumns+" FROM places WHERE user_id = ? AND external_place_id = ?",
		userID, externalID)
	return r.loadOne(ctx, row)
}

// GetForUser loads a place by id if it belongs to userID.
func (r *PlaceRepo) GetForUser(ctx context.Context, id, userID uint64) (model.Place, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+placeColumns+" FROM places WHERE id = ? AND user_id = ?", id, userID)
	return r.loadOne(ctx, row)
}

// Create inserts p and its images in one transaction and fills in the
// generated ids. Images are stored with sort orders 0..n-1 in slice order.
// It returns ErrDuplicate when the user already owns a place with the same
// external id.
func (r *PlaceRepo) Create(ctx context.Context, p *model.Place) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p.CreatedAt = time.Now().UTC()
	var rating, reviews any
	if p.Rating != nil {
		rating = math.Round(*p.Rating*10) / 10
	}
	if p.ReviewCount != nil {
		reviews = *p.ReviewCount
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO places (user_id, external_place_id, name, address, rating, review_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		p.UserID, p.ExternalPlaceID, p.Name, p.Address, rating, reviews, p.CreatedAt)
	if err != nil {
		if database.IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)

	for i := range p.Images {
		img := &p.Images[i]
		img.PlaceID = p.ID
		img.SortOrder = i
		res, err := tx.ExecContext(ctx,
			"INSERT INTO place_images (place_id, image_url, sort_order) VALUES (?, ?, ?)",
			img.PlaceID, img.ImageURL, img.SortOrder)
		if err != nil {
			return err
		}
		imgID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		img.ID = uint64(imgID)
	}
	return tx.Commit()
}

// ListByUser returns one page of the user's places, newest first, with
// images, and the total number of places.
func (r *PlaceRepo) ListByUser(ctx context.Context, userID uint64, page Page) ([]model.Place, int, error) {
	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	q, args, err := page.apply(sq.Select(placeColumns).From("places").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	places, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return places, total, nil
}

// ListByReel returns the places linked to a reel in link order.
func (r *PlaceRepo) ListByReel(ctx context.Context, reelID uint64) ([]model.Place, error) {
	const q = `SELECT p.id, p.user_id, p.external_place_id, p.name, p.address, p.rating, p.review_count, p.created_at
	           FROM reel_places rp JOIN places p ON p.id = rp.place_id
	           WHERE rp.reel_id = ? ORDER BY rp.id`
	return r.query(ctx, q, reelID)
}

// Delete removes the place if it belongs to userID. Images and reel links
// are removed by cascade.
func (r *PlaceRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM places WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByUser returns how many places the user owns.
func (r *PlaceRepo) CountByUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM places WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

func (r *PlaceRepo) loadOne(ctx context.Context, row *sql.Row) (model.Place, error) {
	p, err := scanPlace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Place{}, ErrNotFound
		}
		return model.Place{}, err
	}
	places := []model.Place{p}
	if err := r.attachImages(ctx, places); err != nil {
		return model.Place{}, err
	}
	return places[0], nil
}

func (r *PlaceRepo) query(ctx context.Context, q string, args ...any) ([]model.Place, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []model.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	// Close before the image query; SQLite runs on a single connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachImages(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachImages loads the images of every place in one query.
func (r *PlaceRepo) attachImages(ctx context.Context, places []model.Place) error {
	if len(places) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(places))
	index := make(map[uint64][]int, len(places))
	for i, p := range places {
		if _, ok := index[p.ID]; !ok {
			ids = append(ids, p.ID)
		}
		index[p.ID] = append(index[p.ID], i)
	}
	q, args, err := sq.Select("id, place_id, image_url, sort_order").From("place_images").
		Where(sq.Eq{"place_id": ids}).
		OrderBy("place_id", "sort_order").ToSql()
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var img model.PlaceImage
		if err := rows.Scan(&img.ID, &img.PlaceID, &img.ImageURL, &img.SortOrder); err != nil {
			return err
		}
		for _, i := range index[img.PlaceID] {
			places[i].Images = append(places[i].Images, img)
		}
	}
	return rows.Err()
}

func scanPlace(s rowScanner) (model.Place, error) {
	var (
		p       model.Place
		rating  sql.NullFloat64
		reviews sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.UserID, &p.ExternalPlaceID, &p.Name, &p.Address, &rating, &reviews, &p.CreatedAt); err != nil {
		return model.Place{}, err
	}
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}
	if reviews.Valid {
		v := int(reviews.Int64)
		p.ReviewCount = &v
	}
	return p, nil
}
