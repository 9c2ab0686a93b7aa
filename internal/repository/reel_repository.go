package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/reelsplace/internal/database"
	"github.com/iliyamo/reelsplace/internal/model"
)

const reelColumns = "id, user_id, reel_url, thumbnail_url, caption, status, created_at, updated_at"

// ReelRepo encapsulates all database queries related to reels.
type ReelRepo struct {
	db *sql.DB
}

// NewReelRepo constructs a ReelRepo with the provided DB handle.
func NewReelRepo(db *sql.DB) *ReelRepo {
	return &ReelRepo{db: db}
}

// ReelFilter narrows a reel listing. A zero Status lists every status.
type ReelFilter struct {
	UserID uint64
	Status model.ReelStatus
}

// Create inserts a new reel in the PROCESSING state. It returns
// ErrDuplicate when the user already saved the same URL.
func (r *ReelRepo) Create(ctx context.Context, userID uint64, reelURL string) (model.Reel, error) {
	now := time.Now().UTC()
	const q = "INSERT INTO reels (user_id, reel_url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, q, userID, reelURL, model.StatusProcessing, now, now)
	if err != nil {
		if database.IsDuplicate(err) {
			return model.Reel{}, ErrDuplicate
		}
		return model.Reel{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reel{}, err
	}
	return model.Reel{
		ID:        uint64(id),
		UserID:    userID,
		ReelURL:   reelURL,
		Status:    model.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetByID fetches a reel regardless of owner. It returns ErrNotFound if no
// row exists.
func (r *ReelRepo) GetByID(ctx context.Context, id uint64) (model.Reel, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, "SELECT "+reelColumns+" FROM reels WHERE id = ?", id))
}

// GetForUser fetches a reel only if it belongs to userID. A reel owned by
// someone else is reported as ErrNotFound so ids cannot be probed.
func (r *ReelRepo) GetForUser(ctx context.Context, id, userID uint64) (model.Reel, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, "SELECT "+reelColumns+" FROM reels WHERE id = ? AND user_id = ?", id, userID))
}

// ExistsByURL reports whether the user already saved reelURL.
func (r *ReelRepo) ExistsByURL(ctx context.Context, userID uint64, reelURL string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM reels WHERE user_id = ? AND reel_url = ?", userID, reelURL).Scan(&n)
	return n > 0, err
}

// UpdateMetadata stores the fetched caption and thumbnail.
func (r *ReelRepo) UpdateMetadata(ctx context.Context, id uint64, caption, thumbnailURL string) error {
	const q = "UPDATE reels SET caption = ?, thumbnail_url = ?, updated_at = ? WHERE id = ?"
	return r.execOne(ctx, q, caption, thumbnailURL, time.Now().UTC(), id)
}

// UpdateStatus moves the reel to status.
func (r *ReelRepo) UpdateStatus(ctx context.Context, id uint64, status model.ReelStatus) error {
	const q = "UPDATE reels SET status = ?, updated_at = ? WHERE id = ?"
	return r.execOne(ctx, q, status, time.Now().UTC(), id)
}

// List returns one page of the user's reels, newest first, together with
// the total number of reels matching the filter.
func (r *ReelRepo) List(ctx context.Context, f ReelFilter, page Page) ([]model.Reel, int, error) {
	where := sq.And{sq.Eq{"user_id": f.UserID}}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}

	countSQL, countArgs, err := sq.Select("COUNT(1)").From("reels").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q, args, err := page.apply(sq.Select(reelColumns).From("reels").Where(where).OrderBy("created_at DESC", "id DESC")).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Reel{}
	for rows.Next() {
		reel, err := scanReel(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, reel)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Delete removes the reel if it belongs to userID. Links to places go with
// it; the places themselves stay.
func (r *ReelRepo) Delete(ctx context.Context, id, userID uint64) error {
	return r.execOne(ctx, "DELETE FROM reels WHERE id = ? AND user_id = ?", id, userID)
}

// CountByUser returns how many reels the user saved.
func (r *ReelRepo) CountByUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM reels WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

func (r *ReelRepo) scanOne(row *sql.Row) (model.Reel, error) {
	reel, err := scanReel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reel{}, ErrNotFound
	}
	return reel, err
}

// execOne runs a single-row write and maps zero affected rows to
// ErrNotFound.
func (r *ReelRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReel(s rowScanner) (model.Reel, error) {
	var (
		reel      model.Reel
		thumbnail sql.NullString
		caption   sql.NullString
		status    string
	)
	if err := s.Scan(&reel.ID, &reel.UserID, &reel.ReelURL, &thumbnail, &caption, &status, &reel.CreatedAt, &reel.UpdatedAt); err != nil {
		return model.Reel{}, err
	}
	if thumbnail.Valid {
		reel.ThumbnailURL = &thumbnail.String
	}
	if caption.Valid {
		reel.Caption = &caption.String
	}
	reel.Status = model.ReelStatus(status)
	return reel, nil
}
