package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/reelsplace/internal/database"
	"github.com/iliyamo/reelsplace/internal/model"
)

// UserRepo reads and writes users and their stored counters.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo constructs a UserRepo with the provided DB handle.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureBySubject returns the user with the identity provider subject,
// creating it on first sight.
func (r *UserRepo) EnsureBySubject(ctx context.Context, subject, nickname, role string) (model.User, error) {
	subject = strings.TrimSpace(subject)
	u, err := r.GetBySubject(ctx, subject)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return u, err
	}
	if role == "" {
		role = model.RoleUser
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (subject, nickname, role, created_at) VALUES (?, ?, ?, ?)",
		subject, nickname, role, now)
	if err != nil {
		if database.IsDuplicate(err) {
			// Lost a race with another request for the same subject.
			return r.GetBySubject(ctx, subject)
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: uint64(id), Subject: subject, Nickname: nickname, Role: role, CreatedAt: now}, nil
}

// GetBySubject fetches a user by identity provider subject.
func (r *UserRepo) GetBySubject(ctx context.Context, subject string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT id, subject, nickname, role, created_at FROM users WHERE subject = ? LIMIT 1", subject))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT id, subject, nickname, role, created_at FROM users WHERE id = ? LIMIT 1", id))
}

// RecordMapOpen increments the user's map-open counter and stamps the time.
func (r *UserRepo) RecordMapOpen(ctx context.Context, userID uint64) error {
	now := time.Now().UTC()
	const qUpdate = "UPDATE user_stats SET map_open_count = map_open_count + 1, last_opened_at = ? WHERE user_id = ?"
	res, err := r.db.ExecContext(ctx, qUpdate, now, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO user_stats (user_id, map_open_count, last_opened_at) VALUES (?, 1, ?)", userID, now)
	if database.IsDuplicate(err) {
		_, err = r.db.ExecContext(ctx, qUpdate, now, userID)
	}
	return err
}

// Stats returns the stored counters merged with live reel and place counts.
func (r *UserRepo) Stats(ctx context.Context, userID uint64) (model.UserStats, error) {
	st := model.UserStats{UserID: userID}
	const q = `SELECT
	             (SELECT COUNT(1) FROM reels WHERE user_id = ?),
	             (SELECT COUNT(1) FROM places WHERE user_id = ?)`
	if err := r.db.QueryRowContext(ctx, q, userID, userID).Scan(&st.ReelCount, &st.PlaceCount); err != nil {
		return st, err
	}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT map_open_count, last_opened_at FROM user_stats WHERE user_id = ?", userID).
		Scan(&st.MapOpenCount, &last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, err
	}
	if last.Valid {
		t := last.Time
		st.LastOpenedAt = &t
	}
	return st, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Subject, &u.Nickname, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}
