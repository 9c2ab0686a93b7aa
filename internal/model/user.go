package model

import "time"

// User represents an account as stored in the `users` table. Accounts are
// created from the identity provider's subject, so no credentials are kept.
//
// Fields:
//  ID        – primary key identifier.
//  Subject   – identity provider subject, unique.
//  Nickname  – display name used in notifications.
//  Role      – USER or SERVICE.
//  CreatedAt – timestamp of creation.
type User struct {
	ID        uint64    // users.id
	Subject   string    // users.subject
	Nickname  string    // users.nickname
	Role      string    // users.role
	CreatedAt time.Time // users.created_at
}

const (
	RoleUser    = "USER"
	RoleService = "SERVICE"
)

// UserStats aggregates per-user counters shown on the profile screen.
// ReelCount and PlaceCount are computed; MapOpenCount and LastOpenedAt are
// stored in `user_stats`.
type UserStats struct {
	UserID       uint64
	ReelCount    int
	PlaceCount   int
	MapOpenCount int
	LastOpenedAt *time.Time
}
