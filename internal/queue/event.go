// Package queue defines message payloads exchanged over the message broker
// and the consumer that runs the reel pipeline from the process queue.
package queue

import "time"

// ReelProcessRequested asks a worker to run the full pipeline for a reel.
// It is published when a reel is submitted and when a run is re-triggered.
type ReelProcessRequested struct {
	ReelID      uint64    `json:"reel_id"`
	UserID      uint64    `json:"user_id"`
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// PlaceFoundEvent is published when a run linked at least one place to a
// reel. The push delivery service consumes it to notify the owner.
type PlaceFoundEvent struct {
	UserID     uint64    `json:"user_id"`
	ReelID     uint64    `json:"reel_id"`
	PlaceCount int       `json:"place_count"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}
