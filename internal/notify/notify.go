// Package notify tells a user that places were found in one of their reels.
// Delivery is handed to the broker; a failed hand-off is reported in the
// result and never as an error.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/queue"
	"github.com/iliyamo/reelsplace/internal/repository"
)

// ErrUserNotFound is returned when the recipient does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserStore looks up the recipient.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// EventPublisher hands the event to the delivery service.
type EventPublisher interface {
	PublishPlaceFound(ctx context.Context, ev queue.PlaceFoundEvent) error
}

// Result describes one notification attempt.
type Result struct {
	UserID  uint64    `json:"user_id"`
	ReelID  uint64    `json:"reel_id"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// Service sends place-found notifications.
type Service struct {
	users UserStore
	pub   EventPublisher
	log   logrus.FieldLogger
}

// NewService returns a Service. A nil publisher logs the message instead of
// publishing it, which is what local runs without a broker use.
func NewService(users UserStore, pub EventPublisher, log logrus.FieldLogger) *Service {
	return &Service{users: users, pub: pub, log: log.WithField("component", "notify")}
}

// Message is the text shown to the user for count places.
func Message(count int) string {
	return fmt.Sprintf("릴스에서 장소 %d곳을 찾았어요! 🎉", count)
}

// NotifyPlaceFound notifies userID that count places were linked to reelID.
func (s *Service) NotifyPlaceFound(ctx context.Context, userID, reelID uint64, count int) (Result, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrUserNotFound
		}
		return Result{}, err
	}

	res := Result{UserID: userID, ReelID: reelID, Message: Message(count), SentAt: time.Now().UTC()}
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "reel_id": reelID, "place_count": count})
	if s.pub == nil {
		log.Info(res.Message)
		res.Success = true
		return res, nil
	}

	err := s.pub.PublishPlaceFound(ctx, queue.PlaceFoundEvent{
		UserID:     userID,
		ReelID:     reelID,
		PlaceCount: count,
		Message:    res.Message,
		SentAt:     res.SentAt,
	})
	if err != nil {
		log.WithError(err).Warn("place found notification not delivered")
		return res, nil
	}
	res.Success = true
	log.Info("place found notification queued")
	return res, nil
}
