package middleware

// identity.go turns the token subject into a local user id. The first
// authenticated request of a subject creates its user row.

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/model"
)

// Context keys set by JWTAuth and LoadUser.
const (
	CtxSubject   = "subject"
	CtxRole      = "role"
	CtxNickname  = "nickname"
	CtxUserID    = "user_id"
	CtxRequestID = "request_id"
)

// UserEnsurer finds or creates the user for a subject.
type UserEnsurer interface {
	EnsureBySubject(ctx context.Context, subject, nickname, role string) (model.User, error)
}

// LoadUser stores the caller's user id under CtxUserID. It must run after
// JWTAuth.
func LoadUser(users UserEnsurer, log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, _ := c.Get(CtxSubject).(string)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			role, _ := c.Get(CtxRole).(string)
			nickname, _ := c.Get(CtxNickname).(string)

			u, err := users.EnsureBySubject(c.Request().Context(), sub, nickname, role)
			if err != nil {
				log.WithError(err).WithField("subject", sub).Error("load user failed")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_SERVER_ERROR"})
			}
			c.Set(CtxUserID, u.ID)
			return next(c)
		}
	}
}

// UserID returns the id stored by LoadUser.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(CtxUserID).(uint64)
	return id, ok && id != 0
}

// userKey identifies the caller in cache and rate limit keys.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	if sub, ok := c.Get(CtxSubject).(string); ok && sub != "" {
		return "sub-" + sub
	}
	return "anon"
}
