package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/config"
	"github.com/iliyamo/reelsplace/internal/handler"
	"github.com/iliyamo/reelsplace/internal/middleware"
)

// Auth carries what the authenticated groups need.
type Auth struct {
	JWTSecret string
	Users     middleware.UserEnsurer
	Log       logrus.FieldLogger
}

// Limits configures the Redis-backed rate limiter and response cache. A
// nil Redis client turns both off.
type Limits struct {
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       logrus.FieldLogger
}

// RegisterRoutes registers the routes that need no authentication:
// liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// authGroup returns a group under prefix that requires a valid bearer
// token and resolves the caller to a local user.
func authGroup(e *echo.Echo, prefix string, a Auth, roles ...string) *echo.Group {
	g := e.Group(prefix)
	g.Use(middleware.JWTAuth(a.JWTSecret))
	if len(roles) > 0 {
		g.Use(middleware.RequireRole(roles...))
	}
	g.Use(middleware.LoadUser(a.Users, a.Log))
	return g
}
