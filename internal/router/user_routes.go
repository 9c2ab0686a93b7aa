package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reelsplace/internal/handler"
	"github.com/iliyamo/reelsplace/internal/middleware"
	"github.com/iliyamo/reelsplace/internal/model"
)

// RegisterUser registers the endpoints a signed-in user calls: reel
// submission and listing, saved places and profile stats. Writes are rate
// limited per user; listings are cached per user.
func RegisterUser(e *echo.Echo, reels *handler.ReelHandler, places *handler.PlaceHandler, a Auth, l Limits) {
	g := authGroup(e, "/v1", a, model.RoleUser, model.RoleService)

	limit := middleware.NewTokenBucket(l.RateLimit, l.Redis, l.Log)
	cache := middleware.NewRedisCache(l.Cache, l.Redis, l.Log)

	g.POST("/reels", reels.Submit, limit)
	g.GET("/reels", reels.List, cache)
	g.GET("/reels/:id", reels.Get)
	g.POST("/reels/:id/retry", reels.Retry, limit)
	g.DELETE("/reels/:id", reels.Delete)

	g.GET("/places", places.List, cache)
	g.DELETE("/places/:id", places.Delete)
	g.POST("/places/:id/open-map", places.OpenMap)

	g.GET("/users/me/stats", places.Stats)
}
