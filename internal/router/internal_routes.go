package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reelsplace/internal/handler"
	"github.com/iliyamo/reelsplace/internal/model"
)

// RegisterInternal registers the service-to-service API under
// /v1/internal. Only tokens with the SERVICE role are accepted.
func RegisterInternal(e *echo.Echo, h *handler.InternalHandler, a Auth) {
	g := authGroup(e, "/v1/internal", a, model.RoleService)

	g.POST("/reels/:id/metadata", h.ParseMetadata)
	g.POST("/reels/:id/addresses", h.ExtractAddresses)
	g.POST("/reels/:id/places", h.CreatePlaces)
	g.POST("/reels/:id/process", h.Process)
	g.PATCH("/reels/:id/status", h.UpdateStatus)
	g.POST("/notifications/place-created", h.NotifyPlaceCreated)
}
