package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/repository"
)

// PlaceHandler serves the caller's saved places and profile counters.
type PlaceHandler struct {
	Places     *repository.PlaceRepo
	Users      *repository.UserRepo
	Invalidate Invalidator
	Log        logrus.FieldLogger
}

// NewPlaceHandler constructs a PlaceHandler and panics if a repository is nil.
func NewPlaceHandler(places *repository.PlaceRepo, users *repository.UserRepo, invalidate Invalidator, log logrus.FieldLogger) *PlaceHandler {
	if places == nil || users == nil {
		panic("nil repository passed to NewPlaceHandler")
	}
	h := &PlaceHandler{Places: places, Users: users, Invalidate: invalidate, Log: log.WithField("component", "place_handler")}
	if h.Invalidate == nil {
		h.Invalidate = func(_ context.Context, _ uint64) {}
	}
	return h
}

// List handles GET /v1/places?page=&size=. Images come in sort order.
func (h *PlaceHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	page := pageFrom(c)
	places, total, err := h.Places.ListByUser(c.Request().Context(), userID, page)
	if err != nil {
		h.Log.WithError(err).Error("list places failed")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, pageBody(toPlaceResponses(places), page, total))
}

// Delete handles DELETE /v1/places/:id.
func (h *PlaceHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	if err := h.Places.Delete(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, CodePlaceNotFound, "place not found")
		}
		h.Log.WithError(err).WithField("place_id", id).Error("delete place failed")
		return internalError(c)
	}
	h.Invalidate(c.Request().Context(), userID)
	return c.NoContent(http.StatusNoContent)
}

// OpenMap handles POST /v1/places/:id/open-map. It counts the map opening
// on the caller's profile and returns the place.
func (h *PlaceHandler) OpenMap(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	ctx := c.Request().Context()
	place, err := h.Places.GetForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, CodePlaceNotFound, "place not found")
		}
		return internalError(c)
	}
	if err := h.Users.RecordMapOpen(ctx, userID); err != nil {
		h.Log.WithError(err).Error("record map open failed")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, toPlaceResponse(place))
}

// Stats handles GET /v1/users/me/stats.
func (h *PlaceHandler) Stats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	st, err := h.Users.Stats(c.Request().Context(), userID)
	if err != nil {
		h.Log.WithError(err).Error("load stats failed")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":        st.UserID,
		"reel_count":     st.ReelCount,
		"place_count":    st.PlaceCount,
		"map_open_count": st.MapOpenCount,
		"last_opened_at": st.LastOpenedAt,
	})
}
