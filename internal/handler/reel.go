package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/metadata"
	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/pipeline"
	"github.com/iliyamo/reelsplace/internal/repository"
)

// Invalidator drops cached responses of a user after a write.
type Invalidator func(ctx context.Context, userID uint64)

// ReelHandler serves the caller's reels.
type ReelHandler struct {
	Reels      *repository.ReelRepo
	Places     *repository.PlaceRepo
	Trigger    pipeline.Trigger
	Invalidate Invalidator
	Log        logrus.FieldLogger
}

// NewReelHandler constructs a ReelHandler and panics if a dependency is nil.
func NewReelHandler(reels *repository.ReelRepo, places *repository.PlaceRepo, trigger pipeline.Trigger, invalidate Invalidator, log logrus.FieldLogger) *ReelHandler {
	if reels == nil || places == nil || trigger == nil {
		panic("nil dependency passed to NewReelHandler")
	}
	if invalidate == nil {
		invalidate = func(context.Context, uint64) {}
	}
	return &ReelHandler{Reels: reels, Places: places, Trigger: trigger, Invalidate: invalidate, Log: log.WithField("component", "reel_handler")}
}

type submitReelRequest struct {
	ReelURL string `json:"reel_url" validate:"required,url"`
}

// Submit handles POST /v1/reels. The reel is stored in PROCESSING and the
// pipeline is started in the background.
func (h *ReelHandler) Submit(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	var body submitReelRequest
	if err := bindAndValidate(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "reel_url is required")
	}
	if !metadata.IsReelURL(body.ReelURL) {
		return fail(c, http.StatusBadRequest, CodeInvalidReelURL, "not an Instagram reel link")
	}

	ctx := c.Request().Context()
	reelURL := metadata.NormalizeURL(body.ReelURL)
	exists, err := h.Reels.ExistsByURL(ctx, userID, reelURL)
	if err != nil {
		h.Log.WithError(err).Error("check reel url failed")
		return internalError(c)
	}
	if exists {
		return fail(c, http.StatusConflict, CodeReelAlreadyExists, "reel already saved")
	}
	reel, err := h.Reels.Create(ctx, userID, reelURL)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fail(c, http.StatusConflict, CodeReelAlreadyExists, "reel already saved")
		}
		h.Log.WithError(err).Error("create reel failed")
		return internalError(c)
	}
	h.Invalidate(ctx, userID)

	// The reel stays PROCESSING when the trigger fails; a later re-trigger
	// picks it up.
	if err := h.Trigger.Trigger(ctx, reel.ID, userID); err != nil {
		h.Log.WithError(err).WithField("reel_id", reel.ID).Warn("pipeline trigger failed")
	}
	return c.JSON(http.StatusCreated, toReelResponse(reel))
}

// List handles GET /v1/reels?page=&size=&status=, newest first.
func (h *ReelHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	filter := repository.ReelFilter{UserID: userID}
	if s := c.QueryParam("status"); s != "" {
		filter.Status = model.ReelStatus(s)
		if !filter.Status.Valid() {
			return fail(c, http.StatusBadRequest, CodeInvalidInput, "unknown status")
		}
	}
	page := pageFrom(c)
	reels, total, err := h.Reels.List(c.Request().Context(), filter, page)
	if err != nil {
		h.Log.WithError(err).Error("list reels failed")
		return internalError(c)
	}
	items := make([]reelResponse, 0, len(reels))
	for _, r := range reels {
		items = append(items, toReelResponse(r))
	}
	return c.JSON(http.StatusOK, pageBody(items, page, total))
}

// Get handles GET /v1/reels/:id and includes the places found so far.
func (h *ReelHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	ctx := c.Request().Context()
	reel, err := h.Reels.GetForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, CodeReelNotFound, "reel not found")
		}
		return internalError(c)
	}
	places, err := h.Places.ListByReel(ctx, reel.ID)
	if err != nil {
		h.Log.WithError(err).WithField("reel_id", reel.ID).Error("list reel places failed")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"reel": toReelResponse(reel), "places": toPlaceResponses(places)})
}

// Retry handles POST /v1/reels/:id/retry and re-triggers the pipeline.
func (h *ReelHandler) Retry(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	ctx := c.Request().Context()
	if _, err := h.Reels.GetForUser(ctx, id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, CodeReelNotFound, "reel not found")
		}
		return internalError(c)
	}
	if err := h.Trigger.Trigger(ctx, id, userID); err != nil {
		h.Log.WithError(err).WithField("reel_id", id).Warn("pipeline re-trigger failed")
		return fail(c, http.StatusServiceUnavailable, CodeUpstreamUnavailable, "could not queue reel")
	}
	return c.JSON(http.StatusAccepted, echo.Map{"reel_id": id, "queued": true})
}

// Delete handles DELETE /v1/reels/:id.
func (h *ReelHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	if err := h.Reels.Delete(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, CodeReelNotFound, "reel not found")
		}
		h.Log.WithError(err).WithField("reel_id", id).Error("delete reel failed")
		return internalError(c)
	}
	h.Invalidate(c.Request().Context(), userID)
	return c.NoContent(http.StatusNoContent)
}
