package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/notify"
	"github.com/iliyamo/reelsplace/internal/pipeline"
)

// PipelineOps is the set of pipeline operations exposed to other services.
type PipelineOps interface {
	ParseMetadata(ctx context.Context, reelID uint64) (pipeline.MetadataResult, error)
	ExtractAddresses(ctx context.Context, reelID uint64) (pipeline.ExtractResult, error)
	CreatePlaces(ctx context.Context, reelID uint64, addresses []string) (pipeline.CreateResult, error)
	Run(ctx context.Context, reelID uint64) (pipeline.RunResult, error)
	UpdateStatus(ctx context.Context, reelID uint64, status model.ReelStatus) (model.Reel, error)
}

// PlaceFoundNotifier sends place-found notifications.
type PlaceFoundNotifier interface {
	NotifyPlaceFound(ctx context.Context, userID, reelID uint64, count int) (notify.Result, error)
}

// InternalHandler serves /v1/internal for callers holding the service
// role. Each endpoint runs one pipeline step synchronously.
type InternalHandler struct {
	Pipeline PipelineOps
	Notifier PlaceFoundNotifier
	Log      logrus.FieldLogger
}

// NewInternalHandler constructs an InternalHandler and panics if a
// dependency is nil.
func NewInternalHandler(p PipelineOps, n PlaceFoundNotifier, log logrus.FieldLogger) *InternalHandler {
	if p == nil || n == nil {
		panic("nil dependency passed to NewInternalHandler")
	}
	return &InternalHandler{Pipeline: p, Notifier: n, Log: log.WithField("component", "internal_handler")}
}

// pipelineError maps a pipeline error to a response.
func (h *InternalHandler) pipelineError(c echo.Context, err error) error {
	switch pipeline.KindOf(err) {
	case pipeline.KindNotFound:
		return fail(c, http.StatusNotFound, CodeReelNotFound, err.Error())
	case pipeline.KindInvalidInput:
		return fail(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
	case pipeline.KindConflict:
		return fail(c, http.StatusConflict, CodeReelInProgress, err.Error())
	case pipeline.KindUpstreamUnavailable:
		return fail(c, http.StatusBadGateway, CodeUpstreamUnavailable, err.Error())
	}
	h.Log.WithError(err).Error("pipeline step failed")
	return internalError(c)
}

// ParseMetadata handles POST /v1/internal/reels/:id/metadata.
func (h *InternalHandler) ParseMetadata(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	res, err := h.Pipeline.ParseMetadata(c.Request().Context(), id)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ExtractAddresses handles POST /v1/internal/reels/:id/addresses.
func (h *InternalHandler) ExtractAddresses(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	res, err := h.Pipeline.ExtractAddresses(c.Request().Context(), id)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type createPlacesRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,dive,required"`
}

// CreatePlaces handles POST /v1/internal/reels/:id/places. Partial
// failures are reported in the body with status 200.
func (h *InternalHandler) CreatePlaces(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	var body createPlacesRequest
	if err := bindAndValidate(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "addresses must be a non-empty list")
	}
	res, err := h.Pipeline.CreatePlaces(c.Request().Context(), id, body.Addresses)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Process handles POST /v1/internal/reels/:id/process and runs the whole
// pipeline before answering.
func (h *InternalHandler) Process(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	res, err := h.Pipeline.Run(c.Request().Context(), id)
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PROCESSING FAILED NO_ADDRESS PLACE_FOUND PLACE_NOT_FOUND"`
}

// UpdateStatus handles PATCH /v1/internal/reels/:id/status.
func (h *InternalHandler) UpdateStatus(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	var body updateStatusRequest
	if err := bindAndValidate(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "unknown status")
	}
	reel, err := h.Pipeline.UpdateStatus(c.Request().Context(), id, model.ReelStatus(body.Status))
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, toReelResponse(reel))
}

type placeCreatedRequest struct {
	UserID     uint64 `json:"user_id" validate:"required"`
	ReelID     uint64 `json:"reel_id" validate:"required"`
	PlaceCount int    `json:"place_count" validate:"gte=1"`
}

// NotifyPlaceCreated handles POST /v1/internal/notifications/place-created.
func (h *InternalHandler) NotifyPlaceCreated(c echo.Context) error {
	var body placeCreatedRequest
	if err := bindAndValidate(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidInput, "user_id, reel_id and place_count are required")
	}
	res, err := h.Notifier.NotifyPlaceFound(c.Request().Context(), body.UserID, body.ReelID, body.PlaceCount)
	if err != nil {
		if errors.Is(err, notify.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, CodeUserNotFound, "user not found")
		}
		h.Log.WithError(err).Error("notify failed")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, res)
}
