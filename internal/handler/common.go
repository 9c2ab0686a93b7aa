package handler // handler defines the HTTP handlers of the API

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reelsplace/internal/middleware"
	"github.com/iliyamo/reelsplace/internal/repository"
)

// Error codes returned in the "error" field of every failed response.
const (
	CodeInvalidInput        = "INVALID_INPUT_VALUE"
	CodeInvalidReelURL      = "INVALID_REEL_URL"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeReelNotFound        = "REEL_NOT_FOUND"
	CodePlaceNotFound       = "PLACE_NOT_FOUND"
	CodeReelAlreadyExists   = "REEL_ALREADY_EXISTS"
	CodeReelInProgress      = "REEL_IN_PROGRESS"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

var validate = validator.New()

// fail writes the standard error body.
func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": code, "message": message})
}

func internalError(c echo.Context) error {
	return fail(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// getUserID returns the local user id stored by the auth middleware.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// bindAndValidate binds the JSON body into dst and runs its validate tags.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// pageFrom reads ?page= and ?size=. Missing or malformed values fall back
// to the repository defaults.
func pageFrom(c echo.Context) repository.Page {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	return repository.Page{Number: page, Size: size}.Normalize()
}

// pageBody wraps a listing with its paging metadata.
func pageBody(items any, p repository.Page, total int) echo.Map {
	return echo.Map{"items": items, "page": p.Number, "size": p.Size, "total": total}
}
