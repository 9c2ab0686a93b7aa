// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// pipeline and the HTTP handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist. Handlers
// translate it into an HTTP 404 response. Rows owned by another user are
// reported the same way.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with a unique key, such
// as a second reel with the same URL for one user or a second place with
// the same external id. Handlers translate it into an HTTP 409 response.
var ErrDuplicate = errors.New("duplicate")
