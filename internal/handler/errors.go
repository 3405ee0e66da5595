package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/shinyyama/safedeal/internal/reqctx"
	"github.com/shinyyama/safedeal/internal/service"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSONError writes an error body tagged with the request id, if any.
func JSONError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   msg,
		RequestID: reqctx.RequestID(c.Request().Context()),
	}})
}

// writeError maps a service error onto a status code and error code.
func writeError(c echo.Context, err error) error {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return JSONError(c, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidParticipants):
		return http.StatusBadRequest, "invalid_participants"
	case errors.Is(err, service.ErrInvalidContent):
		return http.StatusBadRequest, "invalid_content"
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, service.ErrDuplicateActiveDeal):
		return http.StatusConflict, "duplicate_active_deal"
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, repository.ErrDBNotReady), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func badRequest(c echo.Context, msg string) error {
	return JSONError(c, http.StatusBadRequest, "bad_request", msg)
}

func unauthenticated(c echo.Context) error {
	return JSONError(c, http.StatusUnauthorized, "unauthorized", "missing uid")
}
