package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-seat-reservation/internal/booking"
	"github.com/iliyamo/train-seat-reservation/internal/model"
	"github.com/iliyamo/train-seat-reservation/internal/repository"
)

// Health answers load balancer health checks.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// writeError maps core errors onto HTTP responses.  Anything unknown is a
// 500 without details.
func writeError(c echo.Context, err error) error {
	if sc, ok := repository.IsSeatConflict(err); ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_conflict", "unavailable": sc.Seats})
	}
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, booking.ErrTimeout):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "timeout"})
	}
	slog.Default().ErrorContext(c.Request().Context(), "unhandled error",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"err", err,
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
