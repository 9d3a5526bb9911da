package handlers

import (
	"errors"
	"net/http"

	"rapport/internal/classifier"
	"rapport/internal/models"
	"rapport/internal/topics"

	"github.com/labstack/echo/v4"
)

// errorResponse maps domain errors onto HTTP statuses: missing resources are
// 404, hierarchy conflicts are 409, everything else is a 500
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, topics.ErrNotFound), errors.Is(err, classifier.ErrEmailNotFound):
		status = http.StatusNotFound
	case errors.Is(err, topics.ErrCapacityExceeded), errors.Is(err, topics.ErrHasChildren):
		status = http.StatusConflict
	}

	return c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// badRequest returns a 400 with the given message
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   message,
	})
}
