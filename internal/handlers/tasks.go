package handlers

import (
	"net/http"

	"rapport/internal/models"
	"rapport/internal/worker"

	"github.com/labstack/echo/v4"
)

// TaskStatusHandler reports the state of a background task
// @Summary Get task status
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} worker.Task
// @Failure 404 {object} models.ErrorResponse
// @Router /api/tasks/{id} [get]
func TaskStatusHandler(w *worker.Worker) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, ok := w.Status(c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   "task not found",
			})
		}
		return c.JSON(http.StatusOK, task)
	}
}

// CancelTaskHandler cancels a queued background task
// @Summary Cancel a queued task
// @Description Cancel a task that has not started yet; running or finished tasks cannot be cancelled
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} map[string]bool
// @Failure 409 {object} models.ErrorResponse
// @Router /api/tasks/{id} [delete]
func CancelTaskHandler(w *worker.Worker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !w.Cancel(c.Param("id")) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{
				Success: false,
				Error:   "task cannot be cancelled",
			})
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}
