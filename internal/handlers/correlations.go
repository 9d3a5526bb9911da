package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"rapport/internal/correlation"
	"rapport/internal/worker"

	"github.com/labstack/echo/v4"
)

// CorrelateFilesHandler kicks off a background correlation scan for a customer
// @Summary Correlate customer files with emails
// @Description Enqueue a background task that scores the customer's processed files against their emails, replaces stored correlations, and refreshes importance scores. An optional file_id limits the scan to one file. Returns the task id for polling.
// @Tags correlations
// @Accept json
// @Produce json
// @Param id path int true "Customer ID"
// @Success 202 {object} map[string]string
// @Failure 503 {object} models.ErrorResponse
// @Router /api/customers/{id}/correlate [post]
func CorrelateFilesHandler(engine *correlation.Engine, w *worker.Worker) echo.HandlerFunc {
	type correlateRequest struct {
		FileID *int `json:"file_id"`
	}

	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		var req correlateRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		taskID, err := w.Enqueue(fmt.Sprintf("correlate-files-%d", customerID), func(ctx context.Context) (interface{}, error) {
			result, err := engine.CorrelateCustomerFiles(ctx, customerID, req.FileID)
			if err != nil {
				return nil, err
			}
			if _, err := engine.UpdateImportanceScores(ctx, customerID); err != nil {
				return nil, err
			}
			return result, nil
		})
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		}

		return c.JSON(http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}

// UpdateImportanceHandler recomputes file importance scores synchronously
// @Summary Update file importance scores
// @Description Recompute every file's importance score from its stored correlations and recency
// @Tags correlations
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} map[string]int
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/importance [post]
func UpdateImportanceHandler(engine *correlation.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		updated, err := engine.UpdateImportanceScores(c.Request().Context(), customerID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int{"files_updated": updated})
	}
}

// FileTimelineHandler returns the file importance timeline for a customer
// @Summary Get the file timeline
// @Description List the customer's files ordered by activity date with importance and correlation counts, for the timeline heatmap. An optional filter keeps only files correlated to emails whose subject or preview contains the text.
// @Tags correlations
// @Produce json
// @Param id path int true "Customer ID"
// @Param filter query string false "Email text filter"
// @Success 200 {array} models.FileTimelineEntry
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/file-timeline [get]
func FileTimelineHandler(engine *correlation.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		timeline, err := engine.GetFileTimeline(c.Request().Context(), customerID, c.QueryParam("filter"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, timeline)
	}
}
