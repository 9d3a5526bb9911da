package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rapport/internal/cache"
	"rapport/internal/classifier"
	"rapport/internal/embeddings"
	"rapport/internal/insights"
	"rapport/internal/worker"

	"github.com/labstack/echo/v4"
)

const insightsCacheTTL = 60 * time.Second

// InsightsHandler answers a free-text query over a customer's communications
// @Summary Query customer insights
// @Description Search the customer's emails for a query, score the matches, and build a narrative summary with key messages and a timeline. Mode is strict, related, or fuzzy.
// @Tags insights
// @Accept json
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} models.InsightsReport
// @Failure 400 {object} models.ErrorResponse
// @Router /api/customers/{id}/insights [post]
func InsightsHandler(svc *insights.Service, reportCache *cache.Cache) echo.HandlerFunc {
	type insightsRequest struct {
		Query string `json:"query" query:"query"`
		Mode  string `json:"mode" query:"mode"`
	}

	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		var req insightsRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		query := req.Query
		if query == "" {
			return badRequest(c, "query is required")
		}
		mode := req.Mode
		if mode == "" {
			mode = insights.ModeRelated
		}

		cacheKey := fmt.Sprintf("insights:%d:%s:%s", customerID, mode, query)
		if cached, ok := reportCache.Get(cacheKey); ok {
			return c.JSON(http.StatusOK, cached)
		}

		report, err := svc.GenerateReport(c.Request().Context(), customerID, query, mode)
		if err != nil {
			return errorResponse(c, err)
		}

		reportCache.Set(cacheKey, report, insightsCacheTTL)
		return c.JSON(http.StatusOK, report)
	}
}

// BackfillEmbeddingsHandler kicks off an embedding backfill for a customer
// @Summary Backfill email embeddings
// @Description Enqueue a background task that computes and stores an embedding for every email of the customer that lacks one
// @Tags insights
// @Produce json
// @Param id path int true "Customer ID"
// @Success 202 {object} map[string]string
// @Failure 503 {object} models.ErrorResponse
// @Router /api/customers/{id}/backfill-embeddings [post]
func BackfillEmbeddingsHandler(svc *embeddings.Service, w *worker.Worker) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		taskID, err := w.Enqueue(fmt.Sprintf("backfill-embeddings-%d", customerID), func(ctx context.Context) (interface{}, error) {
			return svc.BackfillEmailEmbeddings(ctx, customerID)
		})
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		}

		return c.JSON(http.StatusAccepted, map[string]string{"task_id": taskID})
	}
}

// ExtractTopicsHandler clusters email embeddings into real topics
// @Summary Extract topics from embeddings
// @Description Cluster the customer's email embeddings by similarity, then create or reuse a topic per cluster of at least three emails and assign the members
// @Tags insights
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} models.ClusterMaterializationResult
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/extract-topics [post]
func ExtractTopicsHandler(svc *embeddings.Service, cls *classifier.Classifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		clusters, err := svc.ExtractTopicsFromEmbeddings(c.Request().Context(), customerID)
		if err != nil {
			return errorResponse(c, err)
		}

		result, err := cls.MaterializeClusters(c.Request().Context(), clusters)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}
