package handlers

import (
	"net/http"
	"strconv"

	"rapport/internal/analytics"
	"rapport/internal/classifier"
	"rapport/internal/models"
	"rapport/internal/topics"

	"github.com/labstack/echo/v4"
)

// ClassifyEmailHandler scores a single email against every active topic
// @Summary Classify an email
// @Description Score an email against all active topics without persisting anything. The optional methods list restricts which signals run; omitted or empty means all of keyword, embedding, context, and frequency.
// @Tags classification
// @Accept json
// @Produce json
// @Param id path int true "Email ID"
// @Success 200 {object} models.ClassificationResult
// @Failure 404 {object} models.ErrorResponse
// @Router /api/emails/{id}/classify [post]
func ClassifyEmailHandler(cls *classifier.Classifier) echo.HandlerFunc {
	type classifyRequest struct {
		Methods []string `json:"methods"`
	}

	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid email id")
		}

		var req classifyRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		result, err := cls.ClassifyEmail(c.Request().Context(), id, req.Methods)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

// AssignTopicHandler manually assigns a topic to an email
// @Summary Assign a topic to an email
// @Tags classification
// @Accept json
// @Produce json
// @Param id path int true "Email ID"
// @Success 201 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/emails/{id}/topics [post]
func AssignTopicHandler(store *topics.Store) echo.HandlerFunc {
	type assignRequest struct {
		TopicID    int     `json:"topic_id"`
		Confidence float64 `json:"confidence"`
		AssignedBy string  `json:"assigned_by"`
	}

	return func(c echo.Context) error {
		emailID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid email id")
		}

		var req assignRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Confidence <= 0 {
			req.Confidence = 1.0
		}
		if req.AssignedBy == "" {
			req.AssignedBy = "user"
		}

		err = store.AssignTopicToEmail(c.Request().Context(), emailID, req.TopicID, req.Confidence, models.MethodManual, req.AssignedBy)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusCreated, map[string]bool{"success": true})
	}
}

// EmailTopicsHandler lists an email's topic assignments
// @Summary Get an email's topics
// @Tags classification
// @Produce json
// @Param id path int true "Email ID"
// @Success 200 {array} models.EmailTopicDetail
// @Router /api/emails/{id}/topics [get]
func EmailTopicsHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		emailID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid email id")
		}

		assignments, err := store.GetEmailTopics(c.Request().Context(), emailID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, assignments)
	}
}

// RemoveTopicHandler removes a topic assignment from an email
// @Summary Remove a topic from an email
// @Tags classification
// @Produce json
// @Param id path int true "Email ID"
// @Param topicId path int true "Topic ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/emails/{id}/topics/{topicId} [delete]
func RemoveTopicHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		emailID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid email id")
		}
		topicID, err := strconv.Atoi(c.Param("topicId"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		removed, err := store.RemoveTopicFromEmail(c.Request().Context(), emailID, topicID)
		if err != nil {
			return errorResponse(c, err)
		}
		if !removed {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   "assignment not found",
			})
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// VerifyAssignmentHandler marks an email-topic assignment as human verified
// @Summary Verify a topic assignment
// @Tags classification
// @Accept json
// @Produce json
// @Param id path int true "Email ID"
// @Param topicId path int true "Topic ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/emails/{id}/topics/{topicId}/verify [post]
func VerifyAssignmentHandler(store *topics.Store) echo.HandlerFunc {
	type verifyRequest struct {
		VerifiedBy string `json:"verified_by"`
	}

	return func(c echo.Context) error {
		emailID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid email id")
		}
		topicID, err := strconv.Atoi(c.Param("topicId"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		var req verifyRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.VerifiedBy == "" {
			req.VerifiedBy = "user"
		}

		verified, err := store.VerifyAssignment(c.Request().Context(), emailID, topicID, req.VerifiedBy)
		if err != nil {
			return errorResponse(c, err)
		}
		if !verified {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   "assignment not found",
			})
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// BatchClassifyHandler auto-classifies a customer's unclassified emails
// @Summary Batch classify customer emails
// @Description Classify up to limit unclassified emails for the customer and persist confident assignments; force_reclassify re-scores already classified emails too
// @Tags classification
// @Accept json
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} models.BatchClassificationResult
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/classify [post]
func BatchClassifyHandler(cls *classifier.Classifier) echo.HandlerFunc {
	type batchRequest struct {
		Limit           int  `json:"limit"`
		ForceReclassify bool `json:"force_reclassify"`
	}

	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		var req batchRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		result, err := cls.ClassifyBatch(c.Request().Context(), customerID, req.Limit, req.ForceReclassify)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

// SuggestTopicsHandler mines topic suggestions from unclassified emails
// @Summary Suggest topics for a customer
// @Description Mine frequent meaningful words from the subjects of unclassified emails and propose them as topics
// @Tags classification
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {array} models.TopicSuggestion
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/topic-suggestions [get]
func SuggestTopicsHandler(cls *classifier.Classifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		suggestions, err := cls.SuggestTopics(c.Request().Context(), customerID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, suggestions)
	}
}

// ClassificationAnalyticsHandler aggregates classification statistics for a customer
// @Summary Get classification analytics
// @Description Aggregate assignment counts by method, confidence bucket, and topic, plus verification coverage
// @Tags classification
// @Produce json
// @Param id path int true "Customer ID"
// @Success 200 {object} models.ClassificationAnalytics
// @Failure 500 {object} models.ErrorResponse
// @Router /api/customers/{id}/classification-analytics [get]
func ClassificationAnalyticsHandler(svc *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid customer id")
		}

		result, err := svc.GetClassificationAnalytics(c.Request().Context(), customerID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}
