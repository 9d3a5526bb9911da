package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rapport/internal/cache"
	"rapport/internal/models"
	"rapport/internal/topics"

	"github.com/labstack/echo/v4"
)

const hierarchyCacheKey = "topics:hierarchy"
const hierarchyCacheTTL = 30 * time.Second

// CreateTopicHandler creates a topic in the hierarchy
// @Summary Create a topic
// @Description Create a topic at the root or under a parent; the level and color are derived automatically
// @Tags topics
// @Accept json
// @Produce json
// @Param topic body topics.CreateTopicRequest true "Topic to create"
// @Success 201 {object} models.Topic
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/topics [post]
func CreateTopicHandler(store *topics.Store, hierarchyCache *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req topics.CreateTopicRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Name == "" {
			return badRequest(c, "name is required")
		}

		topic, err := store.CreateTopic(c.Request().Context(), req)
		if err != nil {
			return errorResponse(c, err)
		}

		hierarchyCache.DeletePrefix(hierarchyCacheKey)
		return c.JSON(http.StatusCreated, topic)
	}
}

// TopicHierarchyHandler returns the topic tree
// @Summary Get the topic hierarchy
// @Description Get topics as a tree of main, sub, and micro topics, optionally scoped to one customer's topics and optionally including inactive ones
// @Tags topics
// @Produce json
// @Param customer_id query int false "Restrict to topics used by this customer"
// @Param include_inactive query bool false "Keep deactivated topics in the tree"
// @Success 200 {array} models.TopicNode
// @Failure 500 {object} models.ErrorResponse
// @Router /api/topics/hierarchy [get]
func TopicHierarchyHandler(store *topics.Store, hierarchyCache *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		var filter topics.HierarchyFilter
		if raw := c.QueryParam("customer_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return badRequest(c, "invalid customer id")
			}
			filter.CustomerID = &id
		}
		filter.IncludeInactive, _ = strconv.ParseBool(c.QueryParam("include_inactive"))

		// one cache entry per scope
		cacheKey := fmt.Sprintf("%s:%s:%t", hierarchyCacheKey, c.QueryParam("customer_id"), filter.IncludeInactive)
		if cached, ok := hierarchyCache.Get(cacheKey); ok {
			return c.JSON(http.StatusOK, cached)
		}

		hierarchy, err := store.GetHierarchy(c.Request().Context(), filter)
		if err != nil {
			return errorResponse(c, err)
		}

		hierarchyCache.Set(cacheKey, hierarchy, hierarchyCacheTTL)
		return c.JSON(http.StatusOK, hierarchy)
	}
}

// TopicsByLevelHandler lists topics at one hierarchy level
// @Summary List topics by level
// @Tags topics
// @Produce json
// @Param level path int true "Hierarchy level (0-2)"
// @Param parent_id query int false "Restrict to children of this topic"
// @Param customer_id query int false "Restrict to topics used by this customer"
// @Success 200 {array} models.Topic
// @Failure 400 {object} models.ErrorResponse
// @Router /api/topics/level/{level} [get]
func TopicsByLevelHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		level, err := strconv.Atoi(c.Param("level"))
		if err != nil || level < 0 || level > 2 {
			return badRequest(c, "level must be 0, 1, or 2")
		}

		var parentID, customerID *int
		if raw := c.QueryParam("parent_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return badRequest(c, "invalid parent id")
			}
			parentID = &id
		}
		if raw := c.QueryParam("customer_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return badRequest(c, "invalid customer id")
			}
			customerID = &id
		}

		result, err := store.GetTopicsByLevel(c.Request().Context(), level, parentID, customerID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}
}

// DeleteTopicHandler deletes a topic and everything referencing it
// @Summary Delete a topic
// @Description Delete a topic; refuses when it has children unless force=true, which deletes the subtree
// @Tags topics
// @Produce json
// @Param id path int true "Topic ID"
// @Param force query bool false "Delete children as well"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/topics/{id} [delete]
func DeleteTopicHandler(store *topics.Store, hierarchyCache *cache.Cache) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}
		force, _ := strconv.ParseBool(c.QueryParam("force"))

		if err := store.DeleteTopic(c.Request().Context(), id, force); err != nil {
			return errorResponse(c, err)
		}

		hierarchyCache.DeletePrefix(hierarchyCacheKey)
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// MergeTopicsHandler merges one topic into another
// @Summary Merge topics
// @Description Move all assignments and keywords from the source topic onto the target and deactivate the source
// @Tags topics
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/topics/merge [post]
func MergeTopicsHandler(store *topics.Store, hierarchyCache *cache.Cache) echo.HandlerFunc {
	type mergeRequest struct {
		SourceID int `json:"source_id"`
		TargetID int `json:"target_id"`
	}

	return func(c echo.Context) error {
		var req mergeRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		merged, err := store.MergeTopics(c.Request().Context(), req.SourceID, req.TargetID)
		if err != nil {
			return errorResponse(c, err)
		}
		if !merged {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   "source or target topic not found",
			})
		}

		hierarchyCache.DeletePrefix(hierarchyCacheKey)
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// AddKeywordHandler attaches a weighted keyword to a topic
// @Summary Add a topic keyword
// @Tags topics
// @Accept json
// @Produce json
// @Param id path int true "Topic ID"
// @Success 201 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/topics/{id}/keywords [post]
func AddKeywordHandler(store *topics.Store) echo.HandlerFunc {
	type keywordRequest struct {
		Keyword   string  `json:"keyword"`
		Weight    float64 `json:"weight"`
		CreatedBy string  `json:"created_by"`
	}

	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		var req keywordRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Keyword == "" {
			return badRequest(c, "keyword is required")
		}

		if err := store.AddKeyword(c.Request().Context(), id, req.Keyword, req.Weight, req.CreatedBy); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusCreated, map[string]bool{"success": true})
	}
}

// RemoveKeywordHandler detaches a keyword from a topic
// @Summary Remove a topic keyword
// @Tags topics
// @Produce json
// @Param id path int true "Topic ID"
// @Param keyword path string true "Keyword"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} models.ErrorResponse
// @Router /api/topics/{id}/keywords/{keyword} [delete]
func RemoveKeywordHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		removed, err := store.RemoveKeyword(c.Request().Context(), id, c.Param("keyword"))
		if err != nil {
			return errorResponse(c, err)
		}
		if !removed {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   "keyword not attached to topic",
			})
		}
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// TopicKeywordsHandler lists a topic's keywords
// @Summary List topic keywords
// @Tags topics
// @Produce json
// @Param id path int true "Topic ID"
// @Success 200 {array} models.TopicKeyword
// @Router /api/topics/{id}/keywords [get]
func TopicKeywordsHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		keywords, err := store.GetKeywords(c.Request().Context(), id)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, keywords)
	}
}

// SimilarTopicsHandler lists cached similarities for a topic
// @Summary Get similar topics
// @Tags topics
// @Produce json
// @Param id path int true "Topic ID"
// @Param limit query int false "Maximum results" default(10)
// @Param threshold query number false "Minimum similarity score" default(0.3)
// @Success 200 {array} models.SimilarTopic
// @Router /api/topics/{id}/similar [get]
func SimilarTopicsHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		threshold := 0.3
		if raw := c.QueryParam("threshold"); raw != "" {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
				threshold = parsed
			}
		}

		similar, err := store.GetSimilarTopics(c.Request().Context(), id, limit)
		if err != nil {
			return errorResponse(c, err)
		}

		if threshold > 0 {
			filtered := similar[:0]
			for _, st := range similar {
				if st.SimilarityScore >= threshold {
					filtered = append(filtered, st)
				}
			}
			similar = filtered
		}
		return c.JSON(http.StatusOK, similar)
	}
}

// TopicEmailsHandler lists the emails assigned to a topic
// @Summary Get a topic's emails
// @Tags topics
// @Produce json
// @Param id path int true "Topic ID"
// @Success 200 {array} models.TopicEmail
// @Failure 404 {object} models.ErrorResponse
// @Router /api/topics/{id}/emails [get]
func TopicEmailsHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}

		emails, err := store.GetTopicEmails(c.Request().Context(), id)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, emails)
	}
}

// CalculateSimilarityHandler computes and caches a pairwise topic similarity
// @Summary Calculate topic similarity
// @Description Compute the Jaccard similarity of two topics by shared emails (cooccurrence) or shared keywords
// @Tags topics
// @Produce json
// @Param id path int true "First topic ID"
// @Param other path int true "Second topic ID"
// @Param method query string false "Similarity method" default(cooccurrence)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Router /api/topics/{id}/similarity/{other} [post]
func CalculateSimilarityHandler(store *topics.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		topic1ID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}
		topic2ID, err := strconv.Atoi(c.Param("other"))
		if err != nil {
			return badRequest(c, "invalid topic id")
		}
		method := c.QueryParam("method")
		if method == "" {
			method = topics.SimilarityCooccurrence
		}

		score, err := store.CalculateSimilarity(c.Request().Context(), topic1ID, topic2ID, method)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"topic1_id":        topic1ID,
			"topic2_id":        topic2ID,
			"method":           method,
			"similarity_score": score,
		})
	}
}
