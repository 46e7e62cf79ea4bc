// Package server exposes the batch trigger endpoints. Each endpoint runs one
// pipeline stage to completion and reports per-item results, and each is
// idempotent: re-triggering re-derives all state from the store.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/ingestion"
	"github.com/tweetbridge/tweetbridge/publication"
	"github.com/tweetbridge/tweetbridge/store"
	"github.com/tweetbridge/tweetbridge/translation"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// PipelineHandler bundles the stage dependencies for the trigger endpoints.
type PipelineHandler struct {
	Configs   store.ConfigStore
	Fetcher   *ingestion.Fetcher
	Stage     *translation.Stage
	Scheduler *publication.Scheduler
}

// RegisterTriggerRoutes attaches the batch trigger endpoints to the given
// router group.
func RegisterTriggerRoutes(group *gin.RouterGroup, handler *PipelineHandler) {
	group.POST("/ingest", handler.Ingest)
	group.POST("/translate", handler.Translate)
	group.POST("/publish", handler.Publish)
	group.POST("/queue", handler.Queue)
}

type ownerResult struct {
	OwnerId string      `json:"owner_id"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Detail  interface{} `json:"detail,omitempty"`
}

// Ingest runs the ingestion fetcher for every configuration. Manual-mode
// owners are included, the trigger endpoints are their only way to drive the
// pipeline, only the daemon restricts itself to auto mode.
func (h *PipelineHandler) Ingest(c *gin.Context) {
	configs, err := h.Configs.ListConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var results []ownerResult
	for _, config := range configs {
		result, err := h.Fetcher.FetchNewPosts(c.Request.Context(), config.OwnerId)
		switch {
		case errors.Is(err, ingestion.ErrConfigurationMissing):
			results = append(results, ownerResult{OwnerId: config.OwnerId, Status: "error", Message: err.Error()})
		case err != nil:
			Logger.Log.Errorf("ingest failed for owner %s: %s", config.OwnerId, err)
			results = append(results, ownerResult{OwnerId: config.OwnerId, Status: "error", Message: err.Error()})
		case result.RateLimited:
			results = append(results, ownerResult{
				OwnerId: config.OwnerId,
				Status:  "rate_limited",
				Message: "rate limited, retry after " + result.Wait.Round(1e9).String(),
			})
		default:
			results = append(results, ownerResult{OwnerId: config.OwnerId, Status: "success", Detail: result})
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// Translate runs the translation stage for every configuration, manual-mode
// owners included.
func (h *PipelineHandler) Translate(c *gin.Context) {
	configs, err := h.Configs.ListConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var results []ownerResult
	for _, config := range configs {
		outcomes, err := h.Stage.TranslatePending(c.Request.Context(), config.OwnerId)
		if err != nil {
			Logger.Log.Errorf("translate failed for owner %s: %s", config.OwnerId, err)
			results = append(results, ownerResult{OwnerId: config.OwnerId, Status: "error", Message: err.Error()})
			continue
		}
		results = append(results, ownerResult{OwnerId: config.OwnerId, Status: "success", Detail: outcomes})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// Publish runs one publication batch.
func (h *PipelineHandler) Publish(c *gin.Context) {
	outcomes, err := h.Scheduler.RunBatch(c.Request.Context(), publication.DefaultBatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": outcomes})
}

type queueRequest struct {
	OwnerId string `json:"owner_id" binding:"required"`
	PostId  string `json:"post_id" binding:"required"`
}

// Queue moves one reviewed, translated post into the publication queue for
// owners not running in auto mode.
func (h *PipelineHandler) Queue(c *gin.Context) {
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Stage.QueuePost(c.Request.Context(), req.OwnerId, req.PostId)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": outcome})
}
