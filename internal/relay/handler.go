// Package relay exposes a pipeline instance over HTTP.
package relay

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulse/internal/logger"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
)

// Pipeline is the part of analytics.Client the relay drives.
type Pipeline interface {
	Identify(ctx context.Context, userID string, traits map[string]interface{}, opts *models.Options) error
	Track(ctx context.Context, event string, properties map[string]interface{}, opts *models.Options) error
	Screen(ctx context.Context, category, name string, properties map[string]interface{}, opts *models.Options) error
	Group(ctx context.Context, groupID string, traits map[string]interface{}, opts *models.Options) error
	Alias(ctx context.Context, newID string, opts *models.Options) error
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error
}

type Handler struct {
	pipeline Pipeline
	logger   logger.Logger
}

func NewHandler(pipeline Pipeline, log logger.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	{
		v1.POST("/identify", h.Identify)
		v1.POST("/track", h.Track)
		v1.POST("/screen", h.Screen)
		v1.POST("/group", h.Group)
		v1.POST("/alias", h.Alias)
		v1.POST("/flush", h.Flush)
		v1.POST("/reset", h.Reset)
	}
}

func (h *Handler) Identify(c *gin.Context) {
	var req IdentifyRequest
	if !h.bind(c, "identify", &req) {
		return
	}
	h.respond(c, "identify", h.pipeline.Identify(c.Request.Context(), req.UserID, req.Traits, req.toOptions()))
}

func (h *Handler) Track(c *gin.Context) {
	var req TrackRequest
	if !h.bind(c, "track", &req) {
		return
	}
	h.respond(c, "track", h.pipeline.Track(c.Request.Context(), req.Event, req.Properties, req.toOptions()))
}

func (h *Handler) Screen(c *gin.Context) {
	var req ScreenRequest
	if !h.bind(c, "screen", &req) {
		return
	}
	h.respond(c, "screen", h.pipeline.Screen(c.Request.Context(), req.Category, req.Name, req.Properties, req.toOptions()))
}

func (h *Handler) Group(c *gin.Context) {
	var req GroupRequest
	if !h.bind(c, "group", &req) {
		return
	}
	h.respond(c, "group", h.pipeline.Group(c.Request.Context(), req.GroupID, req.Traits, req.toOptions()))
}

func (h *Handler) Alias(c *gin.Context) {
	var req AliasRequest
	if !h.bind(c, "alias", &req) {
		return
	}
	h.respond(c, "alias", h.pipeline.Alias(c.Request.Context(), req.UserID, req.toOptions()))
}

func (h *Handler) Flush(c *gin.Context) {
	h.respond(c, "flush", h.pipeline.Flush(c.Request.Context()))
}

func (h *Handler) Reset(c *gin.Context) {
	h.respond(c, "reset", h.pipeline.Reset(c.Request.Context()))
}

// bind decodes the body with the pipeline codec so integer values stay json.Number.
func (h *Handler) bind(c *gin.Context, verb string, req interface{}) bool {
	if err := jsoncodec.Decode(c.Request.Body, req); err != nil {
		metrics.IncRelayRequest(verb, "bad_request")
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.InvalidArgument(err.Error())))
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, verb string, err error) {
	if err != nil {
		h.handleError(c, verb, err)
		return
	}
	metrics.IncRelayRequest(verb, "accepted")
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

func (h *Handler) handleError(c *gin.Context, verb string, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	metrics.IncRelayRequest(verb, "rejected")
	c.JSON(status, errors.ToErrorResponse(err))
}
