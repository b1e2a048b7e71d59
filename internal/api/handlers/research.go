package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/davekm/briefline/backend/internal/auth"
	"github.com/davekm/briefline/backend/internal/models"
	"github.com/davekm/briefline/backend/internal/research"
	"github.com/davekm/briefline/backend/pkg/utils"
)

type ResearchHandler struct {
	orchestrator *research.Orchestrator
	authClient   *auth.Client
	configured   bool
	logger       *logrus.Logger
}

// NewResearchHandler wires the research endpoint. configured reports
// whether provider credentials are present.
func NewResearchHandler(
	orchestrator *research.Orchestrator,
	authClient *auth.Client,
	configured bool,
	logger *logrus.Logger,
) *ResearchHandler {
	return &ResearchHandler{
		orchestrator: orchestrator,
		authClient:   authClient,
		configured:   configured,
		logger:       logger,
	}
}

// HandleResearch processes research requests
func (h *ResearchHandler) HandleResearch(c *gin.Context) {
	startTime := time.Now()

	var req models.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid research request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	identity, err := h.authClient.Resolve(c.Request.Context(), bearerToken(c))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.writeError(c, &research.AuthError{Message: "Missing or invalid credentials"})
			return
		}
		h.logger.WithError(err).Error("Identity resolution failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Authentication service unavailable")
		return
	}

	if !h.configured {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Research provider credentials not configured")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user":       identity.UserID,
		"workspace":  identity.WorkspaceID,
		"mode":       req.Mode,
		"ip_address": c.ClientIP(),
	}).Info("Processing research request")

	response, remaining, err := h.orchestrator.Run(c.Request.Context(), *identity, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user":        identity.UserID,
		"provider":    response.Metadata.Provider,
		"sources":     response.Metadata.SourceCount,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Research request complete")

	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.JSON(http.StatusOK, response)
}

func (h *ResearchHandler) writeError(c *gin.Context, err error) {
	var validationErr *research.ValidationError
	var authErr *research.AuthError
	var rateLimitErr *research.RateLimitError
	var upstreamErr *research.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		utils.ErrorResponse(c, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &authErr):
		utils.ErrorResponse(c, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &rateLimitErr):
		c.Header("X-RateLimit-Remaining", "0")
		resetInSeconds := (rateLimitErr.ResetInMs + 999) / 1000
		utils.RateLimitResponse(c, http.StatusTooManyRequests, "Rate limit exceeded", resetInSeconds)
	case errors.As(err, &upstreamErr):
		h.logger.WithError(upstreamErr.Cause).Error("Research providers failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, upstreamErr.Message)
	default:
		h.logger.WithError(err).Error("Research request failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Research request failed")
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
