package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/davekm/briefline/backend/internal/cache"
)

// HealthChecker manages health checks for the cache and upstream providers
type HealthChecker struct {
	cache      *cache.Cache
	logger     *logrus.Logger
	groqURL    string
	agentURL   string
	httpClient *http.Client
}

func NewHealthChecker(c *cache.Cache, logger *logrus.Logger, groqURL, agentURL string) *HealthChecker {
	return &HealthChecker{
		cache:      c,
		logger:     logger,
		groqURL:    groqURL,
		agentURL:   agentURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckRedis checks Redis cache health
func (h *HealthChecker) CheckRedis() ServiceHealth {
	start := time.Now()

	status := "healthy"
	errorMsg := ""
	if h.cache == nil {
		status = "degraded"
		errorMsg = "cache not configured"
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			status = "unhealthy"
			errorMsg = err.Error()
			h.logger.WithError(err).Error("Redis health check failed")
		}
	}

	return ServiceHealth{
		Name:         "redis",
		Status:       status,
		ResponseTime: int(time.Since(start).Milliseconds()),
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckGroq checks fast provider reachability
func (h *HealthChecker) CheckGroq() ServiceHealth {
	return h.checkUpstream("groq", h.groqURL+"/models")
}

// CheckAgent checks the agent research service
func (h *HealthChecker) CheckAgent() ServiceHealth {
	if h.agentURL == "" {
		return ServiceHealth{
			Name:        "agent",
			Status:      "degraded",
			Error:       "agent provider not configured",
			LastChecked: time.Now().Format(time.RFC3339),
		}
	}
	return h.checkUpstream("agent", h.agentURL+"/health")
}

func (h *HealthChecker) checkUpstream(name, url string) ServiceHealth {
	start := time.Now()

	resp, err := h.httpClient.Get(url)

	responseTime := int(time.Since(start).Milliseconds())
	status := "healthy"
	errorMsg := ""

	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
	} else {
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			status = "unhealthy"
			errorMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
	}

	if status != "healthy" {
		h.logger.WithFields(logrus.Fields{
			"service": name,
			"error":   errorMsg,
		}).Error("Upstream health check failed")
	}

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll() OverallHealth {
	services := []ServiceHealth{
		h.CheckRedis(),
		h.CheckGroq(),
		h.CheckAgent(),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
		if service.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

var startTime = time.Now()

func (h *HealthChecker) getUptime() string {
	return time.Since(startTime).String()
}
