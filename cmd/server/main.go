package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/davekm/briefline/backend/internal/api/handlers"
	"github.com/davekm/briefline/backend/internal/auth"
	"github.com/davekm/briefline/backend/internal/cache"
	"github.com/davekm/briefline/backend/internal/config"
	"github.com/davekm/briefline/backend/internal/health"
	"github.com/davekm/briefline/backend/internal/middleware"
	"github.com/davekm/briefline/backend/internal/provider"
	"github.com/davekm/briefline/backend/internal/ratelimit"
	"github.com/davekm/briefline/backend/internal/research"
	"github.com/davekm/briefline/backend/internal/sanitize"
	"github.com/davekm/briefline/backend/internal/scoring"
	"github.com/davekm/briefline/backend/internal/synthesis"
	"github.com/davekm/briefline/backend/pkg/utils"
)

const (
	limiterSweepInterval = time.Minute
	limiterSweepAge      = 5 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting briefline research service...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	configured := cfg.ValidateGroq() == nil
	if !configured {
		logger.Warn("Groq credentials missing; research requests will return 503")
	}

	var responseCache *cache.Cache
	if cfg.Redis.URL != "" {
		responseCache, err = cache.New(cfg.Redis.URL, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable; running without response cache")
			responseCache = nil
		} else {
			defer responseCache.Close()
		}
	}

	scorer := scoring.NewScorer()
	fast := provider.NewFastProvider(cfg.Groq.BaseURL, cfg.Groq.APIKey, scorer, logger)

	var agent provider.SearchProvider
	if cfg.AgentConfigured() {
		agent = provider.NewAgentProvider(cfg.Agent.BaseURL, cfg.Agent.APIKey, scorer, logger)
		logger.Info("Agent research provider enabled")
	} else {
		logger.Info("Agent research provider not configured; deep mode uses fast provider")
	}

	engine := synthesis.NewEngine(cfg.Groq.BaseURL, cfg.Groq.APIKey, cfg.Synthesis.Model, logger)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	var respCache research.ResponseCache
	if responseCache != nil {
		respCache = responseCache
	}

	orchestrator := research.NewOrchestrator(
		sanitize.NewSanitizer(),
		limiter,
		fast,
		agent,
		engine,
		respCache,
		logger,
	)

	authClient := auth.NewClient(cfg.Auth.BaseURL, logger)
	checker := health.NewHealthChecker(responseCache, logger, cfg.Groq.BaseURL, cfg.Agent.BaseURL)

	researchHandler := handlers.NewResearchHandler(orchestrator, authClient, configured, logger)
	healthHandler := handlers.NewHealthHandler(checker, logger)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	router.POST("/api/research", researchHandler.HandleResearch)
	router.GET("/health", healthHandler.HandleHealth)

	// Evict stale rate limit windows so the map does not grow unbounded
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if evicted := limiter.Sweep(limiterSweepAge); evicted > 0 {
					logger.WithField("evicted", evicted).Debug("Swept stale rate limit windows")
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}

	logger.Info("Server stopped")
}
