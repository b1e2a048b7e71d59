package research

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/davekm/briefline/backend/internal/provider"
	"github.com/davekm/briefline/backend/internal/ratelimit"
	"github.com/davekm/briefline/backend/internal/sanitize"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxSources = 10
	rawSummaryPrefix  = 300
)

// Synthesizer compresses raw findings into a structured synthesis
type Synthesizer interface {
	Synthesize(ctx context.Context, rawAnswer string, sources []models.ResearchSource, query string, docContext string) *models.Synthesis
	Model() string
}

// ResponseCache stores assembled responses keyed by tenant, mode and query.
// Lookups and stores use the sanitized query and coerced mode so equivalent
// requests share one entry.
type ResponseCache interface {
	GetCachedResearchResponse(ctx context.Context, tenantKey, mode, query string) (*models.ResearchResponse, error)
	CacheResearchResponse(ctx context.Context, tenantKey, mode, query string, response *models.ResearchResponse) error
}

// Orchestrator sequences the research pipeline: sanitize, rate limit,
// cache, provider chain with fallback, source capping, synthesis, assembly.
type Orchestrator struct {
	sanitizer *sanitize.Sanitizer
	limiter   *ratelimit.Limiter
	fast      provider.SearchProvider
	agent     provider.SearchProvider
	engine    Synthesizer
	cache     ResponseCache
	logger    *logrus.Logger
}

// NewOrchestrator wires the pipeline. agent may be nil when no agent
// provider is configured; deep mode then degrades to the fast provider.
// respCache may be nil when redis is unavailable.
func NewOrchestrator(
	sanitizer *sanitize.Sanitizer,
	limiter *ratelimit.Limiter,
	fast provider.SearchProvider,
	agent provider.SearchProvider,
	engine Synthesizer,
	respCache ResponseCache,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		sanitizer: sanitizer,
		limiter:   limiter,
		fast:      fast,
		agent:     agent,
		engine:    engine,
		cache:     respCache,
		logger:    logger,
	}
}

// Run executes one research request for an authenticated identity. It
// returns the assembled response and the caller's remaining request allowance.
func (o *Orchestrator) Run(ctx context.Context, identity models.Identity, req *models.ResearchRequest) (*models.ResearchResponse, int, error) {
	start := time.Now()

	query, blocked := o.sanitizer.Sanitize(req.Query)
	if blocked {
		o.logger.WithField("user", identity.UserID).Warn("Query blocked by sanitizer")
		return nil, 0, &ValidationError{Message: "Query contains disallowed content"}
	}
	if query == "" {
		return nil, 0, &ValidationError{Message: "Query cannot be empty"}
	}

	mode := req.Mode
	if !models.ValidModes[mode] {
		mode = models.ModeQuick
	}

	limit := o.limiter.Check(identity.TenantKey())
	if !limit.Allowed {
		return nil, 0, &RateLimitError{ResetInMs: limit.ResetInMs}
	}

	docContext := formatDocContext(req.DocContext)

	o.logger.WithFields(logrus.Fields{
		"user":      identity.UserID,
		"workspace": identity.WorkspaceID,
		"mode":      mode,
		"query":     query,
	}).Info("Processing research request")

	// Cache lookup happens after the limiter so replayed queries still
	// consume quota. Doc context makes responses request-specific, so
	// those bypass the cache entirely.
	useCache := o.cache != nil && req.DocContext == nil
	if useCache {
		cached, err := o.cache.GetCachedResearchResponse(ctx, identity.TenantKey(), mode, query)
		if err != nil {
			o.logger.WithError(err).Warn("Cache lookup failed")
		}
		if cached != nil {
			return cached, limit.Remaining, nil
		}
	}

	result, providerName, err := o.runProviderChain(ctx, query, mode, docContext)
	if err != nil {
		return nil, limit.Remaining, err
	}

	sources := capSources(result.Sources, maxSourcesFor(req))

	response := &models.ResearchResponse{
		Sources:   sources,
		RawAnswer: result.Answer,
		Metadata: models.ResearchMetadata{
			Mode:        mode,
			Query:       query,
			Provider:    providerName,
			SourceCount: len(sources),
		},
	}

	if req.WantsSynthesis() {
		response.Synthesis = *o.engine.Synthesize(ctx, result.Answer, sources, query, docContext)
		response.Metadata.SynthesisModel = o.engine.Model()
	} else {
		response.Synthesis = models.Synthesis{
			Summary:  truncate(result.Answer, rawSummaryPrefix),
			Insights: []models.ResearchInsight{},
			KeyStats: []models.KeyStat{},
		}
	}

	response.Metadata.DurationMs = time.Since(start).Milliseconds()

	if useCache {
		storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.cache.CacheResearchResponse(storeCtx, identity.TenantKey(), mode, query, response); err != nil {
			o.logger.WithError(err).Warn("Failed to cache research response")
		}
		cancel()
	}

	o.logger.WithFields(logrus.Fields{
		"provider":    providerName,
		"sources":     len(sources),
		"duration_ms": response.Metadata.DurationMs,
	}).Info("Research request completed")

	return response, limit.Remaining, nil
}

// runProviderChain evaluates an ordered provider list, falling back to the
// next provider on any failure. Adding a provider is a data change here.
func (o *Orchestrator) runProviderChain(ctx context.Context, query, mode, docContext string) (*provider.Result, string, error) {
	opts := provider.Options{
		Fast:    mode == models.ModeQuick,
		Context: docContext,
		Mode:    mode,
	}

	chain := []provider.SearchProvider{o.fast}
	if mode == models.ModeDeep && o.agent != nil {
		chain = []provider.SearchProvider{o.agent, o.fast}
	}

	var lastErr error
	for _, p := range chain {
		result, err := p.Search(ctx, query, opts)
		if err == nil {
			return result, p.Name(), nil
		}

		lastErr = err
		o.logger.WithError(err).WithFields(logrus.Fields{
			"provider": p.Name(),
			"timeout":  provider.IsTimeout(err),
		}).Warn("Search provider failed")

		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", &UpstreamError{
		Message: "Research providers are currently unavailable",
		Cause:   lastErr,
	}
}

func maxSourcesFor(req *models.ResearchRequest) int {
	if req.Options == nil || req.Options.MaxSources <= 0 {
		return defaultMaxSources
	}
	if req.Options.MaxSources > defaultMaxSources {
		return defaultMaxSources
	}
	return req.Options.MaxSources
}

// capSources re-sorts by quality and keeps the top n
func capSources(sources []models.ResearchSource, n int) []models.ResearchSource {
	capped := make([]models.ResearchSource, len(sources))
	copy(capped, sources)

	sort.SliceStable(capped, func(i, j int) bool {
		return capped[i].Quality > capped[j].Quality
	})

	if len(capped) > n {
		capped = capped[:n]
	}
	return capped
}

func formatDocContext(doc *models.DocContext) string {
	if doc == nil {
		return ""
	}

	var parts []string
	if doc.Title != "" {
		parts = append(parts, fmt.Sprintf("document %q", doc.Title))
	}
	if doc.Type != "" {
		parts = append(parts, fmt.Sprintf("type %s", doc.Type))
	}
	if doc.WorkspaceName != "" {
		parts = append(parts, fmt.Sprintf("workspace %s", doc.WorkspaceName))
	}
	if len(doc.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(doc.Tags, ", "))
	}
	return strings.Join(parts, "; ")
}

// truncate cuts on rune boundaries so summaries stay valid UTF-8
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}
