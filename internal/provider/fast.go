package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/davekm/briefline/backend/internal/scoring"
	"github.com/sirupsen/logrus"
)

const (
	fastProviderName = "groq-compound"

	compoundModel     = "groq/compound"
	compoundMiniModel = "groq/compound-mini"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)

// FastProvider calls a search-augmented completion API and extracts
// cited sources from tool metadata and the answer text itself.
type FastProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	scorer     *scoring.Scorer
	logger     *logrus.Logger
}

func NewFastProvider(baseURL, apiKey string, scorer *scoring.Scorer, logger *logrus.Logger) *FastProvider {
	return &FastProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: FastTimeout + 5*time.Second,
		},
		scorer: scorer,
		logger: logger,
	}
}

func (p *FastProvider) Name() string {
	return fastProviderName
}

// Configured reports whether upstream credentials are present
func (p *FastProvider) Configured() bool {
	return p.apiKey != "" && p.baseURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type searchToolResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type executedTool struct {
	Type          string `json:"type"`
	SearchResults struct {
		Results []searchToolResult `json:"results"`
	} `json:"search_results"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content       string         `json:"content"`
			ExecutedTools []executedTool `json:"executed_tools"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *FastProvider) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, FastTimeout)
	defer cancel()

	model := compoundModel
	if opts.Fast {
		model = compoundMiniModel
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: fastSystemPrompt(opts.Mode)},
			{Role: "user", Content: buildUserPrompt(query, opts.Context)},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	p.logger.WithFields(logrus.Fields{
		"provider": fastProviderName,
		"model":    model,
		"mode":     opts.Mode,
	}).Debug("Dispatching fast search request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(fastProviderName, ctx, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyErr(fastProviderName, ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s request failed with status %d: %s",
			fastProviderName, resp.StatusCode, truncateBody(responseBody))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(responseBody, &completion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", fastProviderName, err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", fastProviderName)
	}

	answer := completion.Choices[0].Message.Content
	sources := p.extractSources(completion.Choices[0].Message.ExecutedTools, answer)

	p.logger.WithFields(logrus.Fields{
		"provider":      fastProviderName,
		"answer_length": len(answer),
		"sources":       len(sources),
	}).Debug("Fast search completed")

	return &Result{
		Answer:   answer,
		Sources:  sources,
		Duration: time.Since(start),
	}, nil
}

// extractSources merges tool-execution results with literal URLs found in
// the answer text, dedupes by exact URL, scores everything, and keeps the
// top MaxSources by quality.
func (p *FastProvider) extractSources(tools []executedTool, answer string) []models.ResearchSource {
	var sources []models.ResearchSource
	seen := make(map[string]bool)

	for _, tool := range tools {
		for _, r := range tool.SearchResults.Results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			sources = append(sources, p.scorer.Score(r.Title, r.URL, r.Content))
		}
	}

	for _, match := range urlPattern.FindAllString(answer, -1) {
		cleaned := strings.TrimRight(match, ".,;:")
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		sources = append(sources, p.scorer.Score("", cleaned, ""))
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Quality > sources[j].Quality
	})

	if len(sources) > MaxSources {
		sources = sources[:MaxSources]
	}
	return sources
}

func buildUserPrompt(query, docContext string) string {
	if docContext == "" {
		return query
	}
	return fmt.Sprintf("%s\n\nDocument context:\n%s", query, docContext)
}

func fastSystemPrompt(mode string) string {
	base := "You are a business research assistant. Search the web and report " +
		"your findings as concise, well-structured prose. Cite every claim with " +
		"the URL of its source. Prefer recent, authoritative sources and include " +
		"concrete figures where available."

	switch mode {
	case models.ModeCompetitive:
		return base + " Focus on competitors: positioning, pricing, strengths and weaknesses."
	case models.ModeMarket:
		return base + " Focus on market sizing, growth rates and segment trends."
	case models.ModeSynthesis:
		return base + " Focus on reconciling multiple viewpoints into a coherent picture."
	default:
		return base
	}
}

func truncateBody(body []byte) string {
	const limit = 300
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
