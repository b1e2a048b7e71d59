package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultModel is the synthesis-oriented completion model
	DefaultModel = "llama-3.3-70b-versatile"

	maxRawAnswerChars  = 4000
	maxSourcePreview   = 8
	degradedSummaryLen = 600

	requestTimeout = 30 * time.Second
)

// Engine compresses raw search output into a structured synthesis. It never
// fails: malformed model output degrades to a best-effort synthesis instead.
type Engine struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewEngine(baseURL, apiKey, model string, logger *logrus.Logger) *Engine {
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Model reports which completion model the engine targets
func (e *Engine) Model() string {
	return e.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are a research synthesis engine. Respond with a single JSON object and nothing else, matching exactly:
{
  "summary": "2-3 sentence executive summary",
  "insights": [
    {"type": "key_finding|statistic|trend|opportunity|risk|action", "title": "short title", "content": "1-2 sentences", "confidence": "high|medium|low", "sources": [0]}
  ],
  "keyStats": [
    {"label": "metric name", "value": "metric value", "source": 0}
  ]
}
Produce 4-6 insights and 3-5 keyStats. The "sources" and "source" fields are integer indices into the numbered source list provided by the user. Do not wrap the JSON in markdown fences.`

// Synthesize produces a structured synthesis from raw provider output.
// On any upstream or parse failure it returns a degraded synthesis built
// from the raw answer; it never returns an error to the pipeline.
func (e *Engine) Synthesize(ctx context.Context, rawAnswer string, sources []models.ResearchSource, query string, docContext string) *models.Synthesis {
	raw := truncate(rawAnswer, maxRawAnswerChars)

	prompt := buildUserPrompt(query, docContext, raw, sources)

	content, err := e.complete(ctx, prompt)
	if err != nil && ctx.Err() == nil {
		e.logger.WithError(err).Warn("Synthesis model call failed, retrying once")
		content, err = e.complete(ctx, prompt)
	}
	if err != nil {
		e.logger.WithError(err).Warn("Synthesis model call failed, using degraded synthesis")
		return degraded(rawAnswer)
	}

	parsed, err := parseSynthesis(content, len(sources))
	if err != nil {
		e.logger.WithError(err).Warn("Synthesis output rejected, using degraded synthesis")
		return degraded(rawAnswer)
	}

	return parsed
}

func (e *Engine) complete(ctx context.Context, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read synthesis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("synthesis request failed with status %d", resp.StatusCode)
	}

	var completion chatResponse
	if err := json.Unmarshal(responseBody, &completion); err != nil {
		return "", fmt.Errorf("failed to unmarshal synthesis response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("synthesis returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

func buildUserPrompt(query, docContext, rawAnswer string, sources []models.ResearchSource) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Research question: %s\n", query)
	if docContext != "" {
		fmt.Fprintf(&b, "Document context: %s\n", docContext)
	}

	b.WriteString("\nSources:\n")
	limit := len(sources)
	if limit > maxSourcePreview {
		limit = maxSourcePreview
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "[%d] %s (%s, quality %d)\n", i, sources[i].Title, sources[i].Domain, sources[i].Quality)
	}

	b.WriteString("\nRaw findings:\n")
	b.WriteString(rawAnswer)

	return b.String()
}

// parseSynthesis strictly parses model output into a Synthesis, stripping
// markdown fences first and normalizing anything off-contract.
func parseSynthesis(content string, sourceCount int) (*models.Synthesis, error) {
	cleaned := stripCodeFences(content)

	var parsed models.Synthesis
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("synthesis output is not valid JSON: %w", err)
	}

	if parsed.Summary == "" || len(parsed.Insights) == 0 {
		return nil, fmt.Errorf("synthesis output missing summary or insights")
	}

	validType := map[string]bool{
		models.InsightKeyFinding:  true,
		models.InsightStatistic:   true,
		models.InsightTrend:       true,
		models.InsightOpportunity: true,
		models.InsightRisk:        true,
		models.InsightAction:      true,
	}
	validConfidence := map[string]bool{
		models.ConfidenceHigh:   true,
		models.ConfidenceMedium: true,
		models.ConfidenceLow:    true,
	}

	for i := range parsed.Insights {
		insight := &parsed.Insights[i]
		if !validType[insight.Type] {
			insight.Type = models.InsightKeyFinding
		}
		if !validConfidence[insight.Confidence] {
			insight.Confidence = models.ConfidenceMedium
		}
		insight.Sources = filterIndices(insight.Sources, sourceCount)
	}

	kept := parsed.KeyStats[:0]
	for _, stat := range parsed.KeyStats {
		if stat.Label == "" || stat.Value == "" {
			continue
		}
		if stat.Source != nil && (*stat.Source < 0 || *stat.Source >= sourceCount) {
			stat.Source = nil
		}
		kept = append(kept, stat)
	}
	parsed.KeyStats = kept

	return &parsed, nil
}

// filterIndices drops source references outside [0, sourceCount)
func filterIndices(indices []int, sourceCount int) []int {
	kept := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < sourceCount {
			kept = append(kept, idx)
		}
	}
	return kept
}

// stripCodeFences removes a wrapping ```json ... ``` or ``` ... ``` block
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// degraded builds the guaranteed-success fallback synthesis from raw text
func degraded(rawAnswer string) *models.Synthesis {
	summary := truncate(strings.TrimSpace(rawAnswer), degradedSummaryLen)
	if summary == "" {
		summary = "No research findings were returned."
	}

	return &models.Synthesis{
		Summary: summary,
		Insights: []models.ResearchInsight{
			{
				Type:       models.InsightKeyFinding,
				Title:      "Research findings",
				Content:    summary,
				Confidence: models.ConfidenceMedium,
				Sources:    []int{},
			},
		},
		KeyStats: []models.KeyStat{},
	}
}

// truncate cuts on rune boundaries so prompts and summaries stay valid UTF-8
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}
