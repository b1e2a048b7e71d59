package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
	"github.com/davekm/briefline/backend/internal/scoring"
	"github.com/sirupsen/logrus"
)

const (
	agentProviderName = "agent-research"

	sseDataPrefix = "data: "
	sseDoneMarker = "[DONE]"

	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 1024 * 1024
)

// AgentProvider calls a long-running research agent over a server-sent-events
// stream, accumulating answer text and sources as events arrive.
type AgentProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	scorer     *scoring.Scorer
	logger     *logrus.Logger
}

func NewAgentProvider(baseURL, apiKey string, scorer *scoring.Scorer, logger *logrus.Logger) *AgentProvider {
	return &AgentProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: AgentTimeout + 10*time.Second,
		},
		scorer: scorer,
		logger: logger,
	}
}

func (p *AgentProvider) Name() string {
	return agentProviderName
}

// Configured reports whether upstream credentials are present
func (p *AgentProvider) Configured() bool {
	return p.apiKey != "" && p.baseURL != ""
}

type agentRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

// agentEvent is one decoded SSE payload. Content events carry answer text,
// sources events carry raw search results.
type agentEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Sources []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"sources"`
}

func (p *AgentProvider) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, AgentTimeout)
	defer cancel()

	jsonData, err := json.Marshal(agentRequest{Query: query, Context: opts.Context})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/research", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	p.logger.WithField("provider", agentProviderName).Debug("Dispatching agent research request")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(agentProviderName, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s request failed with status %d: %s",
			agentProviderName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	answer, sources, err := p.readStream(ctx, resp.Body)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Quality > sources[j].Quality
	})
	if len(sources) > MaxSources {
		sources = sources[:MaxSources]
	}

	p.logger.WithFields(logrus.Fields{
		"provider":      agentProviderName,
		"answer_length": len(answer),
		"sources":       len(sources),
	}).Debug("Agent research completed")

	return &Result{
		Answer:   answer,
		Sources:  sources,
		Duration: time.Since(start),
	}, nil
}

// readStream consumes the SSE body line by line. Malformed event payloads
// are skipped; only transport-level failures abort the read.
func (p *AgentProvider) readStream(ctx context.Context, body io.Reader) (string, []models.ResearchSource, error) {
	var answer strings.Builder
	var sources []models.ResearchSource
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return "", nil, classifyErr(agentProviderName, ctx, ctx.Err())
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, sseDataPrefix)
		if data == sseDoneMarker {
			break
		}

		var event agentEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			p.logger.WithField("provider", agentProviderName).Debug("Skipping malformed stream event")
			continue
		}

		switch event.Type {
		case "content":
			answer.WriteString(event.Text)
		case "sources":
			for _, s := range event.Sources {
				if s.URL != "" && seen[s.URL] {
					continue
				}
				if s.URL != "" {
					seen[s.URL] = true
				}
				sources = append(sources, p.scorer.Score(s.Title, s.URL, s.Snippet))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", nil, classifyErr(agentProviderName, ctx, err)
	}

	return answer.String(), sources, nil
}
