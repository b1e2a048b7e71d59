package models

// DocContext carries optional document metadata sent with a research request
type DocContext struct {
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	WorkspaceName string   `json:"workspaceName"`
	Tags          []string `json:"tags"`
}

// ResearchOptions tunes a single research request
type ResearchOptions struct {
	MaxSources int    `json:"maxSources"`
	Synthesize *bool  `json:"synthesize"`
	Freshness  string `json:"freshness"`
}

type ResearchRequest struct {
	Query      string           `json:"query" binding:"required"`
	Mode       string           `json:"mode"`
	DocContext *DocContext      `json:"docContext"`
	Options    *ResearchOptions `json:"options"`
}

// WantsSynthesis reports whether the caller asked for structured synthesis.
// Defaults to true when options are absent.
func (r *ResearchRequest) WantsSynthesis() bool {
	if r.Options == nil || r.Options.Synthesize == nil {
		return true
	}
	return *r.Options.Synthesize
}

// ResearchMetadata describes how a response was produced
type ResearchMetadata struct {
	Mode           string `json:"mode"`
	Query          string `json:"query"`
	Provider       string `json:"provider"`
	DurationMs     int64  `json:"durationMs"`
	SourceCount    int    `json:"sourceCount"`
	SynthesisModel string `json:"synthesisModel,omitempty"`
}

type ResearchResponse struct {
	Synthesis Synthesis        `json:"synthesis"`
	Sources   []ResearchSource `json:"sources"`
	RawAnswer string           `json:"rawAnswer,omitempty"`
	Metadata  ResearchMetadata `json:"metadata"`
}

// Identity is the tenant identity resolved from a bearer credential
type Identity struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}

// TenantKey scopes rate limiting to user within workspace
func (i Identity) TenantKey() string {
	if i.WorkspaceID == "" {
		return i.UserID
	}
	return i.UserID + ":" + i.WorkspaceID
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
