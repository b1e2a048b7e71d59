package models

// Research modes supported by the pipeline
const (
	ModeQuick       = "quick"
	ModeDeep        = "deep"
	ModeCompetitive = "competitive"
	ModeMarket      = "market"
	ModeSynthesis   = "synthesis"
)

// Source freshness classifications
const (
	FreshnessRecent   = "recent"
	FreshnessModerate = "moderate"
	FreshnessDated    = "dated"
)

// Source type classifications
const (
	SourceTypeNews       = "news"
	SourceTypeArticle    = "article"
	SourceTypeResearch   = "research"
	SourceTypeCompany    = "company"
	SourceTypeGovernment = "government"
	SourceTypeOther      = "other"
)

// Insight types produced by synthesis
const (
	InsightKeyFinding  = "key_finding"
	InsightStatistic   = "statistic"
	InsightTrend       = "trend"
	InsightOpportunity = "opportunity"
	InsightRisk        = "risk"
	InsightAction      = "action"
)

// Insight confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ValidModes maps the accepted research modes
var ValidModes = map[string]bool{
	ModeQuick:       true,
	ModeDeep:        true,
	ModeCompetitive: true,
	ModeMarket:      true,
	ModeSynthesis:   true,
}

// ResearchSource is a single scored search result. Immutable once scored.
type ResearchSource struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Quality   int    `json:"quality"`
	Freshness string `json:"freshness"`
	Domain    string `json:"domain"`
	Type      string `json:"type"`
}

// ResearchInsight is one typed finding extracted by synthesis.
// Sources holds indices into the response source list.
type ResearchInsight struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Confidence string `json:"confidence"`
	Sources    []int  `json:"sources"`
}

// KeyStat is a single headline statistic from synthesis
type KeyStat struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Source *int   `json:"source,omitempty"`
}

// Synthesis is the structured output of the synthesis stage
type Synthesis struct {
	Summary  string            `json:"summary"`
	Insights []ResearchInsight `json:"insights"`
	KeyStats []KeyStat         `json:"keyStats"`
}
