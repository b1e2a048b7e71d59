package scoring

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
)

const baseQuality = 50

// Domain allowlists used for source classification. Matching is by exact
// domain or parent-domain suffix.
var (
	researchDomains = []string{
		"nature.com",
		"sciencedirect.com",
		"jstor.org",
		"arxiv.org",
		"springer.com",
		"ieee.org",
		"nber.org",
		"pewresearch.org",
	}

	newsDomains = []string{
		"reuters.com",
		"bloomberg.com",
		"wsj.com",
		"ft.com",
		"nytimes.com",
		"economist.com",
		"cnbc.com",
		"forbes.com",
		"techcrunch.com",
		"theverge.com",
		"axios.com",
		"businessinsider.com",
	}

	authoritativeDomains = []string{
		"wikipedia.org",
		"statista.com",
		"gartner.com",
		"mckinsey.com",
		"hbr.org",
		"deloitte.com",
		"pwc.com",
		"bain.com",
		"forrester.com",
		"crunchbase.com",
	}
)

// Scorer classifies raw search results into scored ResearchSources
type Scorer struct {
	statPattern *regexp.Regexp
	now         func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{
		statPattern: regexp.MustCompile(`(?i)\d+(\.\d+)?\s*%|[$€£]\s*\d|\d+(\.\d+)?\s*(million|billion|trillion)`),
		now:         time.Now,
	}
}

// Score maps a raw (title, url, snippet) triple to a scored source.
// Deterministic and pure: identical input always yields identical output.
// A source without a URL is still scorable; it falls through to type other.
func (s *Scorer) Score(title, rawURL, snippet string) models.ResearchSource {
	domain := extractDomain(rawURL)

	quality := baseQuality
	sourceType := models.SourceTypeOther

	switch {
	case strings.HasSuffix(domain, ".gov"):
		quality += 25
		sourceType = models.SourceTypeGovernment
	case strings.HasSuffix(domain, ".edu") || matchesAny(domain, researchDomains):
		quality += 20
		sourceType = models.SourceTypeResearch
	case matchesAny(domain, newsDomains):
		quality += 15
		sourceType = models.SourceTypeNews
	case matchesAny(domain, authoritativeDomains):
		quality += 15
		sourceType = models.SourceTypeArticle
	}

	if len(snippet) > 200 {
		quality += 5
	}
	if len(snippet) > 400 {
		quality += 5
	}
	if len(title) > 20 {
		quality += 3
	}
	if s.statPattern.MatchString(snippet) {
		quality += 10
	}

	freshness := models.FreshnessModerate
	currentYear := s.now().Year()
	if strings.Contains(snippet, fmt.Sprintf("%d", currentYear)) ||
		strings.Contains(snippet, fmt.Sprintf("%d", currentYear-1)) {
		quality += 5
		freshness = models.FreshnessRecent
	}

	if quality > 100 {
		quality = 100
	}
	if quality < 0 {
		quality = 0
	}

	if title == "" {
		title = domain
	}

	return models.ResearchSource{
		Title:     title,
		URL:       rawURL,
		Snippet:   snippet,
		Quality:   quality,
		Freshness: freshness,
		Domain:    domain,
		Type:      sourceType,
	}
}

// extractDomain returns the hostname of a URL with any leading www. stripped
func extractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// matchesAny reports whether the domain equals or is a subdomain of any entry
func matchesAny(domain string, list []string) bool {
	for _, entry := range list {
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
