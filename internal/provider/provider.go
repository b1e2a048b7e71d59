package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davekm/briefline/backend/internal/models"
)

// Hard deadlines per provider class
const (
	FastTimeout  = 45 * time.Second
	AgentTimeout = 120 * time.Second
)

// MaxSources caps how many scored sources a provider returns
const MaxSources = 10

// Options tunes a single provider call
type Options struct {
	// Fast selects the cheaper model variant where the provider has one
	Fast bool
	// Context is optional document context appended to the prompt
	Context string
	// Mode is the research mode driving prompt focus
	Mode string
}

// Result is the raw outcome of one provider search
type Result struct {
	Answer   string
	Sources  []models.ResearchSource
	Duration time.Duration
}

// SearchProvider executes one external search call under a hard deadline
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) (*Result, error)
}

// TimeoutError marks a provider call that exceeded its deadline
type TimeoutError struct {
	Provider string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s timed out", e.Provider)
}

// IsTimeout reports whether err is a provider deadline failure
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// classifyErr maps transport errors to the provider error taxonomy
func classifyErr(name string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Provider: name}
	}
	return fmt.Errorf("%s request failed: %w", name, err)
}
