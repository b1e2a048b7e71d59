package research

import "fmt"

// ValidationError rejects bad input; the caller should not retry
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthError means the caller must re-authenticate
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RateLimitError tells the caller when the window resets
type RateLimitError struct {
	ResetInMs int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets in %dms", e.ResetInMs)
}

// UpstreamError is a terminal provider failure after all fallbacks.
// The message is safe to show callers; the cause is for logs only.
type UpstreamError struct {
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}
