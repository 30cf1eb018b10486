package opensky

import (
	"fmt"
	"time"
)

// AuthError indicates the OAuth2 token request failed. It is fatal to the
// current fetch attempt and must be surfaced to the caller; the client
// never retries it internally.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("opensky token request failed (status %d): %s", e.StatusCode, e.Body)
}

// RateLimitError indicates the API returned 429. RetryAfter carries the
// server-suggested backoff; honouring it is the caller's responsibility.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("opensky rate limited, retry after %s", e.RetryAfter)
}
