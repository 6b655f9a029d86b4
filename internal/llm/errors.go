package llm

import "fmt"

// APIError is a non-2xx response from a provider. The body is truncated
// operator-facing detail; it must never be relayed to end users.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}
