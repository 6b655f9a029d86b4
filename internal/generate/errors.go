package generate

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/blueprintlab/blueprintd/internal/llm"
)

// ErrGenerationFailed reports that all attempts, including retries, were
// exhausted without a usable completion.
var ErrGenerationFailed = errors.New("blueprint generation failed after retries")

// Kind buckets a provider failure for retry decisions, failure records,
// and operator notifications.
type Kind string

const (
	// KindAuth covers 401 and 403 responses. Never retried: the key is
	// wrong and will stay wrong.
	KindAuth Kind = "auth"
	// KindRateLimited covers 429 responses.
	KindRateLimited Kind = "rate_limited"
	// KindUnavailable covers 5xx responses and unreachable providers.
	KindUnavailable Kind = "unavailable"
	// KindTimeout covers deadline expiry, both context and transport.
	KindTimeout Kind = "timeout"
	// KindGeneric covers everything else, including other 4xx responses.
	KindGeneric Kind = "generic"
)

// ClassifyError maps a provider call error onto a Kind.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindGeneric
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return KindAuth
		case apiErr.StatusCode == 429:
			return KindRateLimited
		case apiErr.StatusCode >= 500:
			return KindUnavailable
		default:
			return KindGeneric
		}
	}

	// A transport-level failure that never produced a response. The
	// provider may recover, so bucket with unavailable.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindUnavailable
	}

	return KindGeneric
}

// retryable reports whether a failure of this kind is worth another
// attempt. Auth and generic client errors are deterministic and are not.
func retryable(k Kind) bool {
	switch k {
	case KindTimeout, KindRateLimited, KindUnavailable:
		return true
	}
	return false
}
