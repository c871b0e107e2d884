package llm

import "errors"

var (
	// ErrUnavailable marks transient failures: network errors, timeouts,
	// rate limits and server-side errors. Callers may retry.
	ErrUnavailable = errors.New("llm: provider unavailable")

	// ErrContentRejected marks a provider refusing the request itself,
	// typically a safety filter. Retrying the same prompt is pointless.
	ErrContentRejected = errors.New("llm: content rejected")
)

// classifyStatus maps an HTTP status to the right sentinel.
func classifyStatus(status int) error {
	switch {
	case status == 429 || status >= 500:
		return ErrUnavailable
	case status == 400 || status == 403 || status == 422:
		return ErrContentRejected
	default:
		return nil
	}
}
