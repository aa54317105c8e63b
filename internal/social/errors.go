package social

import (
	"encoding/json"
	"fmt"

	"github.com/QuoteArtHQ/quoteart-backend/internal/retry"
)

// APIError is the tagged error the platform client returns for any non-2xx
// response. Retry logic dispatches on Kind rather than inspecting the shape of
// the underlying response.
type APIError struct {
	Platform string
	Status   int
	Message  string
	Kind     retry.Kind
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error status=%d: %s", e.Platform, e.Status, e.Message)
}

func (e *APIError) RetryKind() retry.Kind {
	return e.Kind
}

// kindForStatus maps HTTP statuses to retry kinds. 401/403/404 never recover
// on retry; everything else (5xx, 429, network-shaped 4xx) is transient.
func kindForStatus(status int) retry.Kind {
	switch status {
	case 401, 403, 404:
		return retry.KindNotRetryable
	default:
		return retry.KindTransient
	}
}

func newAPIError(platform string, status int, body []byte) *APIError {
	return &APIError{
		Platform: platform,
		Status:   status,
		Message:  extractGraphErrorMessage(body, truncate(string(body), 400)),
		Kind:     kindForStatus(status),
	}
}

// extractGraphErrorMessage pulls {"error":{"message":...}} out of a Graph API
// error body, falling back to the raw text.
func extractGraphErrorMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fallback
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
