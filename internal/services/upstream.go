package services

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// UpstreamError is a non-2xx response from the agent under test or one of
// the external services.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "services: upstream error"
	}
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("services: %s: upstream status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("services: %s: upstream status %d: %s", e.Service, e.StatusCode, body)
}

// IsRetryable reports whether an upstream failure is worth another attempt:
// rate limits, overload statuses, overload signatures in the body, and
// network timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.StatusCode == 429 || ue.StatusCode == 503 {
			return true
		}
		body := strings.ToLower(ue.Body)
		return strings.Contains(body, "overloaded") || strings.Contains(body, "unavailable")
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
