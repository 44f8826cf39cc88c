package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind labels a translation failure for retry decisions.
type Kind string

const (
	KindRateLimit     Kind = "rate_limit"
	KindTimeout       Kind = "timeout"
	KindServerError   Kind = "server_error"
	KindAuthError     Kind = "auth_error"
	KindClientError   Kind = "client_error"
	KindConnection    Kind = "connection_error"
	KindResponseShape Kind = "response_shape"
	KindUnknown       Kind = "unknown_error"
)

// Retriable reports whether another attempt at the same request could
// plausibly succeed. Auth and client errors repeat identically, and a
// response the backend cannot shape correctly will stay malformed.
func (k Kind) Retriable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServerError, KindConnection, KindUnknown:
		return true
	}
	return false
}

// APIError is a classified backend failure.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Classify maps an arbitrary error from a backend call to a Kind.
// Errors already carrying an APIError keep their classification.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe"):
		return KindConnection
	}
	return KindUnknown
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServerError
	case status == http.StatusUnauthorized:
		return KindAuthError
	case status >= 400:
		return KindClientError
	}
	return KindUnknown
}

// newStatusError builds an APIError from a non-2xx response. It reads
// a bounded slice of the body for the message and honors a Retry-After
// hint on rate limit responses.
func newStatusError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	apiErr := &APIError{
		Kind:       classifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	if apiErr.Kind == KindRateLimit {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return apiErr
}
