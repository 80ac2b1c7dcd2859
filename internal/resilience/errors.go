package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps a fetch failure that is safe to retry. RetryAfter is
// the server's requested wait, zero when none was sent.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// TransientResponse builds a TransientError from a retryable HTTP answer,
// honoring its Retry-After header.
func TransientResponse(err error, resp *http.Response) *TransientError {
	return &TransientError{
		Err:        err,
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// ParseRetryAfter reads a Retry-After value given either as delay seconds
// or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// RetryAfter returns the server-requested wait carried by err, if any.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Kind classifies a failure of an external collaborator so callers can
// explain the specific cause to the user.
type Kind string

const (
	// KindUnavailable covers network failures and 5xx from read-only sources.
	KindUnavailable Kind = "unavailable"
	// KindRateLimited is HTTP 429.
	KindRateLimited Kind = "rate_limited"
	// KindQuotaExhausted is HTTP 402.
	KindQuotaExhausted Kind = "quota_exhausted"
	// KindUpstream is any other non-success answer from an AI endpoint.
	KindUpstream Kind = "upstream"
)

// UpstreamError is a failure reported by (or while reaching) an external
// service. StatusCode is 0 when no response was received.
type UpstreamError struct {
	Service    string
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Service, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Kind, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUnavailableError marks a read-only source as unreachable.
func NewUnavailableError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Kind: KindUnavailable, Err: err}
}

// AsUpstream returns the first UpstreamError in err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRateLimited reports whether err carries an HTTP 429 from upstream.
func IsRateLimited(err error) bool {
	ue, ok := AsUpstream(err)
	return ok && ue.Kind == KindRateLimited
}

// IsQuotaExhausted reports whether err carries an HTTP 402 from upstream.
func IsQuotaExhausted(err error) bool {
	ue, ok := AsUpstream(err)
	return ok && ue.Kind == KindQuotaExhausted
}

// NewRemoteError builds an UpstreamError for a non-success answer from an AI
// endpoint. 429 and 402 keep their specific kinds; every other status is
// KindUpstream.
func NewRemoteError(service string, statusCode int, message string, err error) *UpstreamError {
	kind := KindUpstream
	switch statusCode {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusPaymentRequired:
		kind = KindQuotaExhausted
	}
	return &UpstreamError{
		Service:    service,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}
