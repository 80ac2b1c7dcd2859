package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/guest"
	"github.com/sells-group/btp-research/internal/prefs"
	"github.com/sells-group/btp-research/internal/relevance"
	"github.com/sells-group/btp-research/internal/resilience"
)

const (
	kindBadRequest   = "bad_request"
	kindNotFound     = "not_found"
	kindUnauthorized = "unauthorized"
	kindGuestLimit   = "guest_limit"
	kindParseError   = "parse_error"
	kindUnavailable  = "service_unavailable"
	kindTimeout      = "timeout"
	kindInternal     = "internal"
)

// errorBody is the JSON shape of every error answer.
type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status int    `json:"status"`
}

// apiError is a failure with a fixed status and kind.
type apiError struct {
	status int
	kind   string
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) error { return &apiError{status: http.StatusBadRequest, kind: kindBadRequest, msg: msg} }

func unauthorized(msg string) error {
	return &apiError{status: http.StatusUnauthorized, kind: kindUnauthorized, msg: msg}
}

func notFound(msg string) error { return &apiError{status: http.StatusNotFound, kind: kindNotFound, msg: msg} }

func unavailable(what string) error {
	return &apiError{status: http.StatusServiceUnavailable, kind: kindUnavailable, msg: what + " is not configured"}
}

// classify maps err to a status, kind and user-facing message.
func classify(err error) errorBody {
	var ae *apiError
	if errors.As(err, &ae) {
		return errorBody{Error: ae.msg, Kind: ae.kind, Status: ae.status}
	}

	if ue, ok := resilience.AsUpstream(err); ok {
		status := http.StatusBadGateway
		switch {
		case resilience.IsRateLimited(err):
			status = http.StatusTooManyRequests
		case resilience.IsQuotaExhausted(err):
			status = http.StatusPaymentRequired
		}
		return errorBody{Error: ue.Error(), Kind: string(ue.Kind), Status: status}
	}

	switch {
	case errors.Is(err, guest.ErrLimitReached):
		return errorBody{Error: "guest analysis limit reached", Kind: kindGuestLimit, Status: http.StatusForbidden}
	case errors.Is(err, catalog.ErrNotFound):
		return errorBody{Error: "service not found", Kind: kindNotFound, Status: http.StatusNotFound}
	case errors.Is(err, catalog.ErrInvalidFileName),
		errors.Is(err, prefs.ErrInvalidTheme),
		errors.Is(err, prefs.ErrInvalidLanguage):
		return errorBody{Error: err.Error(), Kind: kindBadRequest, Status: http.StatusBadRequest}
	case errors.Is(err, relevance.ErrClassificationParse):
		return errorBody{Error: "classification reply could not be parsed", Kind: kindParseError, Status: http.StatusBadGateway}
	case errors.Is(err, context.DeadlineExceeded):
		return errorBody{Error: "request timed out", Kind: kindTimeout, Status: http.StatusGatewayTimeout}
	}
	return errorBody{Error: "internal error", Kind: kindInternal, Status: http.StatusInternalServerError}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := classify(err)
	if body.Status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", body.Kind),
			zap.Error(err),
		)
	}
	writeJSON(w, body.Status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}
