package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/types"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Code    types.Code     `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("api").Warn().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: types.CodeOf(err), Message: err.Error()}

	var ce *types.CodedError
	if errors.As(err, &ce) {
		body.Message = ce.Message
		body.Details = ce.Details
	}
	if errors.Is(err, context.DeadlineExceeded) {
		body.Code = types.CodeTimeout
		body.Message = "deadline exceeded"
	}

	status := httpStatus(body.Code)
	if status >= http.StatusInternalServerError {
		log.WithRequestID(requestIDFrom(r.Context())).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, body)
}

func httpStatus(code types.Code) int {
	switch code {
	case types.CodeInvalidRequest, types.CodeInvalidScope:
		return http.StatusBadRequest
	case types.CodeUnauthorized:
		return http.StatusUnauthorized
	case types.CodeUnknownProject, types.CodeUnknownToken:
		return http.StatusNotFound
	case types.CodeProjectConflict, types.CodeAlreadyRunning, types.CodeConcurrentModification:
		return http.StatusConflict
	case types.CodeRuntimeUnavailable, types.CodeNotReady, types.CodeStaleState:
		return http.StatusServiceUnavailable
	case types.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
