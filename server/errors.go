package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/player"
	"github.com/AudioPress/audiopress/ratelimit"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/tts"
)

// errorBody is the JSON error envelope returned by every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps a typed domain error onto an HTTP status and
// error code. Unrecognized errors become a 500 with a redacted message.
func writeDomainError(w http.ResponseWriter, err error) {
	var limitErr *ratelimit.LimitError
	var synthErr *tts.SynthesisError
	var unsupported *tts.UnsupportedProviderError

	switch {
	case errors.Is(err, records.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, records.ErrInvalidContentID),
		errors.Is(err, tts.ErrEmptyText),
		errors.Is(err, tts.ErrInvalidVoice),
		errors.Is(err, tts.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())

	case errors.Is(err, engine.ErrValidationUnsupported):
		writeError(w, http.StatusBadRequest, "validation_unsupported", err.Error())

	case errors.As(err, &limitErr):
		seconds := int(math.Ceil(limitErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())

	case errors.Is(err, tts.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())

	case errors.Is(err, engine.ErrGenerationInProgress):
		writeError(w, http.StatusConflict, "generation_in_progress", err.Error())

	case errors.Is(err, player.ErrNotEmbeddable):
		writeError(w, http.StatusNotFound, "not_embeddable", err.Error())

	case errors.Is(err, engine.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable",
			logger.RedactSensitiveData(err.Error()))

	case errors.As(err, &synthErr),
		errors.Is(err, tts.ErrSynthesisFailed),
		errors.Is(err, tts.ErrServiceUnavailable),
		errors.Is(err, tts.ErrRateLimited),
		errors.Is(err, tts.ErrNoActiveProvider),
		errors.Is(err, tts.ErrMissingCredentials):
		writeError(w, http.StatusBadGateway, "synthesis_failed",
			logger.RedactSensitiveData(err.Error()))

	default:
		writeError(w, http.StatusInternalServerError, "internal",
			logger.RedactSensitiveData(err.Error()))
	}
}
