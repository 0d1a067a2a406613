// Package respond writes JSON responses and logs failures with the request id.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger(r).Error().Err(err).Msg("encode response")
	}
}

// Error writes {"error": message} with the given status.
func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, ErrorBody{Error: message})
}

// BadRequest logs err at warn level and returns clientMessage to the caller.
func BadRequest(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logger(r).Warn().Err(err).Msg("bad request")
	Error(w, r, http.StatusBadRequest, clientMessage)
}

// InternalError logs err and returns its message with a 500.
func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logger(r).Error().Stack().Err(err).Msg(message)
	Error(w, r, http.StatusInternalServerError, err.Error())
}

func logger(r *http.Request) *zerolog.Logger {
	l := hlog.FromRequest(r)
	if id := middleware.GetReqID(r.Context()); id != "" {
		withID := l.With().Str("request_id", id).Logger()
		return &withID
	}
	return l
}
