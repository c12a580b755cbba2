package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// writeServiceError maps the booking error taxonomy onto HTTP. Transient and
// fatal causes are logged here and never echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	code := appointment.CodeOf(err)
	switch code {
	case appointment.CodeSlotUnavailable:
		writeError(w, http.StatusConflict, string(code), "slot no longer available")
	case appointment.CodeAlreadyCanceled:
		writeError(w, http.StatusConflict, string(code), "appointment already canceled")
	case appointment.CodeNotFound:
		msg := "not found"
		var e *appointment.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
		writeError(w, http.StatusNotFound, string(code), msg)
	case appointment.CodeForbidden:
		writeError(w, http.StatusForbidden, string(code), "not allowed to act on this appointment")
	case appointment.CodeTransient:
		log.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("transient failure")
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, string(code), "temporarily unavailable, please retry")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, string(appointment.CodeFatal), "internal error")
	}
}
