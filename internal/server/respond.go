package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/apperr"
)

// errorBody is the JSON error shape served by every endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Error().Err(err).Msg("failed to encode response")
		}
	}
}

// writeError maps a classified error to its HTTP status and stable code.
// Unclassified errors are logged and served as a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error().Err(err).Msg("unclassified error reached the handler")
		ae = apperr.Wrap(apperr.KindInternal, apperr.CodeInternal, "internal error", err)
	}

	body := errorBody{Error: ae.Message, Code: ae.Code}
	if ae.Field != "" {
		body.Details = "field: " + ae.Field
	} else if ae.Kind == apperr.KindExhausted {
		body.Details = "retries exhausted"
	}
	writeJSON(w, ae.HTTPStatus(), body)
}
