// Package httpx holds the JSON response helpers shared by API handlers.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"tripconcierge/pkg/errors"
)

// StatusClientClosedRequest is reported when the caller went away mid-turn
const StatusClientClosedRequest = 499

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err onto a status code and writes it
func Error(w http.ResponseWriter, err error) {
	var verr *errors.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusBadRequest, ErrorBody{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, errors.ErrInvalidInput):
		JSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
	case errors.Is(err, errors.ErrNotFound):
		JSON(w, http.StatusNotFound, ErrorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		JSON(w, StatusClientClosedRequest, ErrorBody{Error: "request cancelled"})
	case errors.Is(err, errors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		JSON(w, http.StatusGatewayTimeout, ErrorBody{Error: err.Error()})
	case errors.Is(err, errors.ErrUnavailable):
		JSON(w, http.StatusServiceUnavailable, ErrorBody{Error: err.Error()})
	default:
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
	}
}

// Decode reads a JSON body into v, rejecting unknown fields
func Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "decode body: "+err.Error())
	}
	return nil
}
