// Package httputil holds the JSON response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// ErrorBody is the JSON document of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes an ErrorBody with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// StatusMapping pairs a sentinel error with the status it is reported as.
type StatusMapping struct {
	Err    error
	Status int
}

// WriteError reports err with the status of the first mapping it wraps, or
// 500 when none matches. 5xx messages are logged and replaced with a
// generic one.
func WriteError(w http.ResponseWriter, err error, mappings ...StatusMapping) {
	status := http.StatusInternalServerError
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			status = m.Status
			break
		}
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		msg = http.StatusText(status)
	}
	WriteJSONError(w, status, msg)
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// QueryInt parses an integer query parameter in [lo, hi], returning def
// when the parameter is absent.
func QueryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid %q parameter: want an integer in [%d, %d]", name, lo, hi)
	}
	return v, nil
}
