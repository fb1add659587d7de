// Package httputil holds the response and request helpers shared by the
// control plane handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// Error codes used in JSON error bodies.
const (
	CodeInvalidJSON       = "invalid_json"
	CodeValidation        = "validation_failed"
	CodeNotFound          = "not_found"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeCapacity          = "capacity_exceeded"
	CodeBodyTooLarge      = "body_too_large"
	CodeUpstream          = "upstream_error"
	CodeInternal          = "internal_error"
	CodeVerificationError = "verification_failed"
)

// DefaultMaxBodySize caps control plane request bodies.
const DefaultMaxBodySize = 10 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteText writes a plain text body.
func WriteText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// WriteBadRequest writes a 400 for err. Validation errors are listed field by
// field in the details.
func WriteBadRequest(w http.ResponseWriter, err error) {
	if fields := ValidationFields(err); len(fields) > 0 {
		WriteJSON(w, http.StatusBadRequest, ErrorBody{
			Error:   CodeValidation,
			Message: err.Error(),
			Details: fields,
		})
		return
	}
	WriteError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
}

// ValidationFields collects every *expectation.ValidationError in err,
// following joined and wrapped errors.
func ValidationFields(err error) []*expectation.ValidationError {
	if err == nil {
		return nil
	}
	var out []*expectation.ValidationError
	var walk func(error)
	walk = func(e error) {
		if ve, ok := e.(*expectation.ValidationError); ok {
			out = append(out, ve)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// ReadBody reads at most limit bytes of the request body. An empty body
// yields nil.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: request body exceeds %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// DecodeJSON reads and decodes the request body into v. It reports
// ErrEmptyBody when there is nothing to decode.
func DecodeJSON(r *http.Request, v any, limit int64) error {
	data, err := ReadBody(r, limit)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// Body errors.
var (
	// ErrEmptyBody is returned by DecodeJSON for an empty body.
	ErrEmptyBody = errors.New("request body is empty")

	// ErrBodyTooLarge is returned when a body exceeds the read limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// WriteBodyError writes 413 for ErrBodyTooLarge and 400 for anything else.
func WriteBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, err.Error())
		return
	}
	WriteBadRequest(w, err)
}
