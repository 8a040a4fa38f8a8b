package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/livepeer/video-ingest/log"
)

// Kind classifies an error the way the pipeline reasons about failures,
// independent of how it is eventually surfaced over HTTP.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindTranscode
	KindDependency
	KindIO
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTranscode:
		return "transcode"
	case KindDependency:
		return "dependency"
	case KindIO:
		return "io"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// StatusFor maps an error kind to the HTTP status code the delivery layer
// should respond with. This is the only place a kind turns into a status.
func StatusFor(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDependency:
		return http.StatusServiceUnavailable
	case KindTranscode, KindIO, KindHTTP:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the error type carried through the pipeline and handlers. It
// wraps an optional underlying cause so errors.Is/errors.As keep working.
type APIError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newAPIError(kind Kind, err error, format string, args ...interface{}) *APIError {
	return &APIError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...interface{}) *APIError {
	return newAPIError(KindValidation, nil, format, args...)
}

func WrapValidation(err error, format string, args ...interface{}) *APIError {
	return newAPIError(KindValidation, err, format, args...)
}

func NotFoundf(format string, args ...interface{}) *APIError {
	return newAPIError(KindNotFound, nil, format, args...)
}

func Transcodef(format string, args ...interface{}) *APIError {
	return newAPIError(KindTranscode, nil, format, args...)
}

func WrapTranscode(err error, format string, args ...interface{}) *APIError {
	return newAPIError(KindTranscode, err, format, args...)
}

func Dependencyf(format string, args ...interface{}) *APIError {
	return newAPIError(KindDependency, nil, format, args...)
}

func WrapDependency(err error, format string, args ...interface{}) *APIError {
	return newAPIError(KindDependency, err, format, args...)
}

func WrapIO(err error, format string, args ...interface{}) *APIError {
	return newAPIError(KindIO, err, format, args...)
}

func HTTPErrorf(format string, args ...interface{}) *APIError {
	return newAPIError(KindHTTP, nil, format, args...)
}

func WrapHTTP(err error, format string, args ...interface{}) *APIError {
	return newAPIError(KindHTTP, err, format, args...)
}

// KindOf returns the kind of err if it is (or wraps) an *APIError, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// WriteHTTPError writes the JSON error envelope for err, deriving the
// status code from its kind (defaulting to 500 for plain errors).
func WriteHTTPError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	var errorDetail string

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = StatusFor(apiErr.Kind)
		msg = apiErr.Msg
		if apiErr.Err != nil {
			errorDetail = apiErr.Err.Error()
		}
	} else if err != nil {
		errorDetail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); encErr != nil {
		log.LogNoJobID("error writing HTTP error", "http_error_msg", msg, "error", encErr)
	}
}

// WriteHTTPUnsupportedMediaType is a thin convenience for the one status
// code (415) that doesn't map to a Kind, used by the upload handlers
// before a Kind is otherwise applicable.
func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnsupportedMediaType)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": ""}); err != nil {
		log.LogNoJobID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
}
