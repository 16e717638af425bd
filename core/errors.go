package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// HTTPError is a request-terminating error carrying an HTTP status code and
// a detail message suitable for the response body. All client-facing error
// conditions of the framework are reported as HTTPError; anything else is
// treated as an internal server error.
type HTTPError struct {
	Status int
	Detail string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
}

// ClientErrorf returns a 400 error with a formatted detail message.
func ClientErrorf(format string, args ...interface{}) HTTPError {
	return HTTPError{Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a 404 error with a formatted detail message.
func NotFoundf(format string, args ...interface{}) HTTPError {
	return HTTPError{Status: http.StatusNotFound, Detail: fmt.Sprintf(format, args...)}
}

// MethodNotAllowedf returns a 405 error with a formatted detail message.
func MethodNotAllowedf(format string, args ...interface{}) HTTPError {
	return HTTPError{Status: http.StatusMethodNotAllowed, Detail: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a 404 HTTPError.
func IsNotFound(err error) bool {
	var herr HTTPError
	return errors.As(err, &herr) && herr.Status == http.StatusNotFound
}

// WriteError writes err as a JSON error body. HTTPErrors keep their status
// and detail, everything else becomes a plain 500.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := http.StatusText(status)
	var herr HTTPError
	if errors.As(err, &herr) {
		status = herr.Status
		detail = herr.Detail
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": detail})
}
