package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Application error codes. Each code maps onto exactly one HTTP status.
const (
	EINVALID      = "invalid"
	EUNAUTHORIZED = "unauthorized"
	EFORBIDDEN    = "forbidden"
	ENOTFOUND     = "not_found"
	EINTERNAL     = "internal"
)

// GenericMessage is what clients see for any internal error.
// The real cause only ever reaches the logs.
const GenericMessage = "An error occurred while processing your request. Please try again later."

// codes maps the application error codes to HTTP status codes.
var codes = map[string]int{
	EINVALID:      http.StatusUnprocessableEntity,
	EUNAUTHORIZED: http.StatusUnauthorized,
	EFORBIDDEN:    http.StatusForbidden,
	ENOTFOUND:     http.StatusNotFound,
	EINTERNAL:     http.StatusInternalServerError,
}

// Log is the logger used by ReturnError and LogError. main replaces it
// with the configured application logger.
var Log = logrus.StandardLogger()

// Error represents an application error. Code is one of the E* constants,
// Message is safe to show to the end user, Fields holds per-field validation
// messages for EINVALID errors.
type Error struct {
	Code    string
	Message string
	Fields  map[string][]string
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("posty error: code=%s message=%s", e.Code, e.Message)
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return GenericMessage.
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return GenericMessage
}

// ErrorStatusCode returns the HTTP status code for an application error code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// Validation collects per-field validation messages. The zero value is ready to use.
type Validation struct {
	fields map[string][]string
}

// Add records a message for the given field.
func (v *Validation) Add(field, message string) {
	if v.fields == nil {
		v.fields = make(map[string][]string)
	}
	v.fields[field] = append(v.fields[field], message)
}

// Has reports whether the field already failed a rule.
func (v *Validation) Has(field string) bool {
	_, ok := v.fields[field]
	return ok
}

// Err returns nil if no message was recorded, otherwise an EINVALID error
// whose message is the first failure, suffixed with the number of others.
func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(v.fields))
	total := 0
	for name, msgs := range v.fields {
		names = append(names, name)
		total += len(msgs)
	}
	sort.Strings(names)
	msg := v.fields[names[0]][0]
	if total > 1 {
		msg = fmt.Sprintf("%s (and %d more error", msg, total-1)
		if total > 2 {
			msg += "s"
		}
		msg += ")"
	}
	return &Error{Code: EINVALID, Message: msg, Fields: v.fields}
}

// Invalid is a shortcut for a validation error on a single field.
func Invalid(field, message string) error {
	var v Validation
	v.Add(field, message)
	return v.Err()
}

// ReturnError writes an error as a JSON response body and sets the matching
// status code. Internal errors are logged and replaced by GenericMessage.
func ReturnError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := ErrorCode(err), ErrorMessage(err)
	if code == EINTERNAL {
		LogError(r, err)
	}

	body := map[string]interface{}{"message": message}
	var e *Error
	if errors.As(err, &e) && len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrorStatusCode(code))
	if err := json.NewEncoder(w).Encode(body); err != nil {
		LogError(r, err)
	}
}

// LogError logs an error together with the request it occurred in.
func LogError(r *http.Request, err error) {
	Log.WithFields(logrus.Fields{
		"http.req.method": r.Method,
		"http.req.path":   r.URL.Path,
	}).Errorf("[http] error: %v", err)
}

// IsCode is a small helper for comparing an error against a code.
func IsCode(err error, code string) bool {
	return strings.EqualFold(ErrorCode(err), code)
}
