package jobrunner

import (
	"errors"
	"fmt"
	"github.com/sparktest/orchestrator/common/helpers"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"net/http"
)

// Sentinel kinds, matched with errors.Is.
var (
	ErrClientUnavailable = errors.New("kubernetes client unavailable")
	ErrSubmitRejected    = errors.New("job submission rejected")
	ErrNotFound          = errors.New("not found")
	ErrTransientRead     = errors.New("transient read failure")
	ErrRequestFailed     = errors.New("cluster request failed")
	ErrStoreWrite        = errors.New("store write failure")
)

/**
Error is the only error type that leaves this package. Kind is one of the sentinels above,
Cause is the underlying client-go or store error and is only used for logging.
*/
type Error struct {
	Kind     error
	Op       string
	Resource string
	Cause    error
}

func (e *Error) Error() string {
	if e.Resource != "" && e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Resource, e.Kind, e.Cause)
	} else if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	} else if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

/**
the message without the underlying cause, safe to hand back to api callers
*/
func (e *Error) Detail() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, op string, resource string, cause error) error {
	return &Error{Kind: kind, Op: op, Resource: resource, Cause: cause}
}

/**
classify an error from a client-go call. A 404 from the api server is always NotFound, anything else
gets the kind the caller considers appropriate for that call
*/
func classifyK8sError(op string, resource string, err error, otherwise error) error {
	if apierrors.IsNotFound(err) {
		return newError(ErrNotFound, op, resource, err)
	}
	return newError(otherwise, op, resource, err)
}

/**
stable machine-readable indicator for each kind, used as the "status" of error response bodies
*/
func Indicator(err error) string {
	switch {
	case errors.Is(err, ErrClientUnavailable):
		return "client_unavailable"
	case errors.Is(err, ErrSubmitRejected):
		return "submit_rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientRead):
		return "transient_read_failure"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	case errors.Is(err, ErrStoreWrite):
		return "store_write_failure"
	default:
		return "error"
	}
}

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrClientUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrSubmitRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransientRead), errors.Is(err, ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

/**
write the error as a GenericErrorResponse with the status code and indicator for its kind
*/
func WriteErrorResponse(w http.ResponseWriter, err error) {
	helpers.WriteJsonContent(helpers.GenericErrorResponse{
		Status: Indicator(err),
		Detail: errorDetail(err),
	}, w, HTTPStatus(err))
}

//text that is safe to hand back to api callers for any error
func errorDetail(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Detail()
	}
	return "internal error"
}
