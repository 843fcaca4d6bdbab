package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures that may succeed on a later attempt.
	ErrTransient = errors.New("transient service error")
	// ErrPermanent marks failures that will not succeed if repeated.
	ErrPermanent = errors.New("permanent service error")
	// ErrConfiguration marks adapters that cannot run with the supplied config.
	// It is treated as permanent.
	ErrConfiguration = errors.New("configuration error")
)

// Kind is the recorded classification of a failed stage.
type Kind string

const (
	KindTransient      Kind = "transient_service_error"
	KindPermanent      Kind = "permanent_service_error"
	KindRetryExhausted Kind = "retry_exhausted"
)

// ServiceError describes one failed adapter call.
type ServiceError struct {
	Marker    error
	Service   string
	Operation string
	Message   string
	Status    int
	Err       error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Service, e.Operation, e.Message)
	if e.Status > 0 {
		detail = fmt.Sprintf("%s (status %d)", detail, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

// Unwrap exposes both the marker and the underlying cause to errors.Is.
func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap builds a ServiceError that includes service context while tagging it
// with the provided marker for later classification. A nil marker defaults to
// ErrTransient.
func Wrap(marker error, service, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{Marker: marker, Service: service, Operation: operation, Message: message, Err: err}
}

// WrapStatus is Wrap for an HTTP response status, choosing the marker from the code.
func WrapStatus(service, operation, message string, status int) error {
	return &ServiceError{
		Marker:    StatusMarker(status),
		Service:   service,
		Operation: operation,
		Message:   message,
		Status:    status,
	}
}

// Classify resolves the failure kind of err. Unmarked errors count as
// transient: network and deadline failures surface that way from the standard
// library, and retry limits bound the cost of guessing wrong.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrConfiguration):
		return KindPermanent
	default:
		return KindTransient
	}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return Classify(err) == KindPermanent
}

// Details extracts loggable fields from a ServiceError in err's chain.
func Details(err error) (service, operation string, status int, ok bool) {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return "", "", 0, false
	}
	return svcErr.Service, svcErr.Operation, svcErr.Status, true
}

func buildDetail(service, operation, message string) string {
	parts := make([]string, 0, 3)
	if service = strings.TrimSpace(service); service != "" {
		parts = append(parts, service)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
