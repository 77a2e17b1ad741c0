package tracez

import (
	"go.opentelemetry.io/otel/codes"
)

// Status codes re-exported so callers need not import otel/codes.
const (
	StatusUnset = codes.Unset
	StatusError = codes.Error
	StatusOK    = codes.Ok
)

// Status is the outcome of a span. Description is only kept for Error.
type Status struct {
	Description string
	Code        codes.Code
}

// IsError reports whether the status is Error.
func (s Status) IsError() bool {
	return s.Code == codes.Error
}
