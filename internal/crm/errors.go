package crm

import (
	"errors"
	"fmt"
)

// ErrTransport is wrapped by errors that never reached the CRM API layer
var ErrTransport = errors.New("crm: transport failure")

// APIError is returned when the CRM rejects an API call
type APIError struct {
	Entity  string
	Action  string
	Message string
	Code    string
	Trace   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s.%s: %s (%s)", e.Entity, e.Action, e.Message, e.Code)
	}
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Action, e.Message)
}

// IsAPIError reports whether err is (or wraps) an *APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
