package clients

import (
	"errors"
	"fmt"
)

// APIError is a failed remote call: any Shopify Admin API response
// with status >= 400, carrying the status and body text. The retry
// policy treats every APIError as transient.
type APIError struct {
	StatusCode int
	Body       string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsAPIError reports whether err wraps an APIError
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// AsAPIError unwraps err to the underlying APIError, if any
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
