package domain

import (
	"errors"
	"fmt"
)

// ErrPartialData marks an upstream response that succeeded but lacked a field
// the digest needs.
var ErrPartialData = errors.New("partial upstream data")

// APIError is returned for a non-2xx upstream response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// DeliveryError is the only failure allowed to end a run.
type DeliveryError struct {
	ChatID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver digest to %s: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
