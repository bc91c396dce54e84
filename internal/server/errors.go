package server

import (
	"errors"
	"fmt"
)

// ErrBindFailed matches every BindError via errors.Is.
var ErrBindFailed = errors.New("server bind failed")

// BindError reports that the listener could not be opened. The manager stays
// stopped; the caller decides how to surface it.
type BindError struct {
	Host string
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s:%d: %v", e.Host, e.Port, e.Err)
}

// Unwrap exposes both ErrBindFailed and the underlying network error.
func (e *BindError) Unwrap() []error {
	return []error{ErrBindFailed, e.Err}
}
