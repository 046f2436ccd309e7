package harvest

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration  = errors.New("invalid configuration")
	ErrNetwork        = errors.New("network failure")
	ErrParse          = errors.New("parse failure")
	ErrRetryExhausted = errors.New("retries exhausted")
)

// ConfigurationError rejects a run before any network activity.
type ConfigurationError struct {
	Field string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NetworkError covers timeouts, connection failures and non-2xx responses.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ParseError means a document lacked something the caller cannot do without.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.What, e.Err)
	}
	return "parse " + e.What + ": not found"
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// RetryExhaustedError is logged when every detail fetch attempt failed.
type RetryExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }
