package diamonds

import (
	"errors"
	"fmt"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingStore      = errors.New("catalog store is required")
	errMissingFeedClient = errors.New("feed client is required")
	errMissingFeedURL    = errors.New("feed url is required")
	errMissingIDProvider = errors.New("id provider is required")
	errFeedNotArray      = errors.New("feed top-level value is not an array")
	errEntryNotObject    = errors.New("feed entry is not an object")
)

// ServiceError carries a stable machine-readable code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// FetchError reports that the feed could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a feed body that is not a JSON array.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a feed element that cannot become a record.
type ValidationError struct {
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("feed entry %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("feed entry %d: field %s: %v", e.Index, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a storage fault on a single row.
type PersistenceError struct {
	Operation string
	DiamondID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s diamond %q: %v", e.Operation, e.DiamondID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
