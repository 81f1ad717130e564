package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidRange  = errors.New("invalid date range")
	ErrEmptyResponse = errors.New("empty response body")
	ErrBodyTooLarge  = errors.New("body exceeds max_body_size")
	ErrInvalidURL    = errors.New("invalid URL")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports that an expected structural element is absent from a page.
type ExtractionError struct {
	Category string
	ID       string
	Selector string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error for %s %s: %q not found", e.Category, e.ID, e.Selector)
}

// ParseError reports that a mined cross-reference list does not line up
// with the rows of the table it belongs to.
type ParseError struct {
	Category string
	ID       string
	Rule     string
	Want     int
	Got      int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s %s (rule=%q): expected %d values, got %d",
		e.Category, e.ID, e.Rule, e.Want, e.Got)
}

// FormatError reports a raw field that does not match its expected layout.
type FormatError struct {
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s: %q", e.Field, e.Value)
}

// StorageError wraps errors that occur in the artifact store or an output sink.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MappingError reports a missing or malformed category mapping table.
type MappingError struct {
	Name string
	Path string
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %q (%s): %v", e.Name, e.Path, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
