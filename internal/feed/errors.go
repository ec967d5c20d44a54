package feed

import "fmt"

// FetchError is returned when a feed document could not be retrieved.
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

// DecodeError is returned when a document is not well-formed or does not
// have the expected structure.
type DecodeError struct {
	Document string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s document: %v", e.Document, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a field holds content that is not numeric.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
