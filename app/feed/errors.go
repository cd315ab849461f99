package feed

import (
	"fmt"
)

// FetchError reports a network or transport failure while retrieving a
// feed. It aborts synchronization of that feed only.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports malformed feed XML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MalformedItemError reports an entry without a usable GUID. A single
// malformed entry invalidates the whole feed: identity cannot be
// derived for it, and partial ingestion would leave the catalogue
// inconsistent.
type MalformedItemError struct {
	Index int
}

func (e *MalformedItemError) Error() string {
	return fmt.Sprintf("item %d has no usable GUID", e.Index)
}
