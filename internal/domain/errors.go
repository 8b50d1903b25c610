package domain

import (
	"errors"
	"fmt"
)

// FetchError reports that the report could not be obtained from the portal:
// unreachable, a form element never appeared, or no download within the wait budget.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError reports a report that cannot be normalized. Retrying does not help.
type FormatError struct {
	File string
	Err  error
}

func (e *FormatError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("format: %v", e.Err)
	}
	return fmt.Sprintf("format %s: %v", e.File, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// StoreError reports that the storage layer rejected or could not take a write.
type StoreError struct {
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store: %v", e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewFetchError(op string, err error) error {
	return &FetchError{Op: op, Err: err}
}

func NewFormatError(file string, err error) error {
	return &FormatError{File: file, Err: err}
}

func NewStoreError(collection string, err error) error {
	return &StoreError{Collection: collection, Err: err}
}

// Stage names the pipeline stage an error belongs to, for logs and run entries.
func Stage(err error) string {
	var fetchErr *FetchError
	var formatErr *FormatError
	var storeErr *StoreError
	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &formatErr):
		return "normalize"
	case errors.As(err, &storeErr):
		return "store"
	default:
		return "unknown"
	}
}
