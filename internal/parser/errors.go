package parser

import (
	"fmt"
	"strings"
)

// DateFormatError is returned when a date string matches none of the
// supported formats.
type DateFormatError struct {
	Raw string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("unsupported date format %q", e.Raw)
}

// IncompleteItemError describes an item or entry that was closed before
// all required fields were seen. The item is dropped; parsing continues.
type IncompleteItemError struct {
	Title   string
	Missing []string
}

func (e *IncompleteItemError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("item %q is missing %s", e.Title, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("item is missing %s", strings.Join(e.Missing, ", "))
}

// MissingFieldError is returned when required feed metadata is absent
// from the whole document.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("feed has no %s", e.Field)
}

// SyntaxError wraps a tokenizer failure. Once returned, the document
// cannot be read any further.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed feed: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
