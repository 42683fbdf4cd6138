package club

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrBookNotFound is returned when no book has the requested id.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookNotCurrent is returned when a meeting is completed for a book
	// that is not the one being read.
	ErrBookNotCurrent = errors.New("book is not the current book")

	// ErrInvalidUser is returned for identities other than Manon and Jerina.
	ErrInvalidUser = errors.New("unknown user")

	// ErrNoUserSelected is returned by operations that need an identity
	// before one has been picked.
	ErrNoUserSelected = errors.New("no user selected")

	// ErrInvalidInput is matched by every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage is matched by every *StoreError.
	ErrStorage = errors.New("storage failure")
)

// FieldError names one rejected field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects the problems found in a draft.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) required(field, value string, max int) {
	if strings.TrimSpace(value) == "" {
		e.add(field, "is required")
		return
	}
	e.maxLen(field, value, max)
}

func (e *ValidationError) maxLen(field, value string, max int) {
	if n := utf8.RuneCountInString(value); n > max {
		e.add(field, fmt.Sprintf("is %d characters, limit is %d", n, max))
	}
}

func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StoreError reports a failed read or write of a persisted record. The
// in-memory state is left as it was before the failing operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStorage }
