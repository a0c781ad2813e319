package vkv

import (
	"errors"
	"fmt"
)

// Code classifies the kind of failure an operation hit.
type Code string

const (
	// CodeNotFound marks a semantic "not present" result. No vkv function
	// returns an error with this code — get() returns empty bytes, del()
	// returns false, scan() simply omits the key.
	CodeNotFound Code = "NOT_FOUND"

	// CodeIOFailure wraps a filesystem error (open/read/write/mkdir/rm).
	CodeIOFailure Code = "IO_FAILURE"

	// CodeInvalidInput marks a rejected vector (wrong dimension, NaN/Inf).
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeCorruptSegment marks an sstable whose self-described header is
	// internally inconsistent (count, min/max, or offset table).
	CodeCorruptSegment Code = "CORRUPT_SEGMENT"
)

// Error is the error type returned across the vkv public API. It carries a
// Code so callers can branch on failure kind without string matching, and
// wraps an underlying cause when one exists.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vkv: [%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("vkv: [%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

func ioErr(msg string, cause error) *Error {
	return newErr(CodeIOFailure, msg, cause)
}

func corruptErr(msg string, cause error) *Error {
	return newErr(CodeCorruptSegment, msg, cause)
}

func invalidErr(msg string) *Error {
	return newErr(CodeInvalidInput, msg, nil)
}

// Is reports whether err's chain contains a *Error of the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
