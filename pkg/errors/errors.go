// Package errors provides structured error types for stackpm.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code], so the CLI can decide how to present it and callers can branch on
// the failure category without string matching:
//   - NOT_FOUND: unknown package or version
//   - NETWORK_ERROR: transport failures and 5xx responses
//   - MALFORMED_RESPONSE: registry JSON missing expected fields
//   - EXTRACTION_ERROR: archive cannot be decompressed or unpacked
//   - FILESYSTEM_ERROR: store, temp file or rename failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNotFound, "package %s", name)
//	if errors.Is(err, errors.ErrCodeNotFound) {
//	    // Handle missing package
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidVersion  Code = "INVALID_VERSION"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Registry errors
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeNetwork           Code = "NETWORK_ERROR"
	ErrCodeMalformedResponse Code = "MALFORMED_RESPONSE"

	// Local errors
	ErrCodeExtraction Code = "EXTRACTION_ERROR"
	ErrCodeFilesystem Code = "FILESYSTEM_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// The outermost *Error decides; a NETWORK_ERROR wrapping a NOT_FOUND is
// still a network error.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// hints suggest a next step for codes where the user can act.
var hints = map[Code]string{
	ErrCodeNotFound:          "check the package name and version, or the registry URL",
	ErrCodeNetwork:           "check your connection and the registry URL, then retry",
	ErrCodeMalformedResponse: "the registry returned unexpected data; retry with --refresh",
	ErrCodeInvalidManifest:   "fix the JSON in the manifest",
	ErrCodeInvalidVersion:    "use a literal version such as 1.2.3 or ^1.2.3",
	ErrCodeInvalidPath:       "choose a dedicated store directory",
}

// Hint returns a short suggestion for err's code, or "" when there is
// nothing the user can do differently.
func Hint(err error) string {
	return hints[GetCode(err)]
}
