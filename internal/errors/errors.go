package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown Code = "unknown"

	// Session and transport errors
	CodeAuthentication Code = "authentication_failed"
	CodeAPI            Code = "api_error"
	CodeNetwork        Code = "network_error"
	CodeDownload       Code = "download_failed"

	// Export pipeline errors
	CodeExport            Code = "export_failed"
	CodeMalformedInput    Code = "malformed_input"
	CodeInvalidTransition Code = "invalid_transition"
	CodeCancelled         Code = "cancelled"

	CodeConfigurationError Code = "configuration_error"
	CodeHistory            Code = "history_failed"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// Wrap attaches a code to err, prefixing its text with msg.
// A nil err yields nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		return Error{Code: code, Err: err}
	}
	return Error{Code: code, Message: msg + ": " + err.Error(), Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
// Unlike CodeOf it looks past outer codes, so an export error wrapping an API
// error matches both CodeExport and CodeAPI.
func IsCode(err error, code Code) bool {
	for err != nil {
		var structured Error
		if !errors.As(err, &structured) {
			return false
		}
		if structured.Code == code {
			return true
		}
		err = structured.Err
	}
	return false
}
