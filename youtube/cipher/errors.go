package cipher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ytget/yt2ogg/errs"
)

// Error codes
const (
	ErrCodePlayerJSNotFound   = "PLAYER_JS_NOT_FOUND"
	ErrCodePlayerJSDownload   = "PLAYER_JS_DOWNLOAD_FAILED"
	ErrCodeSignatureDecipher  = "SIGNATURE_DECIPHER_FAILED"
	ErrCodeSignatureInvalid   = "SIGNATURE_INVALID"
	ErrCodeSignatureNotFound  = "SIGNATURE_NOT_FOUND"
	ErrCodeJSExecutionFailed  = "JS_EXECUTION_FAILED"
	ErrCodeJSParsingFailed    = "JS_PARSING_FAILED"
	ErrCodeRegexParsingFailed = "REGEX_PARSING_FAILED"
)

// Error represents a structured error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != nil {
		msg += fmt.Sprintf(" (%v)", e.Details)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is makes every cipher error match errs.ErrCipherFailed.
func (e *Error) Is(target error) bool {
	return target == errs.ErrCipherFailed
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func wrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func hasCode(err error, codes ...string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsNotFound returns true if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodePlayerJSNotFound, ErrCodeSignatureNotFound)
}

// IsInvalid returns true if the error is an invalid signature error
func IsInvalid(err error) bool {
	return hasCode(err, ErrCodeSignatureInvalid)
}

// IsJSError returns true if the error is a JavaScript execution error
func IsJSError(err error) bool {
	return hasCode(err, ErrCodeJSExecutionFailed, ErrCodeJSParsingFailed)
}

// IsRegexError returns true if the error is a regex parsing error
func IsRegexError(err error) bool {
	return hasCode(err, ErrCodeRegexParsingFailed)
}

// IsDownloadError returns true if player.js could not be fetched
func IsDownloadError(err error) bool {
	return hasCode(err, ErrCodePlayerJSDownload)
}
