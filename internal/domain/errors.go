package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrUnknownFeed     = errors.New("unknown feed")
	ErrFeedRunning     = errors.New("feed already running")
	ErrCorrelation     = errors.New("acknowledgement does not match submission")
	ErrDisabled        = errors.New("component disabled")
	ErrRateLimited     = errors.New("rate limited")
)

// FetchErrorKind classifies why a call to the trading engine failed.
type FetchErrorKind string

const (
	FetchNetwork    FetchErrorKind = "network"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchDecode     FetchErrorKind = "decode"
)

// FetchError is returned by every engine call that did not produce a usable
// response. Message holds the engine's own failure text for HTTP errors,
// unmodified.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		if e.Message != "" {
			return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("http %d", e.StatusCode)
	case FetchDecode:
		return fmt.Sprintf("decode: %v", e.Err)
	default:
		return fmt.Sprintf("network: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewNetworkError wraps a transport failure (unreachable, reset, timeout).
func NewNetworkError(err error) *FetchError {
	return &FetchError{Kind: FetchNetwork, Err: err}
}

// NewHTTPError records a non-2xx response together with the engine's message.
func NewHTTPError(status int, message string) *FetchError {
	return &FetchError{Kind: FetchHTTPStatus, StatusCode: status, Message: message}
}

// NewDecodeError wraps a malformed response body.
func NewDecodeError(err error) *FetchError {
	return &FetchError{Kind: FetchDecode, Err: err}
}

// AsFetchError extracts a *FetchError from err's chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// BackendReason returns the text shown to a user for a failed engine command:
// the engine's own message when it sent one, otherwise the error text.
func BackendReason(err error) string {
	if err == nil {
		return ""
	}
	if fe, ok := AsFetchError(err); ok && fe.Kind == FetchHTTPStatus && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

// InvalidRequestf returns an error wrapping ErrInvalidRequest with detail.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
