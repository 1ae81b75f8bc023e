package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrInvalidCredentials is returned by Login when the exchange endpoint issues no token.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingToken is returned when a portal call is attempted without a bearer token.
	ErrMissingToken = errors.New("token is required")

	// ErrMissingURL is returned when a portal call is attempted without a target URL.
	ErrMissingURL = errors.New("url is required")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses from the upstream.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx (and other non-2xx) responses from the upstream.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents a response body that is not valid JSON
	// or does not have the expected shape.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassRejected represents an envelope with success=false.
	ErrorClassRejected ErrorClass = "rejected"

	// ErrorClassContract represents a call made with missing arguments.
	// Nothing is sent over the network.
	ErrorClassContract ErrorClass = "contract"
)

// UpstreamError is returned for every failed portal or exchange call.
type UpstreamError struct {
	// StatusCode is the upstream HTTP status for client/server classes, 0 otherwise.
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error to the status the proxy should answer with.
// networkStatus is used for transport failures, which callers map differently
// (login answers 503, everything else 500).
func (e *UpstreamError) HTTPStatus(networkStatus int) int {
	switch e.ErrorClass {
	case ErrorClassClient, ErrorClassServer:
		if e.StatusCode > 0 {
			return e.StatusCode
		}
		return http.StatusInternalServerError
	case ErrorClassMalformed:
		return http.StatusBadGateway
	case ErrorClassNetwork:
		return networkStatus
	default:
		return http.StatusInternalServerError
	}
}

// classifyStatus categorizes a non-2xx upstream status.
func classifyStatus(status int) ErrorClass {
	if status >= 400 && status < 500 {
		return ErrorClassClient
	}
	return ErrorClassServer
}

func newStatusError(status int) *UpstreamError {
	return &UpstreamError{
		StatusCode: status,
		ErrorClass: classifyStatus(status),
		Message:    fmt.Sprintf("HTTP error! status: %d", status),
	}
}

func newNetworkError(err error) *UpstreamError {
	return &UpstreamError{
		ErrorClass: ErrorClassNetwork,
		Message:    "upstream unreachable",
		Err:        err,
	}
}

func newMalformedError(err error) *UpstreamError {
	return &UpstreamError{
		ErrorClass: ErrorClassMalformed,
		Message:    "bad upstream response",
		Err:        err,
	}
}

func newRejectedError(message, fallback string) *UpstreamError {
	if message == "" {
		message = fallback
	}
	return &UpstreamError{
		ErrorClass: ErrorClassRejected,
		Message:    message,
	}
}
