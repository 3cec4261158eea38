package gservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"google.golang.org/api/googleapi"
)

// RemoteAPIError is a non-success HTTP response from the Gmail API.
type RemoteAPIError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s: gmail api error %d: %s", e.Op, e.Status, e.Body)
}

// MalformedResponseError is a response body that did not decode as expected.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NetworkError is a request that never produced a complete HTTP response:
// refused or dropped connections, timeouts, DNS failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classify maps errors coming out of the generated client onto the typed
// failures callers match on. Anything unrecognised is wrapped as is.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Body
		if body == "" {
			body = apiErr.Message
		}
		return &RemoteAPIError{Op: op, Status: apiErr.Code, Body: body}
	}

	if isTransportErr(err) {
		return &NetworkError{Op: op, Err: err}
	}

	if isDecodeErr(err) {
		return &MalformedResponseError{Op: op, Err: err}
	}

	return fmt.Errorf("%s failed: %w", op, err)
}

func isDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// isTransportErr reports errors raised by the HTTP client rather than by the
// response decoder. A dropped connection surfaces as a *url.Error wrapping
// io.EOF, which must not be mistaken for an empty body.
func isTransportErr(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}

// isEmptyBody reports whether decoding failed only because the body was empty.
func isEmptyBody(err error) bool {
	if isTransportErr(err) {
		return false
	}
	if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var syntaxErr *json.SyntaxError
	return errors.As(err, &syntaxErr) && syntaxErr.Offset == 0
}

// IsNotFound reports whether err is a 404 from the Gmail API.
func IsNotFound(err error) bool {
	var remote *RemoteAPIError
	return errors.As(err, &remote) && remote.Status == 404
}
