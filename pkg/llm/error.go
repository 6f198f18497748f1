// Package llm provides the internal representations of chat requests and
// responses exchanged with a model-serving backend, along with the error
// taxonomy every backend call reports through.
package llm

import "errors"

// ErrorResponse represents an error returned over HTTP.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrIncompleteResponse is returned when a backend answers a non-streaming
// request without marking the response as done.
var ErrIncompleteResponse = errors.New("backend returned an incomplete response")

// ConnectionError is returned when the model-serving endpoint cannot be reached.
type ConnectionError struct {
	Host string
	Err  error
}

func (e ConnectionError) Error() string {
	if e.Err == nil {
		return "could not connect to " + e.Host
	}

	return "could not connect to " + e.Host + ": " + e.Err.Error()
}

func (e ConnectionError) Unwrap() error { return e.Err }

// ModelNotFoundError is returned when the named model is not available on the backend.
type ModelNotFoundError struct {
	Model string
	Err   error
}

func (e ModelNotFoundError) Error() string {
	return "model not found: " + e.Model
}

func (e ModelNotFoundError) Unwrap() error { return e.Err }

// InvalidInputError is returned when a request is malformed or one of its
// image references cannot be resolved. It is always raised before any
// network call is attempted.
type InvalidInputError struct {
	Reason string
	Err    error
}

func (e InvalidInputError) Error() string {
	if e.Err == nil {
		return "invalid input: " + e.Reason
	}

	return "invalid input: " + e.Reason + ": " + e.Err.Error()
}

func (e InvalidInputError) Unwrap() error { return e.Err }
