package rest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedQuery is returned when no valid query exists for the request,
	// e.g. several identifiers against an rpc/ resource.
	ErrUnsupportedQuery = errors.New("unsupported query")

	// ErrMissingContentRange is returned when a list response carries no Content-Range header.
	ErrMissingContentRange = errors.New("the Content-Range header is missing in the HTTP response. " +
		"List responses must contain this header with the total number of results to build the pagination. " +
		"If you are using CORS, did you declare Content-Range in the Access-Control-Expose-Headers header?")

	ErrInvalidContentRange = errors.New("invalid Content-Range header")
	ErrDecode              = errors.New("malformed identifier")
	ErrMalformedFilter     = errors.New("malformed filter")
)

// DecodeError reports an identifier that cannot be split into key components.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode identifier %q: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// MalformedFilterError reports a filter object the translator refuses to flatten.
type MalformedFilterError struct {
	Path   string
	Depth  int
	Reason string
}

func (e *MalformedFilterError) Error() string {
	return fmt.Sprintf("malformed filter at %q (depth %d): %s", e.Path, e.Depth, e.Reason)
}

func (e *MalformedFilterError) Is(target error) bool { return target == ErrMalformedFilter }
