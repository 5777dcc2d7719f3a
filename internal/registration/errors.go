package registration

import "errors"

var (
	// ErrMalformedResponse is returned when wire text cannot be decoded into
	// a Response: invalid JSON, a missing request, or a request that fails
	// its own decoding.
	ErrMalformedResponse = errors.New("malformed registration response")

	// ErrMalformedRequest is returned when a serialized Request cannot be decoded.
	ErrMalformedRequest = errors.New("malformed registration request")

	// ErrInvalidRequest is returned by RequestBuilder.Build.
	ErrInvalidRequest = errors.New("invalid registration request")

	// ErrInvalidArgument is returned when a required handle is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation's precondition does not
	// hold for an otherwise well-formed response.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidEnvelope wraps decode failures of envelope entries.
	ErrInvalidEnvelope = errors.New("invalid envelope content")
)
