package registration

import (
	"fmt"

	"github.com/dgellow/devreg/internal/log"
)

const (
	// EnvelopeKey is the entry holding a serialized Response.
	EnvelopeKey = "DeviceRegistrationResponse"

	// RequestEnvelopeKey is the entry holding a pending, serialized Request.
	RequestEnvelopeKey = "DeviceRegistrationRequest"
)

// Envelope is a named-slot carrier used to move serialized values across a
// process or UI boundary.
type Envelope interface {
	Get(name string) (string, bool)
	Put(name, value string)
}

// MapEnvelope is an in-memory Envelope. A nil MapEnvelope counts as a
// missing carrier.
type MapEnvelope map[string]string

func (e MapEnvelope) Get(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

func (e MapEnvelope) Put(name, value string) {
	e[name] = value
}

func isNilEnvelope(env Envelope) bool {
	if env == nil {
		return true
	}
	m, ok := env.(MapEnvelope)
	return ok && m == nil
}

// ToEnvelope returns a new envelope holding the serialized response.
func (r *Response) ToEnvelope() (MapEnvelope, error) {
	env := MapEnvelope{}
	if err := r.AttachTo(env); err != nil {
		return nil, err
	}
	return env, nil
}

// AttachTo stores the serialized response in env under EnvelopeKey.
func (r *Response) AttachTo(env Envelope) error {
	if isNilEnvelope(env) {
		return fmt.Errorf("%w: envelope is nil", ErrInvalidArgument)
	}
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serializing registration response: %w", err)
	}
	env.Put(EnvelopeKey, string(data))
	return nil
}

// FromEnvelope extracts a response attached with AttachTo. It returns
// ok=false and no error when the envelope carries no response. Decode
// failures match both ErrInvalidEnvelope and ErrMalformedResponse.
func FromEnvelope(env Envelope, opts ...DecodeOption) (resp *Response, ok bool, err error) {
	if isNilEnvelope(env) {
		return nil, false, fmt.Errorf("%w: envelope is nil", ErrInvalidArgument)
	}
	data, found := env.Get(EnvelopeKey)
	if !found {
		return nil, false, nil
	}

	resp, err = Decode([]byte(data), opts...)
	if err != nil {
		log.LogWarnWithFields("registration", "Envelope contains malformed registration response", map[string]any{
			"error": err.Error(),
		})
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return resp, true, nil
}

// AttachRequest stores a pending request in env under RequestEnvelopeKey.
func AttachRequest(env Envelope, req Request) error {
	if isNilEnvelope(env) {
		return fmt.Errorf("%w: envelope is nil", ErrInvalidArgument)
	}
	data, err := req.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serializing registration request: %w", err)
	}
	env.Put(RequestEnvelopeKey, string(data))
	return nil
}

// RequestFromEnvelope extracts a request stored with AttachRequest, with
// the same missing-entry semantics as FromEnvelope.
func RequestFromEnvelope(env Envelope) (Request, bool, error) {
	if isNilEnvelope(env) {
		return Request{}, false, fmt.Errorf("%w: envelope is nil", ErrInvalidArgument)
	}
	data, found := env.Get(RequestEnvelopeKey)
	if !found {
		return Request{}, false, nil
	}
	req, err := DecodeRequest([]byte(data))
	if err != nil {
		return Request{}, false, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return req, true, nil
}
