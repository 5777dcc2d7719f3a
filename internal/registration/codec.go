package registration

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dgellow/devreg/internal/log"
)

const keyRequest = "request"

// responseJSON is the wire form of a Response. Absent fields are omitted.
type responseJSON struct {
	Request        Request `json:"request"`
	Code           *string `json:"code,omitempty"`
	ActivationCode *string `json:"activation_code,omitempty"`
	State          *string `json:"state,omitempty"`
}

type decodeOptions struct {
	requireCodes bool
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeOptions)

// RequireCodes makes Decode fail when "code" or "activation_code" is
// missing. By default both decode to absent, mirroring MarshalJSON which
// omits them when absent.
func RequireCodes() DecodeOption {
	return func(o *decodeOptions) {
		o.requireCodes = true
	}
}

// WithRequiredCodes sets the code policy from a config flag.
func WithRequiredCodes(required bool) DecodeOption {
	return func(o *decodeOptions) {
		o.requireCodes = required
	}
}

// MarshalJSON implements json.Marshaler
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(responseJSON{
		Request:        r.request,
		Code:           r.authorizationCode,
		ActivationCode: r.activationCode,
		State:          r.state,
	})
}

// Decode parses wire text produced by MarshalJSON. All failures match
// ErrMalformedResponse.
func Decode(data []byte, opts ...DecodeOption) (*Response, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	resp, err := decode(data, o)
	if err != nil {
		log.LogDebugWithFields("registration", "Rejected registration response", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}
	return resp, nil
}

func decode(data []byte, o decodeOptions) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rawRequest, ok := fields[keyRequest]
	if !ok || isNull(rawRequest) {
		return nil, fmt.Errorf("%w: registration request not provided", ErrMalformedResponse)
	}
	req, err := DecodeRequest(rawRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	code, err := stringField(fields, ParamCode, o.requireCodes)
	if err != nil {
		return nil, err
	}
	activationCode, err := stringField(fields, ParamActivationCode, o.requireCodes)
	if err != nil {
		return nil, err
	}
	state, err := stringField(fields, ParamState, false)
	if err != nil {
		return nil, err
	}

	return &Response{
		request:           req,
		authorizationCode: code,
		activationCode:    activationCode,
		state:             state,
	}, nil
}

// stringField reads an optional string member. null counts as missing.
func stringField(fields map[string]json.RawMessage, key string, required bool) (*string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		if required {
			return nil, fmt.Errorf("%w: %s not provided", ErrMalformedResponse, key)
		}
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string", ErrMalformedResponse, key)
	}
	return &s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
