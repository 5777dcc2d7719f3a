// Package registration models the response of a device registration call:
// parsing it from the redirect URI, carrying it through serialized
// envelopes, and chaining it into activation or authorization follow-ups.
package registration

import (
	"fmt"
	"net/url"

	"github.com/dgellow/devreg/internal/activation"
	"github.com/dgellow/devreg/internal/log"
)

// Redirect query parameters and wire keys. The names are shared with
// deployed counterparts and must not change.
const (
	ParamCode           = "code"
	ParamActivationCode = activation.ParamActivationCode
	ParamState          = "state"
)

// Response is the result of a device registration call. A Response is
// never modified after construction.
type Response struct {
	request           Request
	authorizationCode *string
	activationCode    *string
	state             *string
}

// FromRedirect builds a response from the query of the redirect URI the
// server sent back for req. Each parameter is independently optional: a
// missing parameter is absent, a present one (even empty) is kept as is.
// No semantic validation happens here.
func FromRedirect(req Request, uri *url.URL) *Response {
	var query url.Values
	if uri != nil {
		query = uri.Query()
	}

	resp := &Response{
		request:           req,
		authorizationCode: queryParam(query, ParamCode),
		activationCode:    queryParam(query, ParamActivationCode),
		state:             queryParam(query, ParamState),
	}

	log.LogDebugWithFields("registration", "Parsed registration redirect", map[string]any{
		"has_code":            resp.authorizationCode != nil,
		"has_activation_code": resp.activationCode != nil,
		"has_state":           resp.state != nil,
	})
	return resp
}

// ParseRedirect is FromRedirect for a raw URI string. It fails only when
// rawURI is not a URI at all.
func ParseRedirect(req Request, rawURI string) (*Response, error) {
	uri, err := url.Parse(rawURI)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect uri: %v", ErrInvalidArgument, err)
	}
	return FromRedirect(req, uri), nil
}

func queryParam(query url.Values, key string) *string {
	values, ok := query[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// Request returns the registration request this response answers.
func (r *Response) Request() Request {
	return r.request
}

// AuthorizationCode returns the authorization code issued by the server, if any.
func (r *Response) AuthorizationCode() (string, bool) {
	return deref(r.authorizationCode)
}

// ActivationCode returns the device activation code issued by the server, if any.
func (r *Response) ActivationCode() (string, bool) {
	return deref(r.activationCode)
}

// State returns the state echoed by the server, if any.
func (r *Response) State() (string, bool) {
	return deref(r.state)
}

// Equal reports whether both responses carry the same request and fields.
func (r *Response) Equal(other *Response) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.request.Equal(other.request) &&
		equalOptional(r.authorizationCode, other.authorizationCode) &&
		equalOptional(r.activationCode, other.activationCode) &&
		equalOptional(r.state, other.state)
}
