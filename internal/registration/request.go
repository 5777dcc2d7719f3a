package registration

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"unicode"

	"github.com/dgellow/devreg/internal/authserver"
	"github.com/dgellow/devreg/internal/compat"
	"github.com/dgellow/devreg/internal/crypto"
	"github.com/dgellow/devreg/internal/urlutil"
)

// Registration request query parameters.
const (
	ParamResponseType = "response_type"
	ParamRedirectURI  = "redirect_uri"
	ParamScope        = "scope"
	ParamDeviceName   = "device_name"
	ParamProductID    = "app_product_id"
	ParamClientID     = "client_id"

	responseTypeCode = "code"
)

// Request describes a device registration call. It is immutable: accessors
// return copies and the zero value is not valid.
type Request struct {
	configuration authserver.Configuration
	redirectURI   string
	state         *string
	scopes        []string
	deviceName    *string
	productID     *string
	additional    map[string]string
}

// requestJSON is the serialized form of a Request, nested under "request"
// in a serialized Response.
type requestJSON struct {
	Configuration        json.RawMessage   `json:"configuration"`
	RedirectURI          string            `json:"redirect_uri"`
	State                *string           `json:"state,omitempty"`
	Scope                *string           `json:"scope,omitempty"`
	DeviceName           *string           `json:"device_name,omitempty"`
	ProductID            *string           `json:"app_product_id,omitempty"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
}

// builtinParams cannot be supplied as additional parameters.
var builtinParams = []string{
	ParamResponseType, ParamRedirectURI, ParamState, ParamScope,
	ParamDeviceName, ParamProductID, ParamClientID,
}

// RequestBuilder assembles a Request.
type RequestBuilder struct {
	req Request
}

// NewRequestBuilder starts a request against cfg that redirects to redirectURI.
func NewRequestBuilder(cfg authserver.Configuration, redirectURI string) *RequestBuilder {
	return &RequestBuilder{req: Request{
		configuration: cfg,
		redirectURI:   redirectURI,
	}}
}

// SetState sets the correlation state. When unset or empty, Build
// generates a random one.
func (b *RequestBuilder) SetState(state string) *RequestBuilder {
	if state == "" {
		b.req.state = nil
		return b
	}
	b.req.state = &state
	return b
}

func (b *RequestBuilder) SetScopes(scopes ...string) *RequestBuilder {
	b.req.scopes = slices.Clone(scopes)
	return b
}

func (b *RequestBuilder) SetDeviceName(name string) *RequestBuilder {
	b.req.deviceName = optional(name)
	return b
}

func (b *RequestBuilder) SetProductID(id string) *RequestBuilder {
	b.req.productID = optional(id)
	return b
}

func (b *RequestBuilder) SetAdditionalParameters(params map[string]string) *RequestBuilder {
	b.req.additional = maps.Clone(params)
	return b
}

// Build validates the request, generating a state if none was set.
func (b *RequestBuilder) Build() (Request, error) {
	req := b.req
	req.scopes = slices.Clone(req.scopes)
	req.additional = maps.Clone(req.additional)

	if req.state == nil {
		state, err := crypto.GenerateSecureToken()
		if err != nil {
			return Request{}, fmt.Errorf("generating state: %w", err)
		}
		req.state = &state
	}
	if err := req.validate(); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return req, nil
}

func (r Request) validate() error {
	if err := r.configuration.Validate(); err != nil {
		return err
	}
	if _, err := urlutil.ParseRedirect(r.redirectURI); err != nil {
		return err
	}
	for _, scope := range r.scopes {
		if scope == "" || strings.ContainsFunc(scope, unicode.IsSpace) {
			return fmt.Errorf("scope %q must be a non-empty token without whitespace", scope)
		}
	}
	for _, key := range builtinParams {
		if _, ok := r.additional[key]; ok {
			return fmt.Errorf("additional parameters cannot override %s", key)
		}
	}
	return nil
}

// Configuration returns the authorization server configuration.
func (r Request) Configuration() authserver.Configuration {
	return r.configuration
}

func (r Request) RedirectURI() string {
	return r.redirectURI
}

func (r Request) State() (string, bool) {
	return deref(r.state)
}

func (r Request) Scopes() []string {
	return slices.Clone(r.scopes)
}

func (r Request) DeviceName() (string, bool) {
	return deref(r.deviceName)
}

func (r Request) ProductID() (string, bool) {
	return deref(r.productID)
}

func (r Request) AdditionalParameters() map[string]string {
	return maps.Clone(r.additional)
}

// Equal reports whether both requests carry the same values.
func (r Request) Equal(other Request) bool {
	return r.configuration.Equal(other.configuration) &&
		r.redirectURI == other.redirectURI &&
		equalOptional(r.state, other.state) &&
		slices.Equal(r.scopes, other.scopes) &&
		equalOptional(r.deviceName, other.deviceName) &&
		equalOptional(r.productID, other.productID) &&
		maps.Equal(r.additional, other.additional)
}

// RegistrationURL returns the registration endpoint with the request's
// parameters appended.
func (r Request) RegistrationURL() (string, error) {
	params := url.Values{}
	for k, v := range r.additional {
		params.Set(k, v)
	}
	params.Set(ParamResponseType, responseTypeCode)
	params.Set(ParamRedirectURI, r.redirectURI)
	if r.state != nil {
		params.Set(ParamState, *r.state)
	}
	if len(r.scopes) > 0 {
		params.Set(ParamScope, strings.Join(r.scopes, " "))
	}
	if r.deviceName != nil {
		params.Set(ParamDeviceName, *r.deviceName)
	}
	if r.productID != nil {
		params.Set(ParamProductID, *r.productID)
	}

	u, err := urlutil.AppendQuery(r.configuration.RegistrationEndpoint, params)
	if err != nil {
		return "", fmt.Errorf("building registration url: %w", err)
	}
	return u, nil
}

// ToAuthorizationRequest returns a builder for the authorization request
// that clientID would have sent to reach the same redirect.
func (r Request) ToAuthorizationRequest(clientID string) *compat.AuthorizationRequestBuilder {
	b := compat.NewAuthorizationRequestBuilder(r.configuration.Endpoint, clientID).
		SetRedirectURI(r.redirectURI).
		SetScopes(r.scopes...).
		SetAdditionalParameters(r.additional)
	if r.state != nil {
		b.SetState(*r.state)
	}
	return b
}

// MarshalJSON implements json.Marshaler
func (r Request) MarshalJSON() ([]byte, error) {
	cfg, err := json.Marshal(r.configuration)
	if err != nil {
		return nil, err
	}
	raw := requestJSON{
		Configuration:        cfg,
		RedirectURI:          r.redirectURI,
		State:                r.state,
		DeviceName:           r.deviceName,
		ProductID:            r.productID,
		AdditionalParameters: r.additional,
	}
	if len(r.scopes) > 0 {
		scope := strings.Join(r.scopes, " ")
		raw.Scope = &scope
	}
	return json.Marshal(raw)
}

// DecodeRequest parses a serialized Request.
func DecodeRequest(data []byte) (Request, error) {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if len(raw.Configuration) == 0 || string(raw.Configuration) == "null" {
		return Request{}, fmt.Errorf("%w: configuration not provided", ErrMalformedRequest)
	}
	cfg, err := authserver.Decode(raw.Configuration)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	req := Request{
		configuration: cfg,
		redirectURI:   raw.RedirectURI,
		state:         raw.State,
		deviceName:    raw.DeviceName,
		productID:     raw.ProductID,
		additional:    raw.AdditionalParameters,
	}
	if raw.Scope != nil {
		req.scopes = strings.Fields(*raw.Scope)
	}
	if err := req.validate(); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return req, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
