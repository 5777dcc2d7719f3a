// Package compat translates device registration results into fosite
// authorize request/response values so they can be handed to code that
// only understands the standard authorization code flow.
package compat

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/dgellow/devreg/internal/urlutil"
	"github.com/ory/fosite"
	"golang.org/x/oauth2"
)

const (
	paramCode         = "code"
	paramState        = "state"
	responseTypeCode  = "code"
	grantTypeAuthCode = "authorization_code"
)

var (
	// ErrInvalidAuthorizationRequest is returned when the base authorization
	// request cannot be built.
	ErrInvalidAuthorizationRequest = errors.New("invalid authorization request")

	// ErrMissingRequest is returned when a response is built without a request.
	ErrMissingRequest = errors.New("authorization request is required")
)

// reservedParams are set by the oauth2 config and cannot be overridden.
var reservedParams = []string{"response_type", "client_id", "redirect_uri", "scope", "state"}

// AuthorizationRequestBuilder builds the fosite authorize request an
// authorization code flow would have started with.
type AuthorizationRequestBuilder struct {
	endpoint    oauth2.Endpoint
	clientID    string
	redirectURI string
	scopes      []string
	state       string
	additional  map[string]string
}

// NewAuthorizationRequestBuilder starts a request for clientID against endpoint.
func NewAuthorizationRequestBuilder(endpoint oauth2.Endpoint, clientID string) *AuthorizationRequestBuilder {
	return &AuthorizationRequestBuilder{
		endpoint: endpoint,
		clientID: clientID,
	}
}

func (b *AuthorizationRequestBuilder) SetRedirectURI(redirectURI string) *AuthorizationRequestBuilder {
	b.redirectURI = redirectURI
	return b
}

func (b *AuthorizationRequestBuilder) SetScopes(scopes ...string) *AuthorizationRequestBuilder {
	b.scopes = append([]string(nil), scopes...)
	return b
}

func (b *AuthorizationRequestBuilder) SetState(state string) *AuthorizationRequestBuilder {
	b.state = state
	return b
}

func (b *AuthorizationRequestBuilder) SetAdditionalParameters(params map[string]string) *AuthorizationRequestBuilder {
	b.additional = maps.Clone(params)
	return b
}

// Build validates the inputs and returns a fosite authorize request whose
// Form holds the query of the equivalent authorization URL.
func (b *AuthorizationRequestBuilder) Build() (*fosite.AuthorizeRequest, error) {
	clientID := strings.TrimSpace(b.clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidAuthorizationRequest)
	}
	if _, err := urlutil.ParseAbsolute(b.endpoint.AuthURL); err != nil {
		return nil, fmt.Errorf("%w: authorization endpoint: %v", ErrInvalidAuthorizationRequest, err)
	}
	redirect, err := urlutil.ParseRedirect(b.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorizationRequest, err)
	}
	for _, key := range reservedParams {
		if _, ok := b.additional[key]; ok {
			return nil, fmt.Errorf("%w: additional parameters cannot override %s", ErrInvalidAuthorizationRequest, key)
		}
	}

	cfg := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    b.endpoint,
		RedirectURL: redirect.String(),
		Scopes:      b.scopes,
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(b.additional))
	for k, v := range b.additional {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	authURL, err := url.Parse(cfg.AuthCodeURL(b.state, opts...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorizationRequest, err)
	}

	ar := fosite.NewAuthorizeRequest()
	ar.Client = &fosite.DefaultClient{
		ID:            clientID,
		RedirectURIs:  []string{redirect.String()},
		ResponseTypes: []string{responseTypeCode},
		GrantTypes:    []string{grantTypeAuthCode},
		Scopes:        append([]string(nil), b.scopes...),
		Public:        true,
	}
	ar.RedirectURI = redirect
	ar.State = b.state
	ar.ResponseTypes = fosite.Arguments{responseTypeCode}
	ar.SetRequestedScopes(fosite.Arguments(b.scopes))
	ar.Form = authURL.Query()

	return ar, nil
}

// AuthorizationResponse pairs a fosite authorize request with the response
// the authorization server would have redirected back with.
type AuthorizationResponse struct {
	Request  *fosite.AuthorizeRequest
	Response *fosite.AuthorizeResponse
}

// AuthorizationCode returns the code carried by the response, if any.
func (r *AuthorizationResponse) AuthorizationCode() (string, bool) {
	params := r.Response.GetParameters()
	if _, ok := params[paramCode]; !ok {
		return "", false
	}
	return params.Get(paramCode), true
}

// RedirectURL renders the response as the redirect the client would have received.
func (r *AuthorizationResponse) RedirectURL() string {
	u := *r.Request.GetRedirectURI()
	q := u.Query()
	for k, vs := range r.Response.GetParameters() {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ResponseBuilder builds an AuthorizationResponse for an existing request.
type ResponseBuilder struct {
	request *fosite.AuthorizeRequest
	code    *string
}

// NewResponseBuilder starts a response for request.
func NewResponseBuilder(request *fosite.AuthorizeRequest) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

// SetAuthorizationCode sets the optional authorization code; nil leaves it unset.
func (b *ResponseBuilder) SetAuthorizationCode(code *string) *ResponseBuilder {
	if code == nil {
		b.code = nil
		return b
	}
	c := *code
	b.code = &c
	return b
}

func (b *ResponseBuilder) Build() (*AuthorizationResponse, error) {
	if b.request == nil {
		return nil, ErrMissingRequest
	}

	resp := fosite.NewAuthorizeResponse()
	if b.code != nil {
		resp.AddParameter(paramCode, *b.code)
	}
	if b.request.State != "" {
		resp.AddParameter(paramState, b.request.State)
	}

	return &AuthorizationResponse{
		Request:  b.request,
		Response: resp,
	}, nil
}
