// Package activation builds the follow-up request that exchanges a device
// activation code for OAuth2 client credentials.
package activation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/devreg/internal/authserver"
	"github.com/dgellow/devreg/internal/urlutil"
)

// ParamActivationCode is the form and query parameter carrying the activation code.
const ParamActivationCode = "activation_code"

// ErrInvalidRequest is returned by Build when the request inputs are invalid.
var ErrInvalidRequest = errors.New("invalid activation request")

// Request is an immutable activation request bound to an activation endpoint.
type Request struct {
	endpoint       *url.URL
	configuration  authserver.Configuration
	activationCode string
	additional     map[string]string
}

// Builder assembles and validates a Request.
type Builder struct {
	endpoint       string
	configuration  authserver.Configuration
	activationCode string
	additional     map[string]string
}

// NewBuilder starts an activation request for the given endpoint,
// authorization server configuration and activation code.
func NewBuilder(endpoint string, cfg authserver.Configuration, activationCode string) *Builder {
	return &Builder{
		endpoint:       endpoint,
		configuration:  cfg,
		activationCode: activationCode,
	}
}

// SetAdditionalParameters sets extra form parameters sent with the request.
func (b *Builder) SetAdditionalParameters(params map[string]string) *Builder {
	b.additional = maps.Clone(params)
	return b
}

// Build validates the inputs and returns the request.
func (b *Builder) Build() (*Request, error) {
	endpoint, err := urlutil.ParseAbsolute(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: activation endpoint: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(b.activationCode) == "" {
		return nil, fmt.Errorf("%w: activation code is required", ErrInvalidRequest)
	}
	if err := b.configuration.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, ok := b.additional[ParamActivationCode]; ok {
		return nil, fmt.Errorf("%w: additional parameters cannot override %s", ErrInvalidRequest, ParamActivationCode)
	}

	return &Request{
		endpoint:       endpoint,
		configuration:  b.configuration,
		activationCode: b.activationCode,
		additional:     maps.Clone(b.additional),
	}, nil
}

// Endpoint returns the activation endpoint.
func (r *Request) Endpoint() string {
	return r.endpoint.String()
}

// Configuration returns the authorization server configuration.
func (r *Request) Configuration() authserver.Configuration {
	return r.configuration
}

// ActivationCode returns the code being exchanged.
func (r *Request) ActivationCode() string {
	return r.activationCode
}

// AdditionalParameters returns a copy of the extra parameters.
func (r *Request) AdditionalParameters() map[string]string {
	return maps.Clone(r.additional)
}

// Form returns the form body of the activation request.
func (r *Request) Form() url.Values {
	form := url.Values{}
	for k, v := range r.additional {
		form.Set(k, v)
	}
	form.Set(ParamActivationCode, r.activationCode)
	return form
}

// NewHTTPRequest builds, but does not send, the POST request to the
// activation endpoint.
func (r *Request) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint(), strings.NewReader(r.Form().Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating activation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}
