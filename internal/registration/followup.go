package registration

import (
	"fmt"

	"github.com/dgellow/devreg/internal/activation"
	"github.com/dgellow/devreg/internal/compat"
)

// CreateActivationRequest builds the follow-up request exchanging the
// activation code for credentials at activationEndpoint.
func (r *Response) CreateActivationRequest(activationEndpoint string) (*activation.Request, error) {
	if r.activationCode == nil {
		return nil, fmt.Errorf("%w: activation code not available for activation request", ErrInvalidState)
	}
	return activation.NewBuilder(activationEndpoint, r.request.Configuration(), *r.activationCode).Build()
}

// ToCompatibilityResponse converts the response into a fosite authorization
// response for clientID. The authorization code is carried over when present.
func (r *Response) ToCompatibilityResponse(clientID string) (*compat.AuthorizationResponse, error) {
	authRequest, err := r.request.ToAuthorizationRequest(clientID).Build()
	if err != nil {
		return nil, err
	}
	return compat.NewResponseBuilder(authRequest).
		SetAuthorizationCode(r.authorizationCode).
		Build()
}
