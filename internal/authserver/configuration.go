// Package authserver describes the authorization server a device registers
// against: its authorization, token and registration endpoints.
package authserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgellow/devreg/internal/urlutil"
	"golang.org/x/oauth2"
)

// ErrInvalidConfiguration is returned when a configuration is incomplete or
// cannot be decoded.
var ErrInvalidConfiguration = errors.New("invalid authorization service configuration")

// Configuration holds the endpoints of an authorization server. It is a
// plain value and is copied freely.
type Configuration struct {
	Endpoint             oauth2.Endpoint
	RegistrationEndpoint string
}

// configurationJSON uses the OIDC discovery key names.
type configurationJSON struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
}

// FromIssuer derives the endpoints from an issuer base URL:
// <issuer>/authorize, <issuer>/token and <issuer>/register.
func FromIssuer(issuer string) (Configuration, error) {
	if _, err := urlutil.ParseAbsolute(issuer); err != nil {
		return Configuration{}, fmt.Errorf("%w: issuer: %v", ErrInvalidConfiguration, err)
	}

	authURL, err := urlutil.JoinPath(issuer, "authorize")
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	tokenURL, err := urlutil.JoinPath(issuer, "token")
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	registrationURL, err := urlutil.JoinPath(issuer, "register")
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	return Configuration{
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
		RegistrationEndpoint: registrationURL,
	}, nil
}

// Validate checks that every endpoint is an absolute http(s) URL.
func (c Configuration) Validate() error {
	endpoints := []struct {
		name  string
		value string
	}{
		{"authorization_endpoint", c.Endpoint.AuthURL},
		{"token_endpoint", c.Endpoint.TokenURL},
		{"registration_endpoint", c.RegistrationEndpoint},
	}
	for _, e := range endpoints {
		if _, err := urlutil.ParseAbsolute(e.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, e.name, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (c Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(configurationJSON{
		AuthorizationEndpoint: c.Endpoint.AuthURL,
		TokenEndpoint:         c.Endpoint.TokenURL,
		RegistrationEndpoint:  c.RegistrationEndpoint,
	})
}

// Decode parses and validates a configuration object.
func Decode(data []byte) (Configuration, error) {
	var raw configurationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	cfg := Configuration{
		Endpoint: oauth2.Endpoint{
			AuthURL:  raw.AuthorizationEndpoint,
			TokenURL: raw.TokenEndpoint,
		},
		RegistrationEndpoint: raw.RegistrationEndpoint,
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Equal reports whether both configurations point at the same endpoints.
func (c Configuration) Equal(other Configuration) bool {
	return c.Endpoint.AuthURL == other.Endpoint.AuthURL &&
		c.Endpoint.TokenURL == other.Endpoint.TokenURL &&
		c.RegistrationEndpoint == other.RegistrationEndpoint
}
