package authserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testConfiguration() Configuration {
	return Configuration{
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://idp.example.com/authorize",
			TokenURL: "https://idp.example.com/token",
		},
		RegistrationEndpoint: "https://idp.example.com/register",
	}
}

func TestFromIssuer(t *testing.T) {
	cfg, err := FromIssuer("https://idp.example.com/tenant/")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/tenant/authorize", cfg.Endpoint.AuthURL)
	assert.Equal(t, "https://idp.example.com/tenant/token", cfg.Endpoint.TokenURL)
	assert.Equal(t, "https://idp.example.com/tenant/register", cfg.RegistrationEndpoint)
	assert.NoError(t, cfg.Validate())

	_, err = FromIssuer("not a url")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Configuration)
		wantErr string
	}{
		{name: "valid", mutate: func(*Configuration) {}},
		{
			name:    "missing token endpoint",
			mutate:  func(c *Configuration) { c.Endpoint.TokenURL = "" },
			wantErr: "token_endpoint",
		},
		{
			name:    "relative registration endpoint",
			mutate:  func(c *Configuration) { c.RegistrationEndpoint = "/register" },
			wantErr: "registration_endpoint",
		},
		{
			name:    "non-http authorization endpoint",
			mutate:  func(c *Configuration) { c.Endpoint.AuthURL = "ftp://idp.example.com/authorize" },
			wantErr: "authorization_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfiguration()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfiguration_JSONRoundTrip(t *testing.T) {
	cfg := testConfiguration()

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"authorization_endpoint": "https://idp.example.com/authorize",
		"token_endpoint": "https://idp.example.com/token",
		"registration_endpoint": "https://idp.example.com/register"
	}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, cfg.Equal(decoded))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`[]`))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Decode([]byte(`{"authorization_endpoint":"https://idp.example.com/authorize"}`))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
