package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DEVREG_CLIENT_ID", "kiosk-client")
	t.Setenv("DEVREG_ENCRYPTION_KEY", "test-encryption-key-32-bytes-ok!")

	path := writeConfig(t, `{
		"version": "v0.0.1",
		"issuer": "https://idp.example.com",
		"tokenEndpoint": "https://tokens.example.com/token",
		"clientId": {"$env": "DEVREG_CLIENT_ID"},
		"redirectUri": "com.example.app:/callback",
		"scopes": ["openid", "device"],
		"deviceName": "kiosk-7",
		"productId": "kiosk",
		"codec": {"requireCodes": true},
		"storage": {
			"kind": "file",
			"path": "envelopes.json",
			"ttl": "10m",
			"cleanupInterval": "1m",
			"encryptionKey": {"$env": "DEVREG_ENCRYPTION_KEY"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kiosk-client", cfg.ClientID)
	assert.Equal(t, []string{"openid", "device"}, cfg.Scopes)
	assert.Equal(t, "kiosk-7", cfg.DeviceName)
	assert.Equal(t, "kiosk", cfg.ProductID)
	assert.True(t, cfg.Codec.RequireCodes)
	assert.Equal(t, StorageKindFile, cfg.Storage.Kind)
	assert.Equal(t, 10*time.Minute, cfg.Storage.TTL)
	assert.Equal(t, time.Minute, cfg.Storage.CleanupInterval)
	assert.Equal(t, Secret("test-encryption-key-32-bytes-ok!"), cfg.Storage.EncryptionKey)

	as, err := cfg.AuthServer()
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/authorize", as.Endpoint.AuthURL)
	assert.Equal(t, "https://tokens.example.com/token", as.Endpoint.TokenURL)
	assert.Equal(t, "https://idp.example.com/register", as.RegistrationEndpoint)

	activation, err := cfg.ActivationURL()
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com/activate", activation)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "invalid json",
			config:  `{`,
			wantErr: "parsing config JSON",
		},
		{
			name:    "missing version",
			config:  `{"issuer": "https://idp.example.com"}`,
			wantErr: "config version is required",
		},
		{
			name:    "unsupported version",
			config:  `{"version": "v9", "issuer": "https://idp.example.com"}`,
			wantErr: "unsupported config version: v9",
		},
		{
			name: "plain text encryption key",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"storage": {"kind": "file", "path": "e.json", "encryptionKey": "test-encryption-key-32-bytes-ok!"}
			}`,
			wantErr: "encryptionKey must use environment variable reference",
		},
		{
			name: "unset env var",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": {"$env": "DEVREG_TEST_UNSET_VAR"},
				"redirectUri": "com.example.app:/callback"
			}`,
			wantErr: "environment variable DEVREG_TEST_UNSET_VAR not set",
		},
		{
			name: "relative redirect",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "/callback"
			}`,
			wantErr: "redirectUri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "reading config file")
}

func validConfig() *Config {
	return &Config{
		Version:     "v0.0.1",
		Issuer:      "https://idp.example.com",
		ClientID:    "kiosk",
		RedirectURI: "com.example.app:/callback",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name: "explicit endpoints without issuer",
			mutate: func(c *Config) {
				c.Issuer = ""
				c.AuthorizationEndpoint = "https://idp.example.com/authorize"
				c.TokenEndpoint = "https://idp.example.com/token"
				c.RegistrationEndpoint = "https://idp.example.com/register"
				c.ActivationEndpoint = "https://idp.example.com/activate"
			},
		},
		{
			name: "missing registration endpoint",
			mutate: func(c *Config) {
				c.Issuer = ""
				c.AuthorizationEndpoint = "https://idp.example.com/authorize"
				c.TokenEndpoint = "https://idp.example.com/token"
				c.ActivationEndpoint = "https://idp.example.com/activate"
			},
			expectError: "registration_endpoint",
		},
		{
			name: "missing activation endpoint",
			mutate: func(c *Config) {
				c.Issuer = ""
				c.AuthorizationEndpoint = "https://idp.example.com/authorize"
				c.TokenEndpoint = "https://idp.example.com/token"
				c.RegistrationEndpoint = "https://idp.example.com/register"
			},
			expectError: "activationEndpoint is required when issuer is not set",
		},
		{
			name:        "missing client id",
			mutate:      func(c *Config) { c.ClientID = "  " },
			expectError: "clientId is required",
		},
		{
			name:        "missing redirect",
			mutate:      func(c *Config) { c.RedirectURI = "" },
			expectError: "redirectUri is required",
		},
		{
			name:        "scope with space",
			mutate:      func(c *Config) { c.Scopes = []string{"openid profile"} },
			expectError: `scopes[0] "openid profile" must be non-empty`,
		},
		{
			name:        "empty scope",
			mutate:      func(c *Config) { c.Scopes = []string{"openid", ""} },
			expectError: `scopes[1] "" must be non-empty`,
		},
		{
			name:        "file storage without path",
			mutate:      func(c *Config) { c.Storage.Kind = StorageKindFile },
			expectError: "storage.path is required",
		},
		{
			name: "firestore without key",
			mutate: func(c *Config) {
				c.Storage.Kind = StorageKindFirestore
				c.Storage.GCPProject = "project"
			},
			expectError: "encryptionKey is required when using firestore storage",
		},
		{
			name: "short encryption key",
			mutate: func(c *Config) {
				c.Storage.EncryptionKey = "short"
			},
			expectError: "encryptionKey must be exactly 32 characters (got 5)",
		},
		{
			name:        "unknown storage kind",
			mutate:      func(c *Config) { c.Storage.Kind = "redis" },
			expectError: `storage.kind must be one of memory, file, firestore (got "redis")`,
		},
		{
			name:        "negative ttl",
			mutate:      func(c *Config) { c.Storage.TTL = -time.Second },
			expectError: "storage.ttl cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.expectError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}
