package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_issuer_config",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": {"$env": "DEVREG_CLIENT_ID"},
				"redirectUri": "com.example.app:/callback",
				"scopes": ["openid", "device"],
				"codec": {"requireCodes": true},
				"storage": {"kind": "memory", "ttl": "15m", "cleanupInterval": "5m"}
			}`,
		},
		{
			name: "valid_explicit_endpoints_with_file_storage",
			config: `{
				"version": "v0.0.1-beta",
				"authorizationEndpoint": "https://idp.example.com/oauth/authorize",
				"tokenEndpoint": "https://idp.example.com/oauth/token",
				"registrationEndpoint": "https://idp.example.com/devices/register",
				"activationEndpoint": "https://idp.example.com/devices/activate",
				"clientId": "kiosk",
				"redirectUri": "https://device.example.com/cb",
				"storage": {
					"kind": "file",
					"path": "/var/lib/devreg/envelopes.json",
					"encryptionKey": {"$env": "DEVREG_ENCRYPTION_KEY"}
				}
			}`,
		},
		{
			name: "missing_endpoints_without_issuer",
			config: `{
				"version": "v0.0.1",
				"authorizationEndpoint": "https://idp.example.com/authorize",
				"tokenEndpoint": "https://idp.example.com/token",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback"
			}`,
			wantErrors: []string{
				"registrationEndpoint is required when issuer is not set",
				"activationEndpoint is required when issuer is not set",
			},
			wantErrCount: 2,
		},
		{
			name: "missing_version_and_client",
			config: `{
				"issuer": "https://idp.example.com",
				"redirectUri": "com.example.app:/callback"
			}`,
			wantErrors: []string{
				"clientId is required",
			},
			wantErrCount: 2,
		},
		{
			name: "unsupported_version",
			config: `{
				"version": "v2",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback"
			}`,
			wantErrCount: 1,
		},
		{
			name: "firestore_missing_project_and_key",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"storage": {"kind": "firestore"}
			}`,
			wantErrors: []string{
				"gcpProject is required when using firestore storage",
				"encryptionKey is required when using firestore storage",
			},
			wantErrCount: 2,
		},
		{
			name: "plain_text_encryption_key",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"storage": {"kind": "file", "path": "envelopes.json", "encryptionKey": "0123456789abcdef0123456789abcdef"}
			}`,
			wantErrCount: 1,
		},
		{
			name: "file_storage_without_key",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"storage": {"kind": "file", "path": "envelopes.json"}
			}`,
			wantWarnings:  []string{"clear text"},
			wantWarnCount: 1,
		},
		{
			name: "bash_style_env_var",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "$DEVREG_CLIENT_ID",
				"redirectUri": "com.example.app:/callback"
			}`,
			wantWarnings:  []string{"found bash-style syntax '$DEVREG_CLIENT_ID'"},
			wantWarnCount: 1,
		},
		{
			name: "cleanup_longer_than_ttl",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"storage": {"ttl": "5m", "cleanupInterval": "1h"}
			}`,
			wantWarnings:  []string{"cleanupInterval (1h0m0s) is longer than ttl (5m0s)"},
			wantWarnCount: 1,
		},
		{
			name: "plain_http_redirect",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "http://192.168.1.20/cb"
			}`,
			wantWarnings:  []string{"plain http"},
			wantWarnCount: 1,
		},
		{
			name: "bad_types",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": 42,
				"redirectUri": "com.example.app:/callback",
				"scopes": "openid",
				"codec": {"requireCodes": "yes"},
				"storage": {"kind": "redis", "ttl": "soon"}
			}`,
			wantErrors: []string{
				"clientId must be a string or {\"$env\": \"VAR_NAME\"}",
				"scopes must be an array of strings",
				"requireCodes must be a boolean",
				"invalid storage kind 'redis' - use memory, file or firestore",
			},
			wantErrCount: 5,
		},
		{
			name: "unrepresentable_scopes",
			config: `{
				"version": "v0.0.1",
				"issuer": "https://idp.example.com",
				"clientId": "kiosk",
				"redirectUri": "com.example.app:/callback",
				"scopes": ["openid profile", ""]
			}`,
			wantErrors: []string{
				"scope 'openid profile' must be non-empty and must not contain whitespace",
				"scope '' must be non-empty and must not contain whitespace",
			},
			wantErrCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.config), 0644))

			result, err := ValidateFile(configPath)
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.Equal(t, tt.wantErrCount, len(result.Errors),
				"expected %d errors but got %d: %v", tt.wantErrCount, len(result.Errors), result.Errors)
			assert.Equal(t, tt.wantWarnCount, len(result.Warnings),
				"expected %d warnings but got %d: %v", tt.wantWarnCount, len(result.Warnings), result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, wantErr := range tt.wantErrors {
				assert.True(t, hasMessage(result.Errors, wantErr),
					"expected error '%s' not found in %v", wantErr, result.Errors)
			}
			for _, wantWarn := range tt.wantWarnings {
				assert.True(t, hasMessage(result.Warnings, wantWarn),
					"expected warning containing '%s' not found in %v", wantWarn, result.Warnings)
			}
		})
	}
}

func TestValidateFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"version": `), 0644))

	result, err := ValidateFile(configPath)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func hasMessage(issues []ValidationError, want string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, want) {
			return true
		}
	}
	return false
}
