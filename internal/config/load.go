package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/dgellow/devreg/internal/authserver"
	"github.com/dgellow/devreg/internal/crypto"
	"github.com/dgellow/devreg/internal/log"
	"github.com/dgellow/devreg/internal/urlutil"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return nil
	}
	value, exists := storage["encryptionKey"]
	if !exists {
		return nil
	}
	// Check if it's a string (bad) or a map (good - env ref)
	if _, isString := value.(string); isString {
		return fmt.Errorf("encryptionKey must use environment variable reference for security")
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("encryptionKey must use {\"$env\": \"VAR_NAME\"} format")
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if _, err := config.AuthServer(); err != nil {
		return err
	}
	if _, err := config.ActivationURL(); err != nil {
		return err
	}
	if strings.TrimSpace(config.ClientID) == "" {
		return fmt.Errorf("clientId is required")
	}
	if config.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if _, err := urlutil.ParseRedirect(config.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri: %w", err)
	}
	for i, scope := range config.Scopes {
		if scope == "" || strings.ContainsFunc(scope, unicode.IsSpace) {
			return fmt.Errorf("scopes[%d] %q must be non-empty and must not contain whitespace", i, scope)
		}
	}

	return validateStorageConfig(&config.Storage)
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Kind {
	case "", StorageKindMemory:
	case StorageKindFile:
		if storage.Path == "" {
			return fmt.Errorf("storage.path is required when using file storage")
		}
	case StorageKindFirestore:
		if storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
		if storage.EncryptionKey == "" {
			return fmt.Errorf("encryptionKey is required when using firestore storage")
		}
	default:
		return fmt.Errorf("storage.kind must be one of memory, file, firestore (got %q)", storage.Kind)
	}

	if storage.EncryptionKey != "" && len(storage.EncryptionKey) != crypto.KeySize {
		return fmt.Errorf("encryptionKey must be exactly %d characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", crypto.KeySize, len(storage.EncryptionKey))
	}
	if storage.TTL < 0 {
		return fmt.Errorf("storage.ttl cannot be negative")
	}
	if storage.CleanupInterval < 0 {
		return fmt.Errorf("storage.cleanupInterval cannot be negative")
	}
	if storage.TTL > 0 && storage.CleanupInterval > storage.TTL {
		log.LogWarn("Storage cleanup interval is greater than envelope TTL")
	}
	return nil
}

// AuthServer returns the authorization server endpoints. Explicit endpoints
// take precedence over the ones derived from issuer.
func (c *Config) AuthServer() (authserver.Configuration, error) {
	var cfg authserver.Configuration
	if c.Issuer != "" {
		derived, err := authserver.FromIssuer(c.Issuer)
		if err != nil {
			return authserver.Configuration{}, err
		}
		cfg = derived
	}

	if c.AuthorizationEndpoint != "" {
		cfg.Endpoint.AuthURL = c.AuthorizationEndpoint
	}
	if c.TokenEndpoint != "" {
		cfg.Endpoint.TokenURL = c.TokenEndpoint
	}
	if c.RegistrationEndpoint != "" {
		cfg.RegistrationEndpoint = c.RegistrationEndpoint
	}

	if err := cfg.Validate(); err != nil {
		return authserver.Configuration{}, err
	}
	return cfg, nil
}

// ActivationURL returns the activation endpoint, defaulting to
// <issuer>/activate.
func (c *Config) ActivationURL() (string, error) {
	if c.ActivationEndpoint != "" {
		if _, err := urlutil.ParseAbsolute(c.ActivationEndpoint); err != nil {
			return "", fmt.Errorf("activationEndpoint: %w", err)
		}
		return c.ActivationEndpoint, nil
	}
	if c.Issuer == "" {
		return "", fmt.Errorf("activationEndpoint is required when issuer is not set")
	}
	u, err := urlutil.JoinPath(c.Issuer, "activate")
	if err != nil {
		return "", fmt.Errorf("activationEndpoint: %w", err)
	}
	return u, nil
}
