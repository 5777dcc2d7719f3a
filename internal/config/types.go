package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SupportedVersion is the config version prefix this build understands.
const SupportedVersion = "v0.0.1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where pending registrations are kept
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFile      StorageKind = "file"
	StorageKindFirestore StorageKind = "firestore"
)

// CodecConfig controls how serialized registration responses are decoded
type CodecConfig struct {
	// RequireCodes rejects serialized responses that lack "code" or
	// "activation_code".
	RequireCodes bool `json:"requireCodes"`
}

// StorageConfig configures the envelope store
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	Path                string        `json:"path,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	TTL                 time.Duration `json:"ttl,omitempty"`
	CleanupInterval     time.Duration `json:"cleanupInterval,omitempty"`
	EncryptionKey       Secret        `json:"encryptionKey,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string `json:"version"`

	// Issuer derives any endpoint left empty below.
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `json:"tokenEndpoint,omitempty"`
	RegistrationEndpoint  string `json:"registrationEndpoint,omitempty"`
	ActivationEndpoint    string `json:"activationEndpoint,omitempty"`

	ClientID    string   `json:"clientId"`
	RedirectURI string   `json:"redirectUri"`
	Scopes      []string `json:"scopes,omitempty"`
	DeviceName  string   `json:"deviceName,omitempty"`
	ProductID   string   `json:"productId,omitempty"`

	Codec   CodecConfig   `json:"codec"`
	Storage StorageConfig `json:"storage"`
}

// RawConfigValue represents a value that could be a string or env ref.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	// Try reference object
	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	// Check for $env reference
	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return nil, fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return &RawConfigValue{value: value}, nil
	}

	return nil, fmt.Errorf("unknown reference type in config value")
}

// ParseConfigValueSlice parses a slice that may contain references
func ParseConfigValueSlice(raw []json.RawMessage) ([]string, error) {
	values := make([]string, len(raw))
	for i, item := range raw {
		parsed, err := ParseConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", i, err)
		}
		values[i] = parsed.value
	}
	return values, nil
}
