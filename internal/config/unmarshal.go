package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseString resolves an optional string-or-reference field into dst.
func parseString(raw json.RawMessage, name string, dst *string) error {
	if raw == nil {
		return nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = parsed.value
	return nil
}

func parseDuration(raw, name string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}

// UnmarshalJSON implements custom unmarshaling for Config
func (c *Config) UnmarshalJSON(data []byte) error {
	// Use a raw type to parse references
	type rawConfig struct {
		Version               string            `json:"version"`
		Issuer                json.RawMessage   `json:"issuer"`
		AuthorizationEndpoint json.RawMessage   `json:"authorizationEndpoint"`
		TokenEndpoint         json.RawMessage   `json:"tokenEndpoint"`
		RegistrationEndpoint  json.RawMessage   `json:"registrationEndpoint"`
		ActivationEndpoint    json.RawMessage   `json:"activationEndpoint"`
		ClientID              json.RawMessage   `json:"clientId"`
		RedirectURI           json.RawMessage   `json:"redirectUri"`
		Scopes                []json.RawMessage `json:"scopes"`
		DeviceName            json.RawMessage   `json:"deviceName"`
		ProductID             json.RawMessage   `json:"productId"`
		Codec                 CodecConfig       `json:"codec"`
		Storage               StorageConfig     `json:"storage"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Version = raw.Version
	c.Codec = raw.Codec
	c.Storage = raw.Storage

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"issuer", raw.Issuer, &c.Issuer},
		{"authorizationEndpoint", raw.AuthorizationEndpoint, &c.AuthorizationEndpoint},
		{"tokenEndpoint", raw.TokenEndpoint, &c.TokenEndpoint},
		{"registrationEndpoint", raw.RegistrationEndpoint, &c.RegistrationEndpoint},
		{"activationEndpoint", raw.ActivationEndpoint, &c.ActivationEndpoint},
		{"clientId", raw.ClientID, &c.ClientID},
		{"redirectUri", raw.RedirectURI, &c.RedirectURI},
		{"deviceName", raw.DeviceName, &c.DeviceName},
		{"productId", raw.ProductID, &c.ProductID},
	}
	for _, f := range fields {
		if err := parseString(f.raw, f.name, f.dst); err != nil {
			return err
		}
	}

	if len(raw.Scopes) > 0 {
		scopes, err := ParseConfigValueSlice(raw.Scopes)
		if err != nil {
			return fmt.Errorf("parsing scopes: %w", err)
		}
		c.Scopes = scopes
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		Path                json.RawMessage `json:"path"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
		TTL                 string          `json:"ttl"`
		CleanupInterval     string          `json:"cleanupInterval"`
		EncryptionKey       json.RawMessage `json:"encryptionKey,omitempty"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	if err := parseString(raw.Path, "path", &s.Path); err != nil {
		return err
	}
	if err := parseString(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}
	if err := parseDuration(raw.TTL, "ttl", &s.TTL); err != nil {
		return err
	}
	if err := parseDuration(raw.CleanupInterval, "cleanupInterval", &s.CleanupInterval); err != nil {
		return err
	}

	if raw.EncryptionKey != nil {
		var key string
		if err := parseString(raw.EncryptionKey, "encryptionKey", &key); err != nil {
			return err
		}
		s.EncryptionKey = Secret(key)
	}

	return nil
}
