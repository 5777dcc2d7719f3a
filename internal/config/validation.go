package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Check JSON syntax
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, SupportedVersion, SupportedVersion)
	}

	validateEndpointsStructure(rawConfig, result)
	validateClientStructure(rawConfig, result)
	validateCodecStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result, nil
}

// isStringOrEnvRef reports whether value is a plain string or {"$env": ...}.
func isStringOrEnvRef(value any) bool {
	switch v := value.(type) {
	case string:
		return true
	case map[string]any:
		_, hasEnv := v["$env"]
		return hasEnv && len(v) == 1
	default:
		return false
	}
}

// validateEndpointsStructure checks that every endpoint is either set or
// derivable from issuer.
func validateEndpointsStructure(rawConfig map[string]any, result *ValidationResult) {
	for _, key := range []string{"issuer", "authorizationEndpoint", "tokenEndpoint", "registrationEndpoint", "activationEndpoint"} {
		if value, ok := rawConfig[key]; ok && !isStringOrEnvRef(value) {
			result.addError(key, "%s must be a string or {\"$env\": \"VAR_NAME\"}", key)
		}
	}

	if _, hasIssuer := rawConfig["issuer"]; hasIssuer {
		return
	}
	for _, key := range []string{"authorizationEndpoint", "tokenEndpoint", "registrationEndpoint", "activationEndpoint"} {
		if _, ok := rawConfig[key]; !ok {
			result.addError(key, "%s is required when issuer is not set", key)
		}
	}
}

func validateClientStructure(rawConfig map[string]any, result *ValidationResult) {
	for _, key := range []string{"clientId", "redirectUri"} {
		value, ok := rawConfig[key]
		if !ok {
			result.addError(key, "%s is required", key)
			continue
		}
		if !isStringOrEnvRef(value) {
			result.addError(key, "%s must be a string or {\"$env\": \"VAR_NAME\"}", key)
		}
	}

	if redirect, ok := rawConfig["redirectUri"].(string); ok && strings.HasPrefix(redirect, "http://") {
		result.addWarning("redirectUri", "redirect URI uses plain http; registration codes will travel unencrypted")
	}

	for _, key := range []string{"deviceName", "productId"} {
		if value, ok := rawConfig[key]; ok && !isStringOrEnvRef(value) {
			result.addError(key, "%s must be a string or {\"$env\": \"VAR_NAME\"}", key)
		}
	}

	if scopes, ok := rawConfig["scopes"]; ok {
		list, isList := scopes.([]any)
		if !isList {
			result.addError("scopes", "scopes must be an array of strings")
			return
		}
		for i, scope := range list {
			s, isString := scope.(string)
			if !isStringOrEnvRef(scope) {
				result.addError(fmt.Sprintf("scopes[%d]", i), "scope must be a string or {\"$env\": \"VAR_NAME\"}")
			} else if isString && (s == "" || strings.ContainsFunc(s, unicode.IsSpace)) {
				result.addError(fmt.Sprintf("scopes[%d]", i), "scope '%s' must be non-empty and must not contain whitespace", s)
			}
		}
	}
}

func validateCodecStructure(rawConfig map[string]any, result *ValidationResult) {
	value, ok := rawConfig["codec"]
	if !ok {
		return
	}
	codec, ok := value.(map[string]any)
	if !ok {
		result.addError("codec", "codec must be an object")
		return
	}
	if v, ok := codec["requireCodes"]; ok {
		if _, isBool := v.(bool); !isBool {
			result.addError("codec.requireCodes", "requireCodes must be a boolean")
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	value, ok := rawConfig["storage"]
	if !ok {
		return
	}
	storage, ok := value.(map[string]any)
	if !ok {
		result.addError("storage", "storage must be an object")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		if _, hasKey := storage["encryptionKey"]; hasKey {
			result.addWarning("storage.encryptionKey", "encryptionKey is set but memory storage never leaves the process")
		}
	case StorageKindFile:
		if _, ok := storage["path"]; !ok {
			result.addError("storage.path", "path is required when using file storage")
		}
		if _, hasKey := storage["encryptionKey"]; !hasKey {
			result.addWarning("storage.encryptionKey", "file storage without encryptionKey keeps registration codes in clear text")
		}
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
		if _, hasKey := storage["encryptionKey"]; !hasKey {
			result.addError("storage.encryptionKey", "encryptionKey is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "invalid storage kind '%s' - use memory, file or firestore", kind)
	}

	if key, ok := storage["encryptionKey"]; ok {
		if err := validateEnvVarReference(key, "encryptionKey", "storage.encryptionKey"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	ttl := parseDurationField(storage, "ttl", result)
	cleanup := parseDurationField(storage, "cleanupInterval", result)
	if ttl > 0 && cleanup > ttl {
		result.addWarning("storage",
			"cleanupInterval (%s) is longer than ttl (%s). Expired envelopes will remain stored until cleanup runs.",
			cleanup, ttl)
	}
}

func parseDurationField(m map[string]any, key string, result *ValidationResult) time.Duration {
	value, ok := m[key]
	if !ok {
		return 0
	}
	s, ok := value.(string)
	if !ok {
		result.addError("storage."+key, "%s must be a duration string such as \"15m\"", key)
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError("storage."+key, "invalid duration '%s': %v", s, err)
		return 0
	}
	if d < 0 {
		result.addError("storage."+key, "%s cannot be negative", key)
		return 0
	}
	return d
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		// Check if it looks like a bash-style env var
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			varName := matches[1]
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, varName),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format, not %v", fieldName, v),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path,
				"found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing",
				match, varName)
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := path
			if newPath == "" {
				newPath = key
			} else {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
