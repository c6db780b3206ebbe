package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "abc...xyz"
}

// CheckAPIKeys returns the status of the optional credentials. Neither is
// required: without an app token Socrata throttles harder, and without a
// backend email the preference, subscription and assistant commands need an
// explicit --email.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("CFTC App Token", cfg.CFTC.AppToken, "COTSCOPE_CFTC_APP_TOKEN"),
		checkKey("Backend User Email", cfg.Backend.Email, "COTSCOPE_BACKEND_EMAIL"),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		// Check if it came from env
		if os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

// Redacted returns a copy of the config that is safe to display: secrets
// are masked.
func (c Config) Redacted() Config {
	if c.CFTC.AppToken != "" {
		c.CFTC.AppToken = maskKey(c.CFTC.AppToken)
	}
	c.API.CORSOrigins = append([]string(nil), c.API.CORSOrigins...)
	return c
}
