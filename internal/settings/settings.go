// Package settings holds the LLM configuration sent along with every analysis.
package settings

import (
	"fmt"
	"strings"
)

// StorageKey is the fixed key the configuration is persisted under
const StorageKey = "llmConfig"

// Type selects which branch of the configuration is active
type Type string

const (
	TypeLocal  Type = "local"
	TypeOnline Type = "online"
)

// DefaultLocalURL is the LM Studio style chat completions endpoint
const DefaultLocalURL = "http://localhost:1234/v1/chat/completions"

// DefaultMaxTokens is the token budget of a fresh configuration
const DefaultMaxTokens = 800

// LLMConfig is the persisted LLM configuration
type LLMConfig struct {
	Type      Type   `json:"type"`
	LocalURL  string `json:"localUrl"`
	APIURL    string `json:"apiUrl"`
	APIKey    string `json:"apiKey"`
	ModelName string `json:"modelName"`
	MaxTokens int    `json:"maxTokens"`
}

// Default returns the configuration used when nothing valid is stored
func Default() LLMConfig {
	return LLMConfig{
		Type:      TypeLocal,
		LocalURL:  DefaultLocalURL,
		MaxTokens: DefaultMaxTokens,
	}
}

// FieldError identifies the first invalid field of a candidate configuration
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// Normalize trims surrounding whitespace from every string field
func (c LLMConfig) Normalize() LLMConfig {
	c.Type = Type(strings.TrimSpace(string(c.Type)))
	c.LocalURL = strings.TrimSpace(c.LocalURL)
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ModelName = strings.TrimSpace(c.ModelName)
	return c
}

// Validate checks the required fields of the active branch
func (c LLMConfig) Validate() error {
	switch c.Type {
	case TypeLocal:
		if c.LocalURL == "" {
			return &FieldError{Field: "localUrl", Message: "Please enter the local server URL"}
		}
		if c.ModelName == "" {
			return &FieldError{Field: "modelName", Message: "Please enter the model name"}
		}
	case TypeOnline:
		if c.APIURL == "" {
			return &FieldError{Field: "apiUrl", Message: "Please enter the API URL"}
		}
		if c.APIKey == "" {
			return &FieldError{Field: "apiKey", Message: "Please enter the API key"}
		}
		if c.ModelName == "" {
			return &FieldError{Field: "modelName", Message: "Please enter the model name"}
		}
	default:
		return &FieldError{Field: "type", Message: fmt.Sprintf("Unknown LLM type %q (must be local or online)", c.Type)}
	}

	if c.MaxTokens <= 0 {
		return &FieldError{Field: "maxTokens", Message: "Max tokens must be a positive number"}
	}
	return nil
}

// Endpoint returns the URL of the active branch
func (c LLMConfig) Endpoint() string {
	if c.Type == TypeOnline {
		return c.APIURL
	}
	return c.LocalURL
}

// IsOnline reports whether analysis runs against a hosted API
func (c LLMConfig) IsOnline() bool {
	return c.Type == TypeOnline
}

// Label is the short indicator shown next to the model, e.g. "online: gpt-4o"
func (c LLMConfig) Label() string {
	model := c.ModelName
	if model == "" {
		model = "no model"
	}
	return fmt.Sprintf("%s: %s", c.Type, model)
}

// MaskedAPIKey hides all but the last four characters of the key
func (c LLMConfig) MaskedAPIKey() string {
	key := c.APIKey
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
