package settings

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	local := Default()
	local.ModelName = "llama-3"

	online := LLMConfig{Type: TypeOnline, APIURL: "https://api.example.com/v1/chat/completions", APIKey: "sk-123", ModelName: "gpt-4o", MaxTokens: 800}

	tests := []struct {
		name      string
		mutate    func(c *LLMConfig)
		base      LLMConfig
		wantField string
	}{
		{name: "valid local", base: local},
		{name: "valid online", base: online},
		{name: "local missing url", base: local, mutate: func(c *LLMConfig) { c.LocalURL = "" }, wantField: "localUrl"},
		{name: "local missing model", base: local, mutate: func(c *LLMConfig) { c.ModelName = "" }, wantField: "modelName"},
		{name: "local ignores online fields", base: local, mutate: func(c *LLMConfig) { c.APIKey = "" }},
		{name: "online missing api url", base: online, mutate: func(c *LLMConfig) { c.APIURL = "" }, wantField: "apiUrl"},
		{name: "online missing key", base: online, mutate: func(c *LLMConfig) { c.APIKey = "" }, wantField: "apiKey"},
		{name: "online missing model", base: online, mutate: func(c *LLMConfig) { c.ModelName = "" }, wantField: "modelName"},
		{name: "online checks url before key", base: online, mutate: func(c *LLMConfig) { c.APIURL = ""; c.APIKey = "" }, wantField: "apiUrl"},
		{name: "unknown type", base: local, mutate: func(c *LLMConfig) { c.Type = "remote" }, wantField: "type"},
		{name: "zero max tokens", base: local, mutate: func(c *LLMConfig) { c.MaxTokens = 0 }, wantField: "maxTokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.base
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("Expected *FieldError, got %v", err)
			}
			if fieldErr.Field != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, fieldErr.Field)
			}
		})
	}
}

func TestMaskedAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"sk-abcdef1234", "*********1234"},
	}

	for _, tt := range tests {
		cfg := LLMConfig{APIKey: tt.key}
		if got := cfg.MaskedAPIKey(); got != tt.want {
			t.Errorf("MaskedAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNormalizeAndLabel(t *testing.T) {
	cfg := LLMConfig{Type: " online ", APIURL: " https://x ", APIKey: " k ", ModelName: " gpt-4o "}.Normalize()

	if cfg.Type != TypeOnline || cfg.APIURL != "https://x" || cfg.APIKey != "k" || cfg.ModelName != "gpt-4o" {
		t.Errorf("Normalize did not trim fields: %+v", cfg)
	}
	if cfg.Label() != "online: gpt-4o" {
		t.Errorf("Unexpected label %q", cfg.Label())
	}
	if cfg.Endpoint() != "https://x" {
		t.Errorf("Expected online endpoint, got %q", cfg.Endpoint())
	}
	if Default().Endpoint() != DefaultLocalURL {
		t.Errorf("Expected default local endpoint, got %q", Default().Endpoint())
	}
}
