package emoji

import "testing"

func TestGetEmoji(t *testing.T) {
	t.Cleanup(func() { SetEmojiDisabled(false) })

	tests := []struct {
		name     string
		key      string
		disabled bool
		want     string
	}{
		{"emoji", "document", false, "📄"},
		{"fallback", "document", true, "[PDF]"},
		{"status fallback", "completed", true, "[done]"},
		{"unknown key", "nope", false, "[?]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetEmojiDisabled(tt.disabled)
			if got := GetEmoji(tt.key); got != tt.want {
				t.Errorf("GetEmoji(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if IsEmojiDisabled() != tt.disabled {
				t.Errorf("IsEmojiDisabled() = %v", IsEmojiDisabled())
			}
		})
	}
}
