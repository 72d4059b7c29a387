package emoji

import "sync/atomic"

// emojiMap holds emoji and fallback mappings
var emojiMap = map[string][2]string{
	// [emoji, fallback]
	"error":     {"❌", "[ERR]"},
	"warning":   {"⚠️", "[WRN]"},
	"info":      {"ℹ️", "[INF]"},
	"success":   {"✅", "[OK]"},
	"document":  {"📄", "[PDF]"},
	"estimate":  {"🧮", "[EST]"},
	"analysis":  {"🧠", "[AI]"},
	"history":   {"📚", "[HIST]"},
	"stats":     {"📊", "[STATS]"},
	"settings":  {"⚙️", "[CFG]"},
	"search":    {"🔍", "[FIND]"},
	"trash":     {"🗑️", "[DEL]"},
	"clock":     {"⏱️", "[TIME]"},
	"tokens":    {"🔢", "[#]"},
	"local":     {"🏠", "[LOCAL]"},
	"online":    {"🌐", "[ONLINE]"},
	"export":    {"💾", "[SAVE]"},
	"watch":     {"👀", "[WATCH]"},
	"health":    {"💓", "[HEALTH]"},
	"rocket":    {"🚀", "[GO]"},
	"door":      {"🚪", "[EXIT]"},
	"completed": {"✓", "[done]"},
	"failed":    {"✗", "[fail]"},
	"analyzing": {"⏳", "[busy]"},
	"pending":   {"⏸️", "[wait]"},
}

var emojiDisabled atomic.Bool

// SetEmojiDisabled sets the global emoji disabled state
func SetEmojiDisabled(disabled bool) {
	emojiDisabled.Store(disabled)
}

// IsEmojiDisabled returns the current emoji disabled state
func IsEmojiDisabled() bool {
	return emojiDisabled.Load()
}

// GetEmoji returns emoji or fallback based on no-emoji setting
func GetEmoji(key string) string {
	if mapping, exists := emojiMap[key]; exists {
		if IsEmojiDisabled() {
			return mapping[1]
		}
		return mapping[0]
	}
	return "[?]"
}
