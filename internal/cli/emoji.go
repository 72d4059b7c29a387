package cli

import (
	"fmt"
	"strings"

	"github.com/yildizm/contractis/internal/emoji"
)

// emojiFor is a wrapper for the shared emoji package
func emojiFor(key string) string {
	return emoji.GetEmoji(key)
}

// budgetBar shows how much of the recommended token budget the configured
// max tokens cover, capped at a full bar
func budgetBar(configured, recommended int) string {
	if recommended <= 0 {
		return ""
	}
	ratio := float64(configured) / float64(recommended)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	barLength := int(ratio * 10) // 10 character bar

	fill, rest := "█", "░"
	if isEmojiDisabled() {
		fill, rest = "#", "-"
	}
	bar := strings.Repeat(fill, barLength) + strings.Repeat(rest, 10-barLength)
	if isEmojiDisabled() {
		bar = "[" + bar + "]"
	}

	return fmt.Sprintf("%s %3.0f%% of recommended", bar, ratio*100)
}
