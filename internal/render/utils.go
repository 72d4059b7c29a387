package render

import (
	"fmt"
	"time"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/emoji"
)

// formatNumber formats numbers with commas for readability
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return addCommas(fmt.Sprintf("%d", n))
}

// addCommas adds commas to number strings
func addCommas(s string) string {
	if len(s) <= 3 {
		return s
	}
	return addCommas(s[:len(s)-3]) + "," + s[len(s)-3:]
}

// FormatNumber is formatNumber for other packages
func FormatNumber(n int) string {
	return formatNumber(n)
}

// ProcessingTime formats seconds with one decimal, or "-" when unknown
func ProcessingTime(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fs", seconds)
}

// StatusBadge labels a contract status
func StatusBadge(status api.Status) string {
	switch status {
	case api.StatusCompleted:
		return emoji.GetEmoji("completed") + " Completed"
	case api.StatusFailed:
		return emoji.GetEmoji("failed") + " Failed"
	case api.StatusAnalyzing:
		return emoji.GetEmoji("analyzing") + " Analyzing"
	case api.StatusPending:
		return emoji.GetEmoji("pending") + " Pending"
	default:
		return string(status)
	}
}

// ModelLabel renders "type: model" the way result headers show it
func ModelLabel(llmType, model string) string {
	switch {
	case llmType == "" && model == "":
		return "-"
	case model == "":
		return llmType
	case llmType == "":
		return model
	}
	return llmType + ": " + model
}

func (r *Renderer) formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format(r.opts.TimestampFormat)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 1 || len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
