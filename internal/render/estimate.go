package render

import (
	"fmt"
	"strings"

	"github.com/yildizm/go-termfmt"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/emoji"
)

// Estimation renders the token breakdown. maxTokens is the configured value
// the recommendation is compared against.
func (r *Renderer) Estimation(est *api.Estimation, maxTokens int) string {
	if est == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(emoji.GetEmoji("estimate") + " Token Estimate\n")

	items := []termfmt.TreeItem{
		{Label: "Characters", Value: formatNumber(est.CharacterCount)},
		{Label: "Document tokens", Value: formatNumber(est.EstimatedTokens)},
		{Label: "Chunks", Value: formatNumber(est.Chunks)},
		{Label: "Total tokens", Value: formatNumber(est.TotalTokens)},
		{
			Label: "Breakdown",
			Children: []termfmt.TreeItem{
				{Label: "System prompt", Value: formatNumber(est.SystemPromptTokens) + " tokens"},
				{Label: "Phase 1 (chunk analysis)", Value: formatNumber(est.Phase1Tokens) + " tokens"},
				{Label: "Phase 2 input", Value: formatNumber(est.Phase2InputTokens) + " tokens"},
				{Label: "Phase 2 output", Value: formatNumber(est.Phase2OutputTokens) + " tokens"},
				{Label: "Total", Value: formatNumber(est.TotalTokens) + " tokens", Last: true},
			},
		},
	}
	b.WriteString(r.tree(items) + "\n\n")

	fmt.Fprintf(&b, "%s Recommended max tokens: %s", emoji.GetEmoji("tokens"), formatNumber(est.RecommendedMaxTokens))
	if maxTokens > 0 {
		fmt.Fprintf(&b, " (configured: %s)", formatNumber(maxTokens))
	}
	b.WriteString("\n")

	if est.Warning != "" {
		fmt.Fprintf(&b, "%s %s\n", emoji.GetEmoji("warning"), est.Warning)
	}
	return b.String()
}
