package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yildizm/contractis/internal/api"
)

// JSON indents v for --output json
func JSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// EstimationMarkdown writes the token breakdown as a Markdown table
func (r *Renderer) EstimationMarkdown(filename string, est *api.Estimation, maxTokens int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Token Estimate: %s\n\n", filename)
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Characters | %s |\n", formatNumber(est.CharacterCount))
	fmt.Fprintf(&b, "| Document tokens | %s |\n", formatNumber(est.EstimatedTokens))
	fmt.Fprintf(&b, "| Chunks | %s |\n", formatNumber(est.Chunks))
	fmt.Fprintf(&b, "| System prompt | %s |\n", formatNumber(est.SystemPromptTokens))
	fmt.Fprintf(&b, "| Phase 1 | %s |\n", formatNumber(est.Phase1Tokens))
	fmt.Fprintf(&b, "| Phase 2 input | %s |\n", formatNumber(est.Phase2InputTokens))
	fmt.Fprintf(&b, "| Phase 2 output | %s |\n", formatNumber(est.Phase2OutputTokens))
	fmt.Fprintf(&b, "| Total tokens | %s |\n", formatNumber(est.TotalTokens))
	fmt.Fprintf(&b, "| Recommended max tokens | %s |\n", formatNumber(est.RecommendedMaxTokens))
	if maxTokens > 0 {
		fmt.Fprintf(&b, "| Configured max tokens | %s |\n", formatNumber(maxTokens))
	}
	if est.Warning != "" {
		fmt.Fprintf(&b, "\n> **Warning**: %s\n", est.Warning)
	}
	return b.String()
}

// HistoryMarkdown writes records and optional stats as Markdown tables
func (r *Renderer) HistoryMarkdown(records []api.Contract, stats *api.Stats) string {
	var b strings.Builder

	b.WriteString("# Contract History\n\n")
	if stats != nil {
		b.WriteString("| Metric | Value |\n")
		b.WriteString("|--------|-------|\n")
		fmt.Fprintf(&b, "| Total | %d |\n", stats.TotalContracts)
		fmt.Fprintf(&b, "| Completed | %d |\n", stats.CompletedContracts)
		fmt.Fprintf(&b, "| Failed | %d |\n", stats.FailedContracts)
		fmt.Fprintf(&b, "| Average time | %s |\n\n", ProcessingTime(stats.AverageProcessingTime))
	}

	if len(records) == 0 {
		b.WriteString("_No contracts in history_\n")
		return b.String()
	}

	b.WriteString("| ID | File | Date | Status | Model | Time |\n")
	b.WriteString("|----|------|------|--------|-------|------|\n")
	for _, c := range records {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			c.ID,
			strings.ReplaceAll(c.Filename, "|", "\\|"),
			r.formatTime(c.UploadedAt),
			c.Status,
			ModelLabel(c.LLMType, c.LLMModel),
			ProcessingTime(c.ProcessingTimeSeconds))
	}
	return b.String()
}
