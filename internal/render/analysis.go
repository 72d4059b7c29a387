package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/yildizm/contractis/internal/emoji"
)

var partMarker = regexp.MustCompile(`[ \t]*### Parte (\d+)/(\d+) ###[ \t]*`)

// FormatAnalysis turns the backend's "### Parte N/M ###" section markers
// into Markdown headings on their own lines
func FormatAnalysis(content string) string {
	formatted := partMarker.ReplaceAllString(content, "\n\n### Parte $1/$2\n\n")
	for strings.Contains(formatted, "\n\n\n") {
		formatted = strings.ReplaceAll(formatted, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(formatted)
}

// ResultHeader is the line shown above an analysis
func (r *Renderer) ResultHeader(filename, model string, date time.Time) string {
	var parts []string
	if filename != "" {
		parts = append(parts, emoji.GetEmoji("document")+" "+filename)
	}
	if !date.IsZero() {
		parts = append(parts, emoji.GetEmoji("clock")+" "+r.formatTime(date))
	}
	if model != "" {
		parts = append(parts, emoji.GetEmoji("analysis")+" "+model)
	}
	return strings.Join(parts, "  ")
}

// Analysis renders analysis Markdown with glamour. Without color the
// formatted Markdown is returned as is.
func (r *Renderer) Analysis(content string) (string, error) {
	md := FormatAnalysis(content)
	if !r.opts.Color {
		return md + "\n", nil
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.opts.WordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	out, err := tr.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render analysis: %w", err)
	}
	return out, nil
}
