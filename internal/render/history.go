package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/yildizm/go-termfmt"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/emoji"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Columns are the history table headers, in Row order
var Columns = []string{"ID", "FILE", "DATE", "STATUS", "MODEL", "TIME"}

// Row is the table cells of one record
func (r *Renderer) Row(c api.Contract) []string {
	return []string{
		strconv.FormatInt(c.ID, 10),
		truncate(c.Filename, 40),
		r.formatTime(c.UploadedAt),
		StatusBadge(c.Status),
		ModelLabel(c.LLMType, c.LLMModel),
		ProcessingTime(c.ProcessingTimeSeconds),
	}
}

// Table renders records as a bordered table. width 0 lets the table size itself.
func (r *Renderer) Table(records []api.Contract, width int) string {
	rows := make([][]string, 0, len(records))
	for _, c := range records {
		rows = append(rows, r.Row(c))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(Columns...).
		Rows(rows...)

	if r.opts.Color {
		t = t.BorderStyle(borderStyle).StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })
	}
	if width > 0 {
		t = t.Width(width)
	}
	return t.String()
}

// Cards renders each record as a small tree, for narrow terminals
func (r *Renderer) Cards(records []api.Contract) string {
	var b strings.Builder
	for i, c := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Card(c))
	}
	return b.String()
}

// Card renders one record
func (r *Renderer) Card(c api.Contract) string {
	items := []termfmt.TreeItem{
		{Label: "Date", Value: r.formatTime(c.UploadedAt)},
		{Label: "Status", Value: StatusBadge(c.Status)},
		{Label: "Model", Value: ModelLabel(c.LLMType, c.LLMModel)},
		{Label: "Time", Value: ProcessingTime(c.ProcessingTimeSeconds)},
	}
	if c.ErrorMessage != "" {
		items = append(items, termfmt.TreeItem{Label: "Error", Value: c.ErrorMessage})
	}
	return fmt.Sprintf("%s #%d %s\n", emoji.GetEmoji("document"), c.ID, c.Filename) + r.tree(items) + "\n"
}

// Stats renders the aggregate history counters
func (r *Renderer) Stats(stats *api.Stats) string {
	if stats == nil {
		return ""
	}

	last := "-"
	if stats.LastAnalyzedAt != nil {
		last = r.formatTime(*stats.LastAnalyzedAt)
	}

	var b strings.Builder
	b.WriteString(emoji.GetEmoji("stats") + " Statistics\n")
	b.WriteString(r.tree([]termfmt.TreeItem{
		{Label: "Total", Value: formatNumber(stats.TotalContracts)},
		{Label: "Completed", Value: formatNumber(stats.CompletedContracts)},
		{Label: "Failed", Value: formatNumber(stats.FailedContracts)},
		{Label: "Average time", Value: ProcessingTime(stats.AverageProcessingTime)},
		{Label: "Last analyzed", Value: last},
	}))
	b.WriteString("\n")
	return b.String()
}

// Contract renders the metadata of one stored contract
func (r *Renderer) Contract(c *api.Contract) string {
	if c == nil {
		return ""
	}

	items := []termfmt.TreeItem{
		{Label: "ID", Value: strconv.FormatInt(c.ID, 10)},
		{Label: "Uploaded", Value: r.formatTime(c.UploadedAt)},
		{Label: "Status", Value: StatusBadge(c.Status)},
		{Label: "Model", Value: ModelLabel(c.LLMType, c.LLMModel)},
		{Label: "Time", Value: ProcessingTime(c.ProcessingTimeSeconds)},
	}
	if c.MaxTokens > 0 {
		items = append(items, termfmt.TreeItem{Label: "Max tokens", Value: formatNumber(c.MaxTokens)})
	}
	if c.ChunksCount > 0 {
		items = append(items, termfmt.TreeItem{Label: "Chunks", Value: formatNumber(c.ChunksCount)})
	}
	if c.ErrorMessage != "" {
		items = append(items, termfmt.TreeItem{Label: "Error", Value: c.ErrorMessage})
	}

	return fmt.Sprintf("%s %s\n%s\n", emoji.GetEmoji("document"), c.Filename, r.tree(items))
}
