package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/yildizm/contractis/internal/emoji"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/render"
	"github.com/yildizm/contractis/internal/workflow"
)

type hint struct {
	key     string
	label   string
	enabled bool
}

func newRecordTable() table.Model {
	columns := []table.Column{
		{Title: render.Columns[0], Width: 5},
		{Title: render.Columns[1], Width: 30},
		{Title: render.Columns[2], Width: 16},
		{Title: render.Columns[3], Width: 14},
		{Title: render.Columns[4], Width: 22},
		{Title: render.Columns[5], Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// View renders the active screen
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.styles.Title.Render("Starting Contractis...")
	}

	switch m.screen {
	case screenOpenFile:
		return m.renderOpenFile()
	case screenSettings:
		return m.renderSettings()
	case screenHistory:
		return m.renderHistory()
	case screenConfirmDelete:
		return m.renderConfirmDelete()
	case screenHelp:
		return m.renderHelp()
	default:
		return m.renderMain()
	}
}

func (m *Model) renderHints(hints []hint) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		if h.enabled {
			parts = append(parts, m.styles.Key.Render(h.key)+" "+m.styles.Muted.Render(h.label))
		} else {
			parts = append(parts, m.styles.Disabled.Render(h.key+" "+h.label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderHeader(title string) string {
	cfg := m.deps.Workflow.Snapshot().Config
	left := m.styles.Title.Render(title)
	right := m.styles.Info.Render(emoji.GetEmoji(llmEmoji(cfg.IsOnline())) + " " + cfg.Label())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left + "\n" + right
	}
	return left + strings.Repeat(" ", gap) + right
}

func llmEmoji(online bool) string {
	if online {
		return "online"
	}
	return "local"
}

func (m *Model) renderMain() string {
	snap := m.deps.Workflow.Snapshot()
	c := snap.Controls
	busy := m.busy || snap.State.Busy()

	title := emoji.GetEmoji("document") + " Contractis"
	if m.opts.Version != "" {
		title += " " + m.opts.Version
	}

	sections := []string{m.renderHeader(title), m.renderFile(snap)}

	switch {
	case busy:
		sections = append(sections, m.renderBusy(snap.State))
	case snap.State == workflow.EstimationShown && snap.Estimation != nil:
		sections = append(sections, m.deps.Renderer.Estimation(snap.Estimation, snap.Config.MaxTokens))
	case snap.State == workflow.ResultShown && snap.Result != nil:
		sections = append(sections, m.renderResult(snap.Result))
	}

	if line := m.renderNotice(snap.Notice); line != "" {
		sections = append(sections, line)
	}

	hints := []hint{
		{"o", "open", !busy && c.SelectFile},
		{"e", "estimate", !busy && c.Estimate},
		{"a", "analyze", !busy && c.Analyze},
	}
	if snap.State == workflow.EstimationShown {
		hints = append(hints,
			hint{"p", "proceed", !busy && c.Proceed},
			hint{"c", "cancel", !busy && c.CancelEstimate},
		)
		if snap.ShowApplyRecommended() {
			hints = append(hints, hint{"r", "apply recommended", !busy})
		}
	}
	if snap.Result != nil {
		hints = append(hints,
			hint{"x", "export", !busy && m.deps.Export != nil},
			hint{"n", "new", !busy},
		)
	}
	hints = append(hints,
		hint{"s", "settings", !busy && c.EditSettings},
		hint{"h", "history", !busy && m.deps.History != nil},
		hint{"?", "help", !busy},
		hint{"q", "quit", true},
	)
	sections = append(sections, m.renderHints(hints))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderFile(snap workflow.Snapshot) string {
	if snap.File == nil {
		return m.styles.Muted.Render("No file selected. Press o to choose a PDF contract.")
	}
	f := snap.File
	details := render.FormatNumber(int(f.Size)) + " bytes"
	if f.Pages > 0 {
		details += fmt.Sprintf(", %d pages", f.Pages)
	}
	return m.styles.Header.Render(emoji.GetEmoji("document")+" "+f.Name) + " " + m.styles.Muted.Render("("+details+")")
}

func (m *Model) renderBusy(state workflow.State) string {
	label := "Working..."
	switch state {
	case workflow.Estimating:
		label = emoji.GetEmoji("estimate") + " Estimating tokens..."
	case workflow.Analyzing:
		label = emoji.GetEmoji("analysis") + " Analyzing contract... "
		if m.deps.Workflow.Snapshot().Config.IsOnline() {
			label += "(online, up to 60s)"
		} else {
			label += "(local models can take several minutes)"
		}
	}
	return m.spinner.View() + " " + m.styles.Busy.Render(label)
}

func (m *Model) renderResult(res *workflow.Result) string {
	key := fmt.Sprintf("%d|%s|%d|%d", res.ContractID, res.Date, len(res.Content), m.result.Width)
	if key != m.resultKey {
		body, err := m.deps.Renderer.WithWordWrap(max(20, m.result.Width-2)).Analysis(res.Content)
		if err != nil {
			m.logger.Warn("markdown rendering failed: %v", err)
			body = render.FormatAnalysis(res.Content)
		}
		m.result.SetContent(body)
		m.resultKey = key
	}

	header := m.deps.Renderer.ResultHeader(res.Filename, res.Model, res.Date)
	scroll := m.styles.Muted.Render(fmt.Sprintf("%3.f%%", m.result.ScrollPercent()*100))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.styles.Panel.Render(m.result.View()), scroll)
}

func (m *Model) renderNotice(n *workflow.Notice) string {
	var lines []string
	if n != nil {
		if n.Kind == workflow.NoticeError {
			lines = append(lines, m.styles.Error.Render(emoji.GetEmoji("error")+" "+n.Message)+m.styles.Muted.Render("  (esc to dismiss)"))
		} else {
			lines = append(lines, m.styles.Success.Render(emoji.GetEmoji("success")+" "+n.Message))
		}
	}
	if m.flash != nil {
		lines = append(lines, m.renderFlash())
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFlash() string {
	if m.flash == nil {
		return ""
	}
	if m.flash.isErr {
		return m.styles.Error.Render(emoji.GetEmoji("error") + " " + m.flash.text)
	}
	return m.styles.Success.Render(emoji.GetEmoji("success") + " " + m.flash.text)
}

func (m *Model) renderOpenFile() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(emoji.GetEmoji("document")+" Select a PDF contract"),
		"",
		m.pathIn.View(),
		"",
		m.renderHints([]hint{{"enter", "select", true}, {"esc", "cancel", true}}),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.styles.Box.Render(content))
}

func (m *Model) renderSettings() string {
	if m.form == nil {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(emoji.GetEmoji("settings")+" LLM settings"),
		"",
		m.form.view(m.styles),
		"",
		m.renderHints([]hint{
			{"tab", "next", true},
			{"space", "toggle type", m.form.focus == fieldType},
			{"enter", "save", true},
			{"esc", "cancel", true},
		}),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.styles.Box.Render(content))
}

func (m *Model) renderHistory() string {
	view := m.deps.History.Snapshot()

	sections := []string{m.renderHeader(emoji.GetEmoji("history") + " History")}
	if view.Stats != nil {
		st := view.Stats
		sections = append(sections, m.styles.Muted.Render(fmt.Sprintf(
			"%s %d contracts · %d completed · %d failed · avg %s",
			emoji.GetEmoji("stats"), st.TotalContracts, st.CompletedContracts, st.FailedContracts,
			render.ProcessingTime(st.AverageProcessingTime))))
	}
	sections = append(sections, m.search.View())

	switch {
	case view.Message != "":
		style := m.styles.Muted
		if view.Failed {
			style = m.styles.Error
		}
		sections = append(sections, style.Render(view.Message))
	case m.deps.History.LayoutFor(m.width) == history.LayoutCards:
		sections = append(sections, m.renderCards(view))
	default:
		sections = append(sections, m.records.View())
	}

	if line := m.renderFlash(); line != "" {
		sections = append(sections, line)
	}

	hasRecords := len(view.Records) > 0
	sections = append(sections, m.renderHints([]hint{
		{"/", "search", true},
		{"↑/↓", "move", hasRecords},
		{"enter", "view", hasRecords},
		{"d", "delete", hasRecords},
		{"r", "refresh", true},
		{"esc", "back", true},
	}))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderCards shows the cards around the cursor that fit the terminal
func (m *Model) renderCards(view history.View) string {
	perPage := max(1, (m.height-8)/6)
	start := max(0, m.cursor-perPage/2)
	end := min(len(view.Records), start+perPage)

	cards := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		card := strings.TrimRight(m.deps.Renderer.Card(view.Records[i]), "\n")
		if i == m.cursor {
			card = m.styles.Selected.Render("▶") + " " + strings.ReplaceAll(card, "\n", "\n  ")
		} else {
			card = "  " + strings.ReplaceAll(card, "\n", "\n  ")
		}
		cards = append(cards, card)
	}
	return strings.Join(cards, "\n\n")
}

func (m *Model) renderConfirmDelete() string {
	if m.pending == nil {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Warning.Render(emoji.GetEmoji("trash")+fmt.Sprintf(" Delete contract #%d?", m.pending.ID)),
		"",
		m.pending.Filename,
		m.styles.Muted.Render("This cannot be undone."),
		"",
		m.renderHints([]hint{{"y", "delete", true}, {"n", "cancel", true}}),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.styles.Box.Render(content))
}

func (m *Model) renderHelp() string {
	rows := []struct{ key, text string }{
		{"o", "choose a PDF contract"},
		{"e", "estimate tokens for the selected file"},
		{"a", "analyze the selected file"},
		{"p / c", "proceed with or cancel a shown estimate"},
		{"r", "apply the recommended max tokens"},
		{"x", "export the shown analysis as Markdown"},
		{"n", "clear the result"},
		{"s", "edit the LLM settings"},
		{"h", "browse, search and delete past analyses"},
		{"↑/↓ pgup/pgdn", "scroll the analysis"},
		{"esc", "dismiss a message or go back"},
		{"q", "quit"},
	}

	lines := []string{m.styles.Header.Render(emoji.GetEmoji("info") + " Keys"), ""}
	for _, r := range rows {
		lines = append(lines, m.styles.Key.Render(lipgloss.NewStyle().Width(16).Render(r.key))+r.text)
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}
