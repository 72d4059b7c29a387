package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yildizm/contractis/internal/workflow"
)

// handleKeyPress routes a key to the active screen. ctrl+c always quits.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.handleQuit()
	}

	switch m.screen {
	case screenOpenFile:
		return m.handleOpenFileKey(msg)
	case screenSettings:
		return m.handleSettingsKey(msg)
	case screenHistory:
		return m.handleHistoryKey(msg)
	case screenConfirmDelete:
		return m.handleConfirmKey(msg)
	case screenHelp:
		switch msg.String() {
		case "q":
			return m.handleQuit()
		case "esc", "?", "enter":
			m.screen = screenMain
		}
		return m, nil
	default:
		return m.handleMainKey(msg)
	}
}

func (m *Model) handleQuit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

func (m *Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.deps.Workflow.Snapshot()
	controls := snap.Controls

	// every control is disabled while a request is in flight
	if m.busy || snap.State.Busy() {
		if msg.String() == "q" {
			return m.handleQuit()
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m.handleQuit()
	case "?":
		m.screen = screenHelp
	case "esc":
		if controls.DismissNotice {
			m.deps.Workflow.DismissNotice()
		}
		m.flash = nil
	case "o":
		if controls.SelectFile {
			m.screen = screenOpenFile
			m.pathIn.SetValue("")
			return m, m.pathIn.Focus()
		}
	case "e":
		if controls.Estimate {
			return m, m.start(opEstimate)
		}
	case "a":
		if controls.Analyze {
			return m, m.start(opAnalyze)
		}
	case "p":
		if controls.Proceed {
			return m, m.start(opProceed)
		}
	case "r":
		if controls.ApplyRecommended {
			return m, m.start(opApplyRecommended)
		}
	case "c":
		if controls.CancelEstimate {
			_ = m.deps.Workflow.CancelEstimate()
		}
	case "n":
		if snap.Result != nil {
			_ = m.deps.Workflow.Reset()
		}
	case "s":
		if controls.EditSettings && m.deps.Settings != nil {
			m.form = newSettingsForm(m.deps.Settings.Active())
			m.screen = screenSettings
			return m, m.form.setFocus(fieldType)
		}
	case "h":
		if m.deps.History != nil {
			return m, m.openHistory()
		}
	case "x":
		if snap.Result != nil && m.deps.Export != nil {
			return m, m.exportResult(snap.Result)
		}
	default:
		if snap.Result != nil {
			var cmd tea.Cmd
			m.result, cmd = m.result.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) handleOpenFileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.pathIn.Blur()
		m.screen = screenMain
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.pathIn.Value())
		m.pathIn.Blur()
		m.screen = screenMain
		if path != "" {
			m.selectFile(path)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.pathIn, cmd = m.pathIn.Update(msg)
	return m, cmd
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.form = nil
		m.screen = screenMain
		return m, nil
	case "enter", "ctrl+s":
		return m, m.saveSettings()
	}
	return m, m.form.update(msg)
}

func (m *Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchOn {
		switch msg.String() {
		case "esc", "enter":
			m.searchOn = false
			m.search.Blur()
			return m, nil
		}
		before := m.search.Value()
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		if m.search.Value() != before {
			m.deps.History.QueueSearch(m.search.Value())
		}
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m.handleQuit()
	case "esc", "h":
		m.closeHistory()
	case "/":
		m.searchOn = true
		return m, m.search.Focus()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.records.SetCursor(m.cursor)
		}
	case "down", "j":
		if m.cursor < len(m.deps.History.Snapshot().Records)-1 {
			m.cursor++
			m.records.SetCursor(m.cursor)
		}
	case "r":
		browser := m.deps.History
		ctx := m.ctx
		return m, func() tea.Msg {
			err := browser.Reload(ctx)
			browser.LoadStats(ctx)
			return historyLoadedMsg{err: err}
		}
	case "enter", "v":
		if c, ok := m.selected(); ok {
			if workflow.Viewable(&c) != nil {
				m.setFlash("Only completed analyses can be viewed", true)
				return m, nil
			}
			return m, m.viewContract(c.ID)
		}
	case "d", "delete":
		if c, ok := m.selected(); ok {
			m.pending = &c
			m.screen = screenConfirmDelete
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pending := m.pending
	switch msg.String() {
	case "y", "Y":
		m.pending = nil
		m.screen = screenHistory
		if pending != nil {
			return m, m.deleteContract(pending.ID)
		}
	case "n", "N", "esc", "q":
		m.pending = nil
		m.screen = screenHistory
	}
	return m, nil
}
