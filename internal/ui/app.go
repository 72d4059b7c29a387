// Package ui is the interactive terminal front end.
package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/export"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/render"
	"github.com/yildizm/contractis/internal/settings"
	"github.com/yildizm/contractis/internal/workflow"
)

// SettingsStore is the part of settings.Store the settings screen uses
type SettingsStore interface {
	Active() settings.LLMConfig
	Save(ctx context.Context, candidate settings.LLMConfig) (settings.LLMConfig, error)
}

// Deps are the components the UI drives
type Deps struct {
	Workflow *workflow.Controller
	Settings SettingsStore
	History  *history.Browser
	Renderer *render.Renderer
	Export   export.Sink // nil disables export
	Changes  *Notifier   // the notifier wired into history.Options.OnChange
	Logger   *logger.Logger
}

// Options configures the program
type Options struct {
	Theme          string
	Color          bool
	NoticeDuration time.Duration // lifetime of UI flash messages, default 3s
	TickInterval   time.Duration // notice expiry check, default 250ms
	Version        string
}

type screen int

const (
	screenMain screen = iota
	screenOpenFile
	screenSettings
	screenHistory
	screenConfirmDelete
	screenHelp
)

// flash is a UI-level message, separate from the workflow notice
type flash struct {
	text  string
	isErr bool
	until time.Time
}

// Model is the bubbletea model of the whole application
type Model struct {
	ctx    context.Context
	deps   Deps
	opts   Options
	styles *Styles
	logger *logger.Logger

	width    int
	height   int
	ready    bool
	quitting bool

	screen screen
	busy   bool
	flash  *flash

	spinner  spinner.Model
	pathIn   textinput.Model
	form     *settingsForm
	search   textinput.Model
	searchOn bool
	records  table.Model
	cursor   int
	pending  *api.Contract // awaiting delete confirmation

	result    viewport.Model
	resultKey string
}

// New creates the model. ctx bounds every request the UI starts.
func New(ctx context.Context, deps Deps, opts Options) *Model {
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = workflow.DefaultNoticeDuration
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 250 * time.Millisecond
	}
	theme, _ := ThemeByName(opts.Theme)
	log := deps.Logger
	if log == nil {
		log = logger.Nop("ui")
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	pathIn := textinput.New()
	pathIn.Placeholder = "/path/to/contract.pdf"
	pathIn.Width = 60

	search := textinput.New()
	search.Placeholder = "Search by file name"
	search.Prompt = "/ "
	search.Width = 40

	m := &Model{
		ctx:     ctx,
		deps:    deps,
		opts:    opts,
		styles:  NewStyles(theme, opts.Color && !IsColorDisabled()),
		logger:  log,
		spinner: sp,
		pathIn:  pathIn,
		search:  search,
		records: newRecordTable(),
		result:  viewport.New(80, 20),
	}
	m.spinner.Style = m.styles.Busy
	return m
}

// Init starts the notice ticker and the history change listener
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.opts.TickInterval),
		m.deps.Changes.wait(m.ctx),
	)
}

// Update handles messages and navigation
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowResize(msg)
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tickMsg:
		return m.handleTick(time.Time(msg))
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case opDoneMsg:
		return m.handleOpDone(msg)
	case historyLoadedMsg:
		m.syncRecords()
		return m, nil
	case historyChangedMsg:
		m.syncRecords()
		return m, m.deps.Changes.wait(m.ctx)
	case contractShownMsg:
		return m.handleContractShown(msg)
	case deleteDoneMsg:
		return m.handleDeleteDone(msg)
	case settingsSavedMsg:
		return m.handleSettingsSaved(msg)
	case exportDoneMsg:
		return m.handleExportDone(msg)
	}
	return m, nil
}

func (m *Model) handleWindowResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true

	m.result.Width = max(20, msg.Width-4)
	m.result.Height = max(5, msg.Height-10)
	m.records.SetWidth(max(20, msg.Width-4))
	m.records.SetHeight(max(5, msg.Height-12))
	m.resultKey = "" // re-wrap on the next render

	if m.deps.History != nil {
		m.deps.History.QueueResize(msg.Width)
	}
	return m, nil
}

func (m *Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	if m.flash != nil && !now.Before(m.flash.until) {
		m.flash = nil
	}
	return m, tick(m.opts.TickInterval)
}

// start runs a workflow operation in the background
func (m *Model) start(op operation) tea.Cmd {
	m.busy = true
	m.flash = nil
	return tea.Batch(m.run(op), m.spinner.Tick)
}

func (m *Model) run(op operation) tea.Cmd {
	ctrl := m.deps.Workflow
	ctx := m.ctx
	return func() tea.Msg {
		var err error
		switch op {
		case opEstimate:
			err = ctrl.Estimate(ctx)
		case opAnalyze:
			err = ctrl.Analyze(ctx)
		case opProceed:
			err = ctrl.Proceed(ctx)
		case opApplyRecommended:
			err = ctrl.ApplyRecommended(ctx)
		}
		return opDoneMsg{op: op, err: err}
	}
}

func (m *Model) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		// the controller already turned the failure into its notice
		m.logger.DebugWithFields("operation failed", []logger.Field{
			logger.F("op", msg.op.String()),
			logger.Error(msg.err),
		})
	}
	return m, nil
}

func (m *Model) selectFile(path string) {
	file, err := document.Open(path)
	if err != nil && !errors.Is(err, document.ErrNotPDF) {
		m.setFlash("Could not open file: "+err.Error(), true)
		return
	}
	// non-PDF files go through the controller so it can reject them
	if err := m.deps.Workflow.SelectFile(file); err != nil {
		m.logger.Debug("file selection rejected: %v", err)
	}
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = &flash{text: text, isErr: isErr, until: time.Now().Add(m.opts.NoticeDuration)}
}

func (m *Model) openHistory() tea.Cmd {
	m.screen = screenHistory
	m.searchOn = false
	m.search.Blur()
	m.search.SetValue("")
	m.cursor = 0
	browser := m.deps.History
	ctx := m.ctx
	return func() tea.Msg {
		return historyLoadedMsg{err: browser.Open(ctx)}
	}
}

func (m *Model) closeHistory() {
	m.deps.History.Close()
	m.screen = screenMain
	m.searchOn = false
	m.search.Blur()
}

// syncRecords copies the browser records into the table and clamps the cursor
func (m *Model) syncRecords() {
	if m.deps.History == nil {
		return
	}
	view := m.deps.History.Snapshot()
	rows := make([]table.Row, 0, len(view.Records))
	for _, c := range view.Records {
		rows = append(rows, table.Row(m.deps.Renderer.Row(c)))
	}
	m.records.SetRows(rows)

	if m.cursor >= len(view.Records) {
		m.cursor = len(view.Records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.records.SetCursor(m.cursor)
}

func (m *Model) selected() (api.Contract, bool) {
	records := m.deps.History.Snapshot().Records
	if m.cursor < 0 || m.cursor >= len(records) {
		return api.Contract{}, false
	}
	return records[m.cursor], true
}

func (m *Model) viewContract(id int64) tea.Cmd {
	browser := m.deps.History
	ctrl := m.deps.Workflow
	ctx := m.ctx
	return func() tea.Msg {
		contract, err := browser.View(ctx, id)
		if err != nil {
			return contractShownMsg{err: err}
		}
		return contractShownMsg{err: ctrl.ShowContract(contract)}
	}
}

func (m *Model) handleContractShown(msg contractShownMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, workflow.ErrBusy):
			m.setFlash("Wait for the current request to finish", true)
		case errors.Is(msg.err, workflow.ErrNotViewable):
			m.setFlash("Only completed analyses can be viewed", true)
		}
		// load failures are on the history status line
		return m, nil
	}
	m.screen = screenMain
	m.result.GotoTop()
	return m, nil
}

func (m *Model) deleteContract(id int64) tea.Cmd {
	browser := m.deps.History
	ctx := m.ctx
	return func() tea.Msg {
		// the confirmation screen already asked
		err := browser.Delete(ctx, id, func(api.Contract) bool { return true })
		return deleteDoneMsg{id: id, err: err}
	}
}

func (m *Model) handleDeleteDone(msg deleteDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err == nil {
		m.setFlash("Contract deleted", false)
	}
	m.syncRecords()
	return m, nil
}

func (m *Model) saveSettings() tea.Cmd {
	store := m.deps.Settings
	candidate := m.form.candidate()
	ctx := m.ctx
	return func() tea.Msg {
		cfg, err := store.Save(ctx, candidate)
		return settingsSavedMsg{cfg: cfg, err: err}
	}
}

func (m *Model) handleSettingsSaved(msg settingsSavedMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	if msg.err != nil {
		var fieldErr *settings.FieldError
		if errors.As(msg.err, &fieldErr) {
			return m, m.form.fail(fieldErr.Message, fieldErr.Field)
		}
		return m, m.form.fail("Could not save configuration: "+msg.err.Error(), "")
	}
	m.form = nil
	m.screen = screenMain
	m.setFlash("Configuration saved ("+msg.cfg.Label()+")", false)
	return m, nil
}

func (m *Model) exportResult(res *workflow.Result) tea.Cmd {
	sink := m.deps.Export
	ctx := m.ctx
	report := export.Report{
		Filename: res.Filename,
		Model:    res.Model,
		Date:     res.Date,
		Content:  res.Content,
	}
	return func() tea.Msg {
		location, err := export.Write(ctx, sink, report)
		return exportDoneMsg{location: location, err: err}
	}
}

func (m *Model) handleExportDone(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.logger.Warn("export failed: %v", msg.err)
		m.setFlash("Export failed: "+msg.err.Error(), true)
		return m, nil
	}
	m.setFlash("Report saved to "+msg.location, false)
	return m, nil
}

// Run starts the program on the alternate screen and blocks until the user quits
func Run(ctx context.Context, deps Deps, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(ctx, deps, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
