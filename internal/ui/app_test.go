package ui

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/emoji"
	"github.com/yildizm/contractis/internal/export"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/mockserver"
	"github.com/yildizm/contractis/internal/render"
	"github.com/yildizm/contractis/internal/settings"
	"github.com/yildizm/contractis/internal/storage"
	"github.com/yildizm/contractis/internal/workflow"
)

type harness struct {
	m       *Model
	server  *mockserver.Server
	store   *settings.Store
	reports string
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	emoji.SetEmojiDisabled(true)
	t.Cleanup(func() { emoji.SetEmojiDisabled(false) })

	srv := mockserver.New(mockserver.Options{
		Seed: true,
		Extract: func([]byte) (string, error) {
			return strings.Repeat("The tenant shall pay the rent monthly. ", 200), nil
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.New(api.Options{BaseURL: ts.URL, RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}

	ctx := context.Background()
	store := settings.NewStore(storage.NewMemoryKV(), nil)
	store.Load(ctx)
	cfg := settings.Default()
	cfg.ModelName = "qwen3-4b"
	if _, err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	notifier := NewNotifier()
	browser := history.New(client, history.Options{
		SearchDebounce: 10 * time.Millisecond,
		ResizeDebounce: time.Hour, // keep resize reloads out of the search test
		OnChange:       notifier.Notify,
	})
	t.Cleanup(browser.Shutdown)

	reports := t.TempDir()
	m := New(ctx, Deps{
		Workflow: workflow.New(client, store, workflow.Options{}),
		Settings: store,
		History:  browser,
		Renderer: render.New(render.Options{}),
		Export:   export.NewFileSink(reports),
		Changes:  notifier,
	}, Options{TickInterval: time.Millisecond})

	h := &harness{m: m, server: srv, store: store, reports: reports, dir: t.TempDir()}
	h.update(tea.WindowSizeMsg{Width: 200, Height: 50})
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	_, cmd := h.m.Update(msg)
	return cmd
}

func (h *harness) key(s string) tea.Cmd {
	switch s {
	case "enter":
		return h.update(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		return h.update(tea.KeyMsg{Type: tea.KeyEsc})
	case "tab":
		return h.update(tea.KeyMsg{Type: tea.KeyTab})
	case " ":
		return h.update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	}
	return h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// exec runs a plain command and feeds its message back
func (h *harness) exec(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	h.update(msg)
	return msg
}

func (h *harness) writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (h *harness) selectFile(t *testing.T, path string) {
	t.Helper()
	h.key("o")
	if h.m.screen != screenOpenFile {
		t.Fatalf("expected file prompt, got screen %d", h.m.screen)
	}
	h.key(path)
	h.key("enter")
}

func TestEstimateThenProceed(t *testing.T) {
	h := newHarness(t)
	h.selectFile(t, h.writeFile(t, "lease.pdf", document.Sample("Lease")))

	if cmd := h.key("e"); cmd == nil {
		t.Fatal("expected estimate to start")
	}
	if !h.m.busy {
		t.Error("expected model to be busy while estimating")
	}
	h.update(h.m.run(opEstimate)())

	snap := h.m.deps.Workflow.Snapshot()
	if snap.State != workflow.EstimationShown {
		t.Fatalf("expected estimation shown, got %s", snap.State)
	}
	if h.m.busy {
		t.Error("expected busy to clear")
	}
	if view := h.m.View(); !strings.Contains(view, "Recommended max tokens") {
		t.Errorf("expected estimation in view, got:\n%s", view)
	}

	if cmd := h.key("p"); cmd == nil {
		t.Fatal("expected proceed to start")
	}
	h.update(h.m.run(opProceed)())

	snap = h.m.deps.Workflow.Snapshot()
	if snap.State != workflow.ResultShown || snap.Result == nil {
		t.Fatalf("expected result shown, got %s", snap.State)
	}
	if view := h.m.View(); !strings.Contains(view, "lease.pdf") {
		t.Errorf("expected result header in view, got:\n%s", view)
	}
}

func TestApplyRecommendedKey(t *testing.T) {
	h := newHarness(t)
	h.selectFile(t, h.writeFile(t, "lease.pdf", document.Sample("Lease")))
	h.key("e")
	h.update(h.m.run(opEstimate)())

	snap := h.m.deps.Workflow.Snapshot()
	if !snap.ShowApplyRecommended() {
		t.Skipf("recommendation equals the configured %d tokens", snap.Config.MaxTokens)
	}
	want := snap.Estimation.RecommendedMaxTokens

	if cmd := h.key("r"); cmd == nil {
		t.Fatal("expected apply to start")
	}
	h.update(h.m.run(opApplyRecommended)())

	if got := h.store.Active().MaxTokens; got != want {
		t.Errorf("expected max tokens %d, got %d", want, got)
	}
	if view := h.m.View(); !strings.Contains(view, "Max tokens updated") {
		t.Errorf("expected success notice, got:\n%s", view)
	}
}

func TestNonPDFSelectionShowsNotice(t *testing.T) {
	h := newHarness(t)
	h.selectFile(t, h.writeFile(t, "notes.txt", []byte("plain text")))

	snap := h.m.deps.Workflow.Snapshot()
	if snap.File != nil {
		t.Error("expected the file to be rejected")
	}
	if view := h.m.View(); !strings.Contains(view, "Please select a valid PDF file") {
		t.Errorf("expected rejection notice, got:\n%s", view)
	}

	h.key("esc")
	if h.m.deps.Workflow.Snapshot().Notice != nil {
		t.Error("expected esc to dismiss the notice")
	}
}

func TestControlsIgnoredWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.selectFile(t, h.writeFile(t, "lease.pdf", document.Sample("Lease")))
	h.m.busy = true

	for _, k := range []string{"e", "a", "s", "h", "o"} {
		if cmd := h.key(k); cmd != nil {
			t.Errorf("key %q should do nothing while busy", k)
		}
		if h.m.screen != screenMain {
			t.Errorf("key %q changed the screen while busy", k)
		}
	}
}

func TestSettingsFormValidation(t *testing.T) {
	h := newHarness(t)

	h.key("s")
	if h.m.screen != screenSettings || h.m.form == nil {
		t.Fatal("expected the settings screen")
	}
	h.m.form.inputs[fieldModel].SetValue("  ")

	msg := h.exec(t, h.key("enter"))
	if saved, ok := msg.(settingsSavedMsg); !ok || saved.err == nil {
		t.Fatalf("expected a validation error, got %#v", msg)
	}
	if h.m.screen != screenSettings {
		t.Error("expected to stay on the settings screen")
	}
	if h.m.form.err != "Please enter the model name" {
		t.Errorf("unexpected form error %q", h.m.form.err)
	}
	if h.m.form.focus != fieldModel {
		t.Errorf("expected focus on the model field, got %d", h.m.form.focus)
	}
	if got := h.store.Active().ModelName; got != "qwen3-4b" {
		t.Errorf("rejected save changed the configuration: %q", got)
	}

	h.key("llama-3")
	h.exec(t, h.key("enter"))
	if h.m.screen != screenMain {
		t.Fatal("expected to return to the main screen")
	}
	if got := h.store.Active().ModelName; got != "llama-3" {
		t.Errorf("expected saved model llama-3, got %q", got)
	}
	if view := h.m.View(); !strings.Contains(view, "Configuration saved") {
		t.Errorf("expected saved message, got:\n%s", view)
	}
}

func TestSettingsFormMasksAPIKey(t *testing.T) {
	h := newHarness(t)
	h.key("s")
	h.key(" ")

	if h.m.form.llmType != settings.TypeOnline {
		t.Fatalf("expected space to toggle to online, got %s", h.m.form.llmType)
	}
	h.m.form.inputs[fieldAPIKey].SetValue("sk-very-secret")

	view := h.m.View()
	if strings.Contains(view, "sk-very-secret") {
		t.Error("API key rendered in clear text")
	}
	if !strings.Contains(view, "API key") {
		t.Errorf("expected API key field for online type, got:\n%s", view)
	}
	if strings.Contains(view, "Local URL") {
		t.Error("local URL should be hidden for online type")
	}

	h.key("esc")
	if h.store.Active().Type != settings.TypeLocal {
		t.Error("cancelled form changed the configuration")
	}
}

func TestHistoryViewAndDelete(t *testing.T) {
	h := newHarness(t)

	h.exec(t, h.key("h"))
	if h.m.screen != screenHistory {
		t.Fatal("expected the history screen")
	}
	records := h.m.deps.History.Snapshot().Records
	if len(records) != 3 {
		t.Fatalf("expected 3 seeded records, got %d", len(records))
	}
	if got := len(h.m.records.Rows()); got != 3 {
		t.Errorf("expected 3 table rows, got %d", got)
	}

	// declined confirmation deletes nothing
	h.key("d")
	if h.m.screen != screenConfirmDelete {
		t.Fatal("expected the confirmation screen")
	}
	if cmd := h.key("n"); cmd != nil {
		t.Error("declining should not start a request")
	}
	if got := len(h.server.Store().List(50)); got != 3 {
		t.Errorf("expected 3 records after declining, got %d", got)
	}

	h.key("d")
	msg := h.exec(t, h.key("y"))
	if done, ok := msg.(deleteDoneMsg); !ok || done.err != nil || done.id != records[0].ID {
		t.Fatalf("unexpected delete result %#v", msg)
	}
	if got := len(h.m.records.Rows()); got != 2 {
		t.Errorf("expected 2 table rows after delete, got %d", got)
	}

	next := h.m.deps.History.Snapshot().Records[0]
	h.exec(t, h.key("enter"))
	if h.m.screen != screenMain {
		t.Fatal("expected viewing a record to return to the main screen")
	}
	snap := h.m.deps.Workflow.Snapshot()
	if snap.Result == nil || snap.Result.ContractID != next.ID {
		t.Fatalf("expected contract %d on screen, got %+v", next.ID, snap.Result)
	}
	if h.m.deps.History.IsOpen() {
		t.Error("expected the history view to close")
	}
}

func TestHistorySearchIsDebounced(t *testing.T) {
	h := newHarness(t)
	h.exec(t, h.key("h"))

	h.key("/")
	if !h.m.searchOn {
		t.Fatal("expected the search box to take focus")
	}
	h.key("n")
	h.key("d")
	h.key("a")

	// the notifier fires once the debounced search has run
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg := h.m.deps.Changes.wait(ctx)()
	if _, ok := msg.(historyChangedMsg); !ok {
		t.Fatalf("expected a history change, got %#v", msg)
	}
	if next := h.update(msg); next == nil {
		t.Error("expected the listener to re-arm")
	}

	view := h.m.deps.History.Snapshot()
	if view.Query != "nda" {
		t.Errorf("expected query nda, got %q", view.Query)
	}
	for _, c := range view.Records {
		if !strings.Contains(strings.ToLower(c.Filename), "nda") {
			t.Errorf("unexpected search result %s", c.Filename)
		}
	}
}

func TestHistoryLayoutFollowsWidth(t *testing.T) {
	h := newHarness(t)
	h.exec(t, h.key("h"))

	if view := h.m.View(); !strings.Contains(view, render.Columns[1]) {
		t.Errorf("expected table headers at 200 columns, got:\n%s", view)
	}

	h.update(tea.WindowSizeMsg{Width: 80, Height: 50})
	view := h.m.View()
	if !strings.Contains(view, "▶") || !strings.Contains(view, "#") {
		t.Errorf("expected cards at 80 columns, got:\n%s", view)
	}
}

func TestExportResult(t *testing.T) {
	h := newHarness(t)
	h.selectFile(t, h.writeFile(t, "lease.pdf", document.Sample("Lease")))
	h.key("a")
	h.update(h.m.run(opAnalyze)())

	msg := h.exec(t, h.key("x"))
	done, ok := msg.(exportDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("unexpected export result %#v", msg)
	}
	if _, err := os.Stat(done.location); err != nil {
		t.Errorf("expected report at %s: %v", done.location, err)
	}
	if !strings.HasPrefix(done.location, h.reports) {
		t.Errorf("expected report under %s, got %s", h.reports, done.location)
	}
}

func TestFlashExpires(t *testing.T) {
	h := newHarness(t)
	h.m.setFlash("Report saved", false)

	h.update(tickMsg(time.Now()))
	if h.m.flash == nil {
		t.Fatal("flash expired too early")
	}
	h.update(tickMsg(time.Now().Add(time.Hour)))
	if h.m.flash != nil {
		t.Error("expected flash to expire")
	}
}

func TestNotifierCollapsesBursts(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	if _, ok := n.wait(context.Background())().(historyChangedMsg); !ok {
		t.Fatal("expected a change")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := n.wait(ctx)(); msg != nil {
		t.Errorf("expected no second change, got %#v", msg)
	}

	var nilNotifier *Notifier
	if cmd := nilNotifier.wait(context.Background()); cmd != nil {
		t.Error("nil notifier should not listen")
	}
}

func TestThemeByName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		want string
	}{
		{"default", true, "default"},
		{"high-contrast", true, "high-contrast"},
		{"minimal", true, "minimal"},
		{"neon", false, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme, ok := ThemeByName(tt.name)
			if ok != tt.ok || theme.Name != tt.want {
				t.Errorf("ThemeByName(%q) = %s, %v", tt.name, theme.Name, ok)
			}
		})
	}
}
