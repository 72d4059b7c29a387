package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yildizm/contractis/internal/settings"
)

// operation is a workflow action that talks to the backend
type operation int

const (
	opEstimate operation = iota
	opAnalyze
	opProceed
	opApplyRecommended
)

func (o operation) String() string {
	switch o {
	case opEstimate:
		return "estimate"
	case opAnalyze:
		return "analyze"
	case opProceed:
		return "proceed"
	case opApplyRecommended:
		return "apply-recommended"
	default:
		return "unknown"
	}
}

type tickMsg time.Time

type opDoneMsg struct {
	op  operation
	err error
}

type historyLoadedMsg struct {
	err error
}

// historyChangedMsg reports that a debounced search or resize was applied
type historyChangedMsg struct{}

type contractShownMsg struct {
	err error
}

type deleteDoneMsg struct {
	id  int64
	err error
}

type settingsSavedMsg struct {
	cfg settings.LLMConfig
	err error
}

type exportDoneMsg struct {
	location string
	err      error
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Notifier forwards history changes from timer goroutines into the
// program loop. Notify never blocks; bursts collapse into one message.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a notifier; pass Notify as history.Options.OnChange
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify records a change
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// wait blocks until the next change or until ctx is done
func (n *Notifier) wait(ctx context.Context) tea.Cmd {
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-n.ch:
			return historyChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}
