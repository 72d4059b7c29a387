// Package history browses, searches and deletes analyzed contracts.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/debounce"
	"github.com/yildizm/contractis/internal/logger"
)

// ErrNotConfirmed is returned by Delete when the user declined
var ErrNotConfirmed = errors.New("delete not confirmed")

// PixelsPerColumn converts terminal columns to the pixel breakpoint
const PixelsPerColumn = 8

const (
	MsgEmpty        = "No contracts in history"
	MsgNoResults    = "No results found"
	MsgLoadFailed   = "Error loading history"
	MsgSearchFailed = "Search failed"
)

// Backend is the subset of the API client used by the browser
type Backend interface {
	ListContracts(ctx context.Context, limit int) ([]api.Contract, error)
	SearchContracts(ctx context.Context, q string, limit int) ([]api.Contract, error)
	GetContract(ctx context.Context, id int64) (*api.Contract, error)
	DeleteContract(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*api.Stats, error)
}

// Layout selects how records are rendered
type Layout int

const (
	LayoutTable Layout = iota
	LayoutCards
)

func (l Layout) String() string {
	if l == LayoutCards {
		return "cards"
	}
	return "table"
}

// Options configures a Browser
type Options struct {
	Limit          int           // default 50
	CardBreakpoint int           // pixels, default 768
	SearchDebounce time.Duration // default 500ms
	ResizeDebounce time.Duration // default 250ms
	Logger         *logger.Logger
	// OnChange is called after a debounced search or resize has been applied
	OnChange func()
}

// View is a copy of what the history screen shows
type View struct {
	Open    bool
	Query   string
	Records []api.Contract
	Stats   *api.Stats
	Layout  Layout
	Width   int
	Message string // status line: empty results or a failure
	Failed  bool   // Message describes an error
}

// Browser holds the history view state
type Browser struct {
	backend Backend
	opts    Options
	logger  *logger.Logger

	search *debounce.Debouncer
	resize *debounce.Debouncer

	mu      sync.Mutex
	ctx     context.Context
	open    bool
	query   string
	records []api.Contract
	stats   *api.Stats
	width   int
	message string
	failed  bool
	seq     uint64 // latest record load; older responses are dropped
}

// New creates a closed browser
func New(backend Backend, opts Options) *Browser {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.CardBreakpoint <= 0 {
		opts.CardBreakpoint = 768
	}
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = 500 * time.Millisecond
	}
	if opts.ResizeDebounce <= 0 {
		opts.ResizeDebounce = 250 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop("history")
	}

	return &Browser{
		backend: backend,
		opts:    opts,
		logger:  log,
		search:  debounce.New(opts.SearchDebounce),
		resize:  debounce.New(opts.ResizeDebounce),
		ctx:     context.Background(),
	}
}

// Open shows the history view and loads the list and the stats. ctx is
// also used for later debounced loads.
func (b *Browser) Open(ctx context.Context) error {
	b.mu.Lock()
	b.open = true
	b.ctx = ctx
	b.mu.Unlock()

	err := b.Refresh(ctx)
	b.LoadStats(ctx)
	return err
}

// Close hides the view and drops pending debounced work
func (b *Browser) Close() {
	b.search.Cancel()
	b.resize.Cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
}

// Shutdown stops the debouncers for good
func (b *Browser) Shutdown() {
	b.search.Stop()
	b.resize.Stop()
}

// IsOpen reports whether the view is shown
func (b *Browser) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Refresh loads the unfiltered list of recent contracts
func (b *Browser) Refresh(ctx context.Context) error {
	return b.load(ctx, "")
}

// Search loads contracts matching q. An empty query loads the unfiltered list.
func (b *Browser) Search(ctx context.Context, q string) error {
	return b.load(ctx, strings.TrimSpace(q))
}

// Reload re-fetches the records for the current query
func (b *Browser) Reload(ctx context.Context) error {
	b.mu.Lock()
	q := b.query
	b.mu.Unlock()
	return b.load(ctx, q)
}

func (b *Browser) load(ctx context.Context, q string) error {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()

	var (
		records []api.Contract
		err     error
	)
	if q == "" {
		records, err = b.backend.ListContracts(ctx, b.opts.Limit)
	} else {
		records, err = b.backend.SearchContracts(ctx, q, b.opts.Limit)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if seq != b.seq {
		b.logger.Debug("dropping stale history response for %q", q)
		return err
	}

	b.query = q
	b.failed = err != nil
	switch {
	case err != nil && q == "":
		b.records = nil
		b.message = MsgLoadFailed
		b.logger.WarnWithFields("history load failed", []logger.Field{logger.Error(err)})
	case err != nil:
		b.records = nil
		b.message = MsgSearchFailed
		b.logger.WarnWithFields("history search failed", []logger.Field{logger.F("query", q), logger.Error(err)})
	case len(records) == 0 && q == "":
		b.records = records
		b.message = MsgEmpty
	case len(records) == 0:
		b.records = records
		b.message = MsgNoResults
	default:
		b.records = records
		b.message = ""
	}
	return err
}

// LoadStats refreshes the aggregate counters. Failures are logged only and
// the previous counters stay visible.
func (b *Browser) LoadStats(ctx context.Context) {
	stats, err := b.backend.Stats(ctx)
	if err != nil {
		b.logger.WarnWithFields("loading stats failed", []logger.Field{logger.Error(err)})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = stats
}

// View fetches one contract with its analysis and closes the history view
func (b *Browser) View(ctx context.Context, id int64) (*api.Contract, error) {
	contract, err := b.backend.GetContract(ctx, id)
	if err != nil {
		b.mu.Lock()
		b.message = fmt.Sprintf("Error loading contract: %s", api.Describe(err))
		b.failed = true
		b.mu.Unlock()
		return nil, err
	}

	b.Close()
	return contract, nil
}

// Delete asks confirm and, only when it returns true, deletes the contract
// and then refreshes the list and the stats. On failure the visible list is
// left as it was.
func (b *Browser) Delete(ctx context.Context, id int64, confirm func(api.Contract) bool) error {
	target := b.find(id)
	if confirm == nil || !confirm(target) {
		return ErrNotConfirmed
	}

	if err := b.backend.DeleteContract(ctx, id); err != nil {
		b.mu.Lock()
		b.message = fmt.Sprintf("Error deleting contract: %s", api.Describe(err))
		b.failed = true
		b.mu.Unlock()
		b.logger.WarnWithFields("delete failed", []logger.Field{logger.F("id", id), logger.Error(err)})
		return err
	}

	b.logger.Info("contract %d deleted", id)
	err := b.Refresh(ctx)
	b.LoadStats(ctx)
	return err
}

func (b *Browser) find(id int64) api.Contract {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.records {
		if c.ID == id {
			return c
		}
	}
	return api.Contract{ID: id}
}

// QueueSearch runs Search once q has been stable for the search delay
func (b *Browser) QueueSearch(q string) {
	b.search.Trigger(func() {
		b.mu.Lock()
		ctx, open := b.ctx, b.open
		b.mu.Unlock()
		if !open {
			return
		}
		_ = b.Search(ctx, q)
		b.changed()
	})
}

// SetWidth records the terminal width without reloading
func (b *Browser) SetWidth(columns int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width = columns
}

// QueueResize records the new width and, after the resize delay, re-fetches
// and re-renders the current records if the view is open
func (b *Browser) QueueResize(columns int) {
	b.SetWidth(columns)
	b.resize.Trigger(func() {
		b.mu.Lock()
		ctx, open := b.ctx, b.open
		b.mu.Unlock()
		if !open {
			return
		}
		_ = b.Reload(ctx)
		b.changed()
	})
}

func (b *Browser) changed() {
	if b.opts.OnChange != nil {
		b.opts.OnChange()
	}
}

// LayoutFor returns the layout for a width in terminal columns
func (b *Browser) LayoutFor(columns int) Layout {
	if columns > 0 && columns*PixelsPerColumn <= b.opts.CardBreakpoint {
		return LayoutCards
	}
	return LayoutTable
}

// Snapshot returns a copy of the view state
func (b *Browser) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := make([]api.Contract, len(b.records))
	copy(records, b.records)

	var stats *api.Stats
	if b.stats != nil {
		s := *b.stats
		stats = &s
	}

	return View{
		Open:    b.open,
		Query:   b.query,
		Records: records,
		Stats:   stats,
		Layout:  b.LayoutFor(b.width),
		Width:   b.width,
		Message: b.message,
		Failed:  b.failed,
	}
}
