// Package workflow drives the estimate, confirm and analyze flow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/settings"
)

// Backend is the subset of the API client the controller needs
type Backend interface {
	Estimate(ctx context.Context, file api.FileSource, maxTokens int) (*api.Estimation, error)
	Analyze(ctx context.Context, file api.FileSource, cfg settings.LLMConfig) (string, error)
}

// ConfigStore is the subset of the settings store the controller needs
type ConfigStore interface {
	Active() settings.LLMConfig
	UpdateMaxTokens(ctx context.Context, n int) (settings.LLMConfig, error)
}

// Options tunes timing; zero values use the defaults
type Options struct {
	// OnlineTimeout bounds analysis when the LLM type is online (default 60s)
	OnlineTimeout time.Duration
	// NoticeDuration is the lifetime of success notices (default 3s)
	NoticeDuration time.Duration
	Now            func() time.Time
	Logger         *logger.Logger
}

const (
	DefaultOnlineTimeout  = 60 * time.Second
	DefaultNoticeDuration = 3 * time.Second
)

// Snapshot is a consistent copy of the controller state for renderers
type Snapshot struct {
	State      State
	File       *document.File
	Estimation *api.Estimation
	Result     *Result
	Notice     *Notice
	Config     settings.LLMConfig
	Controls   Controls
}

// ShowApplyRecommended reports whether the recommendation differs from the configuration
func (s Snapshot) ShowApplyRecommended() bool {
	return s.Controls.ApplyRecommended
}

// Controller owns the workflow state. All methods are safe for concurrent
// use; network calls run without holding the lock.
type Controller struct {
	backend Backend
	config  ConfigStore
	opts    Options
	logger  *logger.Logger

	mu         sync.Mutex
	state      State
	prev       State // state to return to when an error is dismissed
	file       *document.File
	estimation *api.Estimation
	result     *Result
	notice     *Notice
}

// New creates a controller in the Idle state
func New(backend Backend, config ConfigStore, opts Options) *Controller {
	if opts.OnlineTimeout <= 0 {
		opts.OnlineTimeout = DefaultOnlineTimeout
	}
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = DefaultNoticeDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop("workflow")
	}

	return &Controller{
		backend: backend,
		config:  config,
		opts:    opts,
		logger:  log,
		state:   Idle,
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of everything a renderer needs
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireNotice()

	snap := Snapshot{
		State:  c.state,
		File:   c.file,
		Config: c.config.Active(),
	}
	if c.estimation != nil && c.state == EstimationShown {
		est := *c.estimation
		snap.Estimation = &est
	}
	if c.result != nil && c.state == ResultShown {
		res := *c.result
		snap.Result = &res
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	snap.Controls = c.controls(snap.Config)
	return snap
}

func (c *Controller) controls(cfg settings.LLMConfig) Controls {
	busy := c.state.Busy()
	hasFile := c.file != nil
	estimating := c.state == EstimationShown && c.estimation != nil

	return Controls{
		SelectFile:       !busy,
		Estimate:         !busy && hasFile,
		Analyze:          !busy && hasFile,
		ApplyRecommended: estimating && c.estimation.RecommendedMaxTokens > 0 && c.estimation.RecommendedMaxTokens != cfg.MaxTokens,
		Proceed:          estimating,
		CancelEstimate:   estimating,
		EditSettings:     !busy,
		DismissNotice:    c.notice != nil,
	}
}

// SelectFile replaces the selected file. Files whose declared type is not
// PDF are rejected with an error notice; nothing else changes.
func (c *Controller) SelectFile(file *document.File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrBusy
	}
	if !file.IsPDF() {
		c.showError("Please select a valid PDF file")
		c.logger.Debug("rejected non-PDF selection")
		return document.ErrNotPDF
	}

	c.file = file
	if c.state == ErrorShown {
		// a new selection hides the error and leaves the error state
		c.notice = nil
		to := c.prev
		if to == EstimationShown {
			to = Idle
		}
		c.estimation = nil
		c.moveTo(to)
	} else {
		c.clearErrorNotice()
	}
	if c.state == EstimationShown {
		// the estimation belonged to the previous file
		c.estimation = nil
		c.moveTo(Idle)
	}
	c.logger.DebugWithFields("file selected", []logger.Field{logger.F("file", file.Name), logger.F("size", file.Size)})
	return nil
}

// Estimate sends the selected file and the configured token budget to the backend
func (c *Controller) Estimate(ctx context.Context) error {
	c.mu.Lock()
	from, err := c.begin(Estimating)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	file := c.file
	maxTokens := c.config.Active().MaxTokens
	c.mu.Unlock()

	start := c.opts.Now()
	est, err := c.backend.Estimate(ctx, file, maxTokens)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fail(from, err)
		return err
	}

	c.estimation = est
	c.moveTo(EstimationShown)
	c.logger.DebugWithFields("estimate finished", []logger.Field{
		logger.F("total_tokens", est.TotalTokens),
		logger.F("recommended", est.RecommendedMaxTokens),
		logger.Duration(c.opts.Now().Sub(start)),
	})
	return nil
}

// ApplyRecommended stores the recommended max tokens in the configuration.
// The store is written without holding the lock.
func (c *Controller) ApplyRecommended(ctx context.Context) error {
	c.mu.Lock()
	if !c.controls(c.config.Active()).ApplyRecommended {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	recommended := c.estimation.RecommendedMaxTokens
	c.mu.Unlock()

	_, err := c.config.UpdateMaxTokens(ctx, recommended)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.showError(fmt.Sprintf("Could not save configuration: %v", err))
		return err
	}

	c.notice = &Notice{
		Kind:      NoticeSuccess,
		Message:   fmt.Sprintf("Max tokens updated to %d", recommended),
		ExpiresAt: c.opts.Now().Add(c.opts.NoticeDuration),
	}
	return nil
}

// CancelEstimate discards the estimation and keeps the selected file
func (c *Controller) CancelEstimate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != EstimationShown {
		return ErrInvalidTransition
	}
	c.estimation = nil
	c.moveTo(Idle)
	return nil
}

// Proceed discards the estimation and starts the analysis
func (c *Controller) Proceed(ctx context.Context) error {
	c.mu.Lock()
	if c.state != EstimationShown {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.estimation = nil
	c.moveTo(Idle)
	c.mu.Unlock()

	return c.Analyze(ctx)
}

// Analyze sends the file and the full configuration to the backend. Online
// configurations get the online deadline; local ones run until the backend
// answers or ctx is cancelled.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	from, err := c.begin(Analyzing)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	file := c.file
	cfg := c.config.Active()
	c.mu.Unlock()

	if cfg.IsOnline() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.OnlineTimeout)
		defer cancel()
	}

	start := c.opts.Now()
	content, err := c.backend.Analyze(ctx, file, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fail(from, err)
		return err
	}

	c.estimation = nil
	c.result = &Result{
		Content:  content,
		Filename: file.Name,
		Model:    cfg.Label(),
		Date:     c.opts.Now(),
	}
	c.moveTo(ResultShown)
	c.logger.DebugWithFields("analysis finished", []logger.Field{
		logger.F("file", file.Name),
		logger.F("chars", len(content)),
		logger.Duration(c.opts.Now().Sub(start)),
	})
	return nil
}

// ShowContract replaces the result view with a stored analysis
func (c *Controller) ShowContract(contract *api.Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrBusy
	}
	if err := Viewable(contract); err != nil {
		return err
	}

	c.estimation = nil
	c.notice = nil
	c.result = &Result{
		Content:    contract.AnalysisResult,
		Filename:   contract.Filename,
		Model:      fmt.Sprintf("%s: %s", contract.LLMType, contract.LLMModel),
		Date:       contract.UploadedAt,
		ContractID: contract.ID,
	}
	c.moveTo(ResultShown)
	return nil
}

// Reset clears the result and returns to Idle, keeping the selected file
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrBusy
	}
	c.estimation = nil
	c.result = nil
	c.notice = nil
	if c.state != Idle {
		c.moveTo(Idle)
	}
	return nil
}

// DismissNotice hides the notice; an error returns to the preceding state
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notice = nil
	if c.state == ErrorShown {
		c.moveTo(c.prev)
	}
}

// begin enters a busy state. Caller holds c.mu.
func (c *Controller) begin(to State) (State, error) {
	if c.state.Busy() {
		return c.state, ErrBusy
	}
	if c.file == nil {
		c.showError("Please select a PDF file first")
		return c.state, ErrNoFile
	}

	from := c.state
	if from == ErrorShown {
		from = c.prev
	}
	if !canTransition(c.state, to) {
		return c.state, ErrInvalidTransition
	}

	c.notice = nil
	c.moveTo(to)
	return from, nil
}

// fail records a request failure. Caller holds c.mu.
func (c *Controller) fail(from State, err error) {
	message := api.Describe(err)
	c.logger.WarnWithFields("request failed", []logger.Field{logger.F("state", c.state.String()), logger.Error(err)})

	c.prev = from
	c.notice = &Notice{Kind: NoticeError, Message: message}
	c.moveTo(ErrorShown)
}

func (c *Controller) moveTo(to State) {
	if !canTransition(c.state, to) {
		// Programming error: keep the state machine consistent anyway
		c.logger.Error("illegal transition %s -> %s", c.state, to)
	}
	c.logger.Debug("transition %s -> %s", c.state, to)
	c.state = to
}

func (c *Controller) showError(message string) {
	c.notice = &Notice{Kind: NoticeError, Message: message}
}

func (c *Controller) clearErrorNotice() {
	if c.notice != nil && c.notice.Kind == NoticeError && c.state != ErrorShown {
		c.notice = nil
	}
}

func (c *Controller) expireNotice() {
	if c.notice != nil && !c.notice.ExpiresAt.IsZero() && !c.opts.Now().Before(c.notice.ExpiresAt) {
		c.notice = nil
	}
}

// Viewable reports whether a stored contract has an analysis to show. Only
// completed records do.
func Viewable(contract *api.Contract) error {
	if contract.Status != api.StatusCompleted {
		return fmt.Errorf("%w (status: %s)", ErrNotViewable, contract.Status)
	}
	return nil
}

// IsBusy reports whether err came from a refused concurrent start
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
