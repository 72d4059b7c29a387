package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/yildizm/contractis/internal/debounce"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/workflow"
)

var (
	watchAnalyze bool
	watchApply   bool
	watchExport  bool
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Process PDF contracts dropped into a folder",
		Long: `Watch a folder and estimate every PDF contract written into it. With --analyze
the estimate is followed by a full analysis, and with --export the report is
written to the export target. Files are handled one at a time once they have
stopped changing for watch.settle. Press Ctrl+C to stop watching.

Examples:
  contractis watch ./inbox
  contractis watch --analyze --apply-recommended --export ./inbox`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().BoolVar(&watchAnalyze, "analyze", false, "analyze after estimating (default watch.auto_analyze)")
	cmd.Flags().BoolVar(&watchApply, "apply-recommended", false, "save the recommended max tokens (default watch.apply_recommended)")
	cmd.Flags().BoolVar(&watchExport, "export", false, "write every report to the export target")

	return cmd
}

// watchOptions merges the flags over the watch section of the config
type watchOptions struct {
	analyze bool
	apply   bool
	export  bool
}

func resolveWatchOptions(cmd *cobra.Command, a *app) watchOptions {
	opts := watchOptions{
		analyze: a.cfg.Watch.AutoAnalyze,
		apply:   a.cfg.Watch.ApplyRecommended,
		export:  watchExport,
	}
	if cmd.Flags().Changed("analyze") {
		opts.analyze = watchAnalyze
	}
	if cmd.Flags().Changed("apply-recommended") {
		opts.apply = watchApply
	}
	return opts
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	if err := validateWatchPath(dir); err != nil {
		return fmt.Errorf("invalid watch path: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	watcher, cleanup, err := setupWatcher(dir)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := resolveWatchOptions(cmd, a)
	progress(cmd, "watch", "Watching %s for PDF contracts (Ctrl+C to stop)", dir)

	return runWatchLoop(ctx, watcher, a.cfg.Watch.Settle, func(path string) {
		processInboxFile(ctx, cmd, a, opts, path)
	})
}

// cleanupWatcher safely closes watcher with error logging
func cleanupWatcher(watcher *fsnotify.Watcher) {
	if err := watcher.Close(); err != nil {
		newLogger("watch").Warn("failed to close watcher: %v", err)
	}
}

// setupWatcher creates a watcher on dir
func setupWatcher(dir string) (*fsnotify.Watcher, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		cleanupWatcher(watcher)
		return nil, nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return watcher, func() { cleanupWatcher(watcher) }, nil
}

// inbox restarts a settle timer per path and queues the path once it has
// been quiet long enough. pending is only touched by the watch loop.
type inbox struct {
	settle  time.Duration
	queue   chan string
	settled chan string
	pending map[string]*debounce.Debouncer
}

func newInbox(settle time.Duration) *inbox {
	return &inbox{
		settle:  settle,
		queue:   make(chan string, 16),
		settled: make(chan string),
		pending: make(map[string]*debounce.Debouncer),
	}
}

// touch restarts the settle timer of path
func (in *inbox) touch(ctx context.Context, path string) {
	d, found := in.pending[path]
	if !found {
		d = debounce.New(in.settle)
		in.pending[path] = d
	}
	d.Trigger(func() {
		select {
		case in.queue <- path:
		case <-ctx.Done():
			return
		}
		select {
		case in.settled <- path:
		case <-ctx.Done():
		}
	})
}

// forget drops the timer of a queued path unless a newer write re-armed it
func (in *inbox) forget(path string) {
	if d, ok := in.pending[path]; ok && !d.Pending() {
		d.Stop()
		delete(in.pending, path)
	}
}

func (in *inbox) stop() {
	for path, d := range in.pending {
		d.Stop()
		delete(in.pending, path)
	}
}

// runWatchLoop feeds settled PDF paths to handle, one at a time, until ctx
// is done. Every write to a file restarts its settle timer.
func runWatchLoop(ctx context.Context, watcher *fsnotify.Watcher, settle time.Duration, handle func(path string)) error {
	log := newLogger("watch")

	workerCtx, stopWorker := context.WithCancel(ctx)
	in := newInbox(settle)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case path := <-in.queue:
				handle(path)
			}
		}
	}()

	defer func() {
		in.stop()
		stopWorker()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug("watch stopped: %v", ctx.Err())
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !isInboxEvent(event) {
				continue
			}
			in.touch(workerCtx, event.Name)

		case path := <-in.settled:
			in.forget(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Warn("watcher error: %v", err)
		}
	}
}

// isInboxEvent keeps creates and writes of .pdf files
func isInboxEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".pdf")
}

// processInboxFile runs one file through the workflow and leaves the
// controller idle again. Failures are reported and the watch goes on.
func processInboxFile(ctx context.Context, cmd *cobra.Command, a *app, opts watchOptions, path string) {
	ctrl := a.workflow
	defer func() {
		if err := ctrl.Reset(); err != nil {
			a.logger.Warn("failed to reset workflow: %v", err)
		}
	}()

	report := func(err error) {
		if ctx.Err() != nil {
			return
		}
		progress(cmd, "error", "%s: %v", filepath.Base(path), noticeError(ctrl, err))
	}

	file, err := document.Open(path)
	if err != nil && !errors.Is(err, document.ErrNotPDF) {
		report(err)
		return
	}
	if err := ctrl.SelectFile(file); err != nil {
		report(err)
		return
	}

	progress(cmd, "estimate", "Estimating tokens for %s...", file.Name)
	if err := ctrl.Estimate(ctx); err != nil {
		report(err)
		return
	}
	if err := writeEstimation(cmd.OutOrStdout(), a, ctrl.Snapshot()); err != nil {
		report(err)
		return
	}

	if opts.apply && ctrl.Snapshot().ShowApplyRecommended() {
		if err := ctrl.ApplyRecommended(ctx); err != nil {
			report(err)
			return
		}
		if n := ctrl.Snapshot().Notice; n != nil && n.Kind == workflow.NoticeSuccess {
			progress(cmd, "success", "%s", n.Message)
		}
	}

	if !opts.analyze {
		return
	}

	progress(cmd, "analysis", "Analyzing %s with %s...", file.Name, a.store.Active().Label())
	if err := ctrl.Proceed(ctx); err != nil {
		report(err)
		return
	}
	res := ctrl.Snapshot().Result
	if res == nil {
		return
	}
	if err := writeOutput(cmd.OutOrStdout(), getOutputFormat(), resultOutput(a.renderer, res)); err != nil {
		report(err)
		return
	}
	if opts.export {
		if err := exportReport(ctx, cmd, a, res); err != nil {
			report(err)
		}
	}
}

// validateWatchPath validates that a path is a directory that can be watched
func validateWatchPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	return nil
}
