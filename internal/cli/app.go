package cli

import (
	"context"
	"os"

	"golang.org/x/term"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/config"
	"github.com/yildizm/contractis/internal/export"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/render"
	"github.com/yildizm/contractis/internal/settings"
	"github.com/yildizm/contractis/internal/storage"
	"github.com/yildizm/contractis/internal/workflow"
)

// app wires the components one command needs
type app struct {
	cfg      *config.Config
	client   *api.Client
	kv       storage.KV
	store    *settings.Store
	workflow *workflow.Controller
	renderer *render.Renderer
	logger   *logger.Logger
}

func newLogger(component string) *logger.Logger {
	return logger.NewWithCallback(component, isVerbose)
}

// newApp builds the client, the settings store and the workflow controller.
// With an unusable storage backend the defaults apply and every save fails.
func newApp(ctx context.Context) (*app, error) {
	cfg := GetGlobalConfig()
	log := newLogger("cli")

	client, err := api.New(api.Options{
		BaseURL:        cfg.Server.BaseURL,
		RequestTimeout: cfg.Server.RequestTimeout,
		UserAgent:      cfg.Server.UserAgent,
		Logger:         newLogger("api"),
	})
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(cfg.Storage)
	if err != nil {
		log.Warn("settings storage unavailable, using defaults: %v", err)
		kv = storage.Unavailable(err)
	}

	store := settings.NewStore(kv, newLogger("settings"))
	store.Load(ctx)

	ctrl := workflow.New(client, store, workflow.Options{
		OnlineTimeout:  cfg.Server.OnlineAnalysisTimeout,
		NoticeDuration: cfg.UI.NoticeDuration,
		Logger:         newLogger("workflow"),
	})

	return &app{
		cfg:      cfg,
		client:   client,
		kv:       kv,
		store:    store,
		workflow: ctrl,
		renderer: newRenderer(cfg),
		logger:   log,
	}, nil
}

func (a *app) close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close settings storage: %v", err)
	}
}

func (a *app) historyBrowser(onChange func()) *history.Browser {
	return history.New(a.client, history.Options{
		Limit:          a.cfg.History.Limit,
		CardBreakpoint: a.cfg.History.CardBreakpoint,
		SearchDebounce: a.cfg.History.SearchDebounce,
		ResizeDebounce: a.cfg.History.ResizeDebounce,
		Logger:         newLogger("history"),
		OnChange:       onChange,
	})
}

func (a *app) exportSink() (export.Sink, error) {
	cfg := a.cfg.Export
	cfg.Dir = config.ExpandPath(cfg.Dir)
	return export.New(cfg)
}

func newRenderer(cfg *config.Config) *render.Renderer {
	return render.New(render.Options{
		Color:           colorEnabled(cfg),
		WordWrap:        cfg.UI.WordWrap,
		TimestampFormat: cfg.Output.TimestampFormat,
	})
}

// colorEnabled combines --no-color, NO_COLOR and output.color_mode
func colorEnabled(cfg *config.Config) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch cfg.Output.ColorMode {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) // #nosec G115 - file descriptors fit in int
}

// terminalWidth returns the stdout width in columns, 0 when unknown
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd())) // #nosec G115
	if err != nil {
		return 0
	}
	return width
}
