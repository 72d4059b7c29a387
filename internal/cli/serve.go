package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/config"
	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/mockserver"
	"github.com/yildizm/contractis/internal/ui"
)

var uiVersion string

func newUICommand(version string) *cobra.Command {
	uiVersion = version
	return &cobra.Command{
		Use:   "ui",
		Short: "Start the interactive terminal UI",
		Long: `Start the full-screen terminal UI: pick a PDF, estimate, analyze, browse the
history and edit the LLM settings. Logs go to output.log_file while it runs.`,
		Args: cobra.NoArgs,
		RunE: runUI,
	}
}

func runUI(cmd *cobra.Command, args []string) error {
	cfg := GetGlobalConfig()

	// the terminal belongs to the UI, so logs go to a file or nowhere
	logOpts := logger.Options{Writer: io.Discard}
	if cfg.Output.LogFile != "" {
		logOpts.File = config.ExpandPath(cfg.Output.LogFile)
	}
	if err := logger.Init(logOpts); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	notifier := ui.NewNotifier()
	browser := a.historyBrowser(notifier.Notify)
	defer browser.Shutdown()

	sink, err := a.exportSink()
	if err != nil {
		a.logger.Warn("export disabled: %v", err)
		sink = nil
	}

	return ui.Run(ctx, ui.Deps{
		Workflow: a.workflow,
		Settings: a.store,
		History:  browser,
		Renderer: a.renderer,
		Export:   sink,
		Changes:  notifier,
		Logger:   newLogger("ui"),
	}, ui.Options{
		Theme:          cfg.UI.Theme,
		Color:          colorEnabled(cfg),
		NoticeDuration: cfg.UI.NoticeDuration,
		Version:        uiVersion,
	})
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			health, err := a.client.Health(ctx)
			if err != nil {
				return fmt.Errorf("backend %s is not reachable: %s", a.cfg.Server.BaseURL, api.Describe(err))
			}

			return writeOutput(cmd.OutOrStdout(), getOutputFormat(), output{
				text: func() (string, error) {
					return healthText(a.cfg.Server.BaseURL, health), nil
				},
				json: health,
			})
		},
	}
}

func healthText(baseURL string, h *api.Health) string {
	icon := "health"
	if h.Status != "healthy" {
		icon = "warning"
	}
	line := fmt.Sprintf("%s %s: %s", emojiFor(icon), baseURL, h.Status)
	if h.Timestamp != "" {
		line += " (" + h.Timestamp + ")"
	}
	return line + "\n"
}

func newMockServerCommand() *cobra.Command {
	var (
		addr  string
		seed  bool
		llm   bool
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local stand-in for the analysis backend",
		Long: `Serve the backend endpoints with canned analyses so the CLI and the UI can be
used without a model. Records live in memory; Prometheus metrics are on /metrics.

With --llm the analyses come from the model named in each upload's settings,
through its chat completions endpoint.

Examples:
  contractis mock-server --seed
  contractis mock-server --addr :9090 --delay 2s
  contractis mock-server --llm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mockserver.Options{
				AnalysisDelay: delay,
				Seed:          seed,
				Logger:        newLogger("mockserver"),
			}
			if llm {
				opts.Analyzer = mockserver.NewChatAnalyzer(mockserver.ChatAnalyzerOptions{
					Logger: newLogger("llm"),
				})
			}
			srv := mockserver.New(opts)

			progress(cmd, "rocket", "Mock backend listening on %s", addr)
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return fmt.Errorf("mock server: %w", err)
			}
			progress(cmd, "door", "Mock backend stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().BoolVar(&seed, "seed", false, "start with demo records")
	cmd.Flags().DurationVar(&delay, "delay", 0, "slow every analysis down by this much")
	cmd.Flags().BoolVar(&llm, "llm", false, "analyze with the configured model instead of canned text")

	return cmd
}
