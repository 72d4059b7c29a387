package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/export"
	"github.com/yildizm/contractis/internal/workflow"
)

var (
	estimateApply bool

	analyzeEstimateFirst    bool
	analyzeApplyRecommended bool
	analyzeExport           bool
)

func newEstimateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate [file.pdf]",
		Short: "Estimate the tokens an analysis would use",
		Long: `Upload a PDF contract to /estimate and show the token breakdown: characters,
chunks, prompt and phase budgets, the total and the recommended max tokens.

Examples:
  contractis estimate lease.pdf
  contractis estimate --apply-recommended lease.pdf
  contractis estimate -o json lease.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: runEstimate,
	}

	cmd.Flags().BoolVar(&estimateApply, "apply-recommended", false, "save the recommended max tokens in the settings")

	return cmd
}

func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file.pdf]",
		Short: "Analyze a PDF contract",
		Long: `Upload a PDF contract to /upload together with the LLM settings and print the
analysis. Online models are cancelled after server.online_analysis_timeout; local
models run until the backend answers.

Examples:
  contractis analyze lease.pdf
  contractis analyze --estimate --apply-recommended lease.pdf
  contractis analyze --export -o markdown lease.pdf > report.md`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().BoolVar(&analyzeEstimateFirst, "estimate", false, "show the estimate before analyzing")
	cmd.Flags().BoolVar(&analyzeApplyRecommended, "apply-recommended", false, "estimate first and save the recommended max tokens")
	cmd.Flags().BoolVar(&analyzeExport, "export", false, "also write the report to the configured export target")

	return cmd
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := selectDocument(a.workflow, args[0]); err != nil {
		return err
	}

	progress(cmd, "estimate", "Estimating tokens for %s...", args[0])
	if err := a.workflow.Estimate(ctx); err != nil {
		return noticeError(a.workflow, err)
	}

	snap := a.workflow.Snapshot()
	if err := writeEstimation(cmd.OutOrStdout(), a, snap); err != nil {
		return err
	}

	if estimateApply {
		return applyRecommended(ctx, cmd, a)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := selectDocument(a.workflow, args[0]); err != nil {
		return err
	}

	if analyzeEstimateFirst || analyzeApplyRecommended {
		progress(cmd, "estimate", "Estimating tokens for %s...", args[0])
		if err := a.workflow.Estimate(ctx); err != nil {
			return noticeError(a.workflow, err)
		}
		// the estimate goes to stderr so stdout stays the analysis
		if err := writeEstimation(cmd.ErrOrStderr(), a, a.workflow.Snapshot()); err != nil {
			return err
		}
		if analyzeApplyRecommended {
			if err := applyRecommended(ctx, cmd, a); err != nil {
				return err
			}
		}

		progress(cmd, "analysis", "Analyzing %s with %s...", args[0], a.store.Active().Label())
		err = a.workflow.Proceed(ctx)
	} else {
		progress(cmd, "analysis", "Analyzing %s with %s...", args[0], a.store.Active().Label())
		err = a.workflow.Analyze(ctx)
	}
	if err != nil {
		return noticeError(a.workflow, err)
	}

	res := a.workflow.Snapshot().Result
	if res == nil {
		return fmt.Errorf("analysis finished without a result")
	}
	if err := writeOutput(cmd.OutOrStdout(), getOutputFormat(), resultOutput(a.renderer, res)); err != nil {
		return err
	}

	if analyzeExport {
		return exportReport(ctx, cmd, a, res)
	}
	return nil
}

// selectDocument opens path and hands it to the controller, which rejects
// anything that is not a PDF
func selectDocument(ctrl *workflow.Controller, path string) error {
	file, err := document.Open(path)
	if err != nil && !errors.Is(err, document.ErrNotPDF) {
		return err
	}
	if err := ctrl.SelectFile(file); err != nil {
		return noticeError(ctrl, err)
	}
	return nil
}

// noticeError prefers the message the controller chose for the user
func noticeError(ctrl *workflow.Controller, err error) error {
	if n := ctrl.Snapshot().Notice; n != nil && n.Kind == workflow.NoticeError {
		return errors.New(n.Message)
	}
	return err
}

func writeEstimation(w io.Writer, a *app, snap workflow.Snapshot) error {
	est := snap.Estimation
	if est == nil {
		return fmt.Errorf("no estimation available")
	}
	maxTokens := snap.Config.MaxTokens
	name := ""
	if snap.File != nil {
		name = snap.File.Name
	}

	return writeOutput(w, getOutputFormat(), output{
		text: func() (string, error) {
			text := emojiFor("document") + " " + name + "\n" + a.renderer.Estimation(est, maxTokens)
			if bar := budgetBar(maxTokens, est.RecommendedMaxTokens); bar != "" {
				text += emojiFor("tokens") + " " + bar + "\n"
			}
			return text, nil
		},
		json:     EstimationOutput{Filename: name, MaxTokens: maxTokens, Estimation: est},
		markdown: func() string { return a.renderer.EstimationMarkdown(name, est, maxTokens) },
	})
}

func applyRecommended(ctx context.Context, cmd *cobra.Command, a *app) error {
	if !a.workflow.Snapshot().ShowApplyRecommended() {
		progress(cmd, "info", "Max tokens already match the recommendation")
		return nil
	}
	if err := a.workflow.ApplyRecommended(ctx); err != nil {
		return noticeError(a.workflow, err)
	}
	if n := a.workflow.Snapshot().Notice; n != nil {
		progress(cmd, "success", "%s", n.Message)
	}
	return nil
}

func exportReport(ctx context.Context, cmd *cobra.Command, a *app, res *workflow.Result) error {
	sink, err := a.exportSink()
	if err != nil {
		return err
	}
	location, err := export.Write(ctx, sink, reportFor(res))
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	progress(cmd, "export", "Report saved to %s", location)
	return nil
}

// progress writes a status line to stderr unless the output is JSON
func progress(cmd *cobra.Command, icon, format string, args ...any) {
	if getOutputFormat() == "json" {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), emojiFor(icon)+" "+format+"\n", args...)
}
