package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/workflow"
)

var (
	historyLimit int
	historyYes   bool
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past analyses",
		Long: `List, search, show, delete and export contracts stored by the backend.

Examples:
  contractis history list
  contractis history search lease
  contractis history show 12
  contractis history delete 12
  contractis history export 12`,
	}

	cmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 0, "number of records (default history.limit)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the most recent analyses with statistics",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Search analyses by file name",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistorySearch,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "recent",
		Short: "List the latest analyses",
		Args:  cobra.NoArgs,
		RunE:  runHistoryRecent,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show one analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		Args:  cobra.NoArgs,
		RunE:  runHistoryStats,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "export [id]",
		Short: "Write a stored analysis to the export target",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryExport,
	})

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}
	deleteCmd.Flags().BoolVarP(&historyYes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func limitFor(a *app) int {
	if historyLimit > 0 {
		return historyLimit
	}
	return a.cfg.History.Limit
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contract id: %s", arg)
	}
	return id, nil
}

// runHistoryList fetches the list and the stats concurrently. A stats
// failure is logged and the list is still shown.
func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var (
		records []api.Contract
		stats   *api.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = a.client.ListContracts(gctx, limitFor(a))
		return err
	})
	g.Go(func() error {
		s, err := a.client.Stats(gctx)
		if err != nil {
			a.logger.Warn("failed to load stats: %v", err)
			return nil
		}
		stats = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %s", history.MsgLoadFailed, api.Describe(err))
	}

	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), historyOutput(a.renderer, records, stats, "", history.MsgEmpty))
}

func runHistorySearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	query := ""
	if len(args) == 1 {
		query = strings.TrimSpace(args[0])
	}

	// an empty query falls back to the plain list
	var records []api.Contract
	empty := history.MsgNoResults
	if query == "" {
		records, err = a.client.ListContracts(ctx, limitFor(a))
		empty = history.MsgEmpty
	} else {
		records, err = a.client.SearchContracts(ctx, query, limitFor(a))
	}
	if err != nil {
		return fmt.Errorf("%s: %s", history.MsgSearchFailed, api.Describe(err))
	}

	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), historyOutput(a.renderer, records, nil, query, empty))
}

func runHistoryRecent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	limit := historyLimit
	if limit <= 0 {
		limit = 10
	}
	records, err := a.client.RecentContracts(ctx, limit)
	if err != nil {
		return fmt.Errorf("%s: %s", history.MsgLoadFailed, api.Describe(err))
	}
	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), historyOutput(a.renderer, records, nil, "", history.MsgEmpty))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	contract, err := a.client.GetContract(ctx, id)
	if err != nil {
		return fmt.Errorf("Error loading contract: %s", api.Describe(err))
	}
	if err := viewable(contract); err != nil {
		return err
	}

	res := resultFromContract(contract)
	out := resultOutput(a.renderer, res)
	out.json = contract
	out.text = func() (string, error) {
		meta := a.renderer.Contract(contract)
		if contract.AnalysisResult == "" {
			return meta, nil
		}
		body, err := a.renderer.Analysis(contract.AnalysisResult)
		if err != nil {
			return "", err
		}
		return meta + "\n" + body, nil
	}
	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), out)
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %s", api.Describe(err))
	}
	return writeOutput(cmd.OutOrStdout(), getOutputFormat(), output{
		text: func() (string, error) { return a.renderer.Stats(stats), nil },
		json: stats,
	})
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	contract, err := a.client.GetContract(ctx, id)
	if err != nil {
		return fmt.Errorf("Error loading contract: %s", api.Describe(err))
	}
	if err := viewable(contract); err != nil {
		return err
	}
	return exportReport(ctx, cmd, a, resultFromContract(contract))
}

// viewable refuses records without a finished analysis
func viewable(c *api.Contract) error {
	if err := workflow.Viewable(c); err != nil {
		if c.ErrorMessage != "" {
			return fmt.Errorf("contract #%d has no analysis: %w: %s", c.ID, err, c.ErrorMessage)
		}
		return fmt.Errorf("contract #%d has no analysis: %w", c.ID, err)
	}
	return nil
}

// runHistoryDelete goes through the history browser so a delete is always
// followed by one list refresh and one stats refresh
func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	browser := a.historyBrowser(nil)
	defer browser.Shutdown()
	if err := browser.Open(ctx); err != nil {
		a.logger.Warn("failed to load history before delete: %v", err)
	}

	confirm := func(c api.Contract) bool {
		if historyYes {
			return true
		}
		return confirmPrompt(cmd.InOrStdin(), cmd.ErrOrStderr(), c)
	}

	err = browser.Delete(ctx, id, confirm)
	switch {
	case errors.Is(err, history.ErrNotConfirmed):
		progress(cmd, "info", "Cancelled")
		return nil
	case err != nil:
		return errors.New(browser.Snapshot().Message)
	}

	progress(cmd, "success", "Contract #%d deleted", id)
	if getOutputFormat() == "json" {
		view := browser.Snapshot()
		return writeOutput(cmd.OutOrStdout(), "json", output{json: HistoryOutput{Contracts: view.Records, Stats: view.Stats}})
	}
	return nil
}

// confirmPrompt asks on w and reads a y/yes answer from r
func confirmPrompt(r io.Reader, w io.Writer, c api.Contract) bool {
	name := c.Filename
	if name == "" {
		name = "this contract"
	}
	fmt.Fprintf(w, "Delete contract #%d (%s)? This cannot be undone. [y/N] ", c.ID, name)

	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
