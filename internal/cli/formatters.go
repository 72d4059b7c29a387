package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/export"
	"github.com/yildizm/contractis/internal/history"
	"github.com/yildizm/contractis/internal/render"
	"github.com/yildizm/contractis/internal/workflow"
)

// output holds one result in every format a command supports
type output struct {
	text     func() (string, error)
	json     any
	markdown func() string
}

// writeOutput prints out in the selected --output format
func writeOutput(w io.Writer, format string, out output) error {
	switch format {
	case "json":
		data, err := render.JSON(out.json)
		if err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "markdown", "md":
		if out.markdown == nil {
			return fmt.Errorf("markdown output is not supported by this command")
		}
		_, err := io.WriteString(w, out.markdown())
		return err
	case "text", "":
		text, err := out.text()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, text)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s (use text, json or markdown)", format)
	}
}

// AnalysisOutput is the JSON shape of an analysis result
type AnalysisOutput struct {
	Filename   string    `json:"filename"`
	Model      string    `json:"model"`
	Date       time.Time `json:"date"`
	ContractID int64     `json:"contract_id,omitempty"`
	Content    string    `json:"content"`
}

// EstimationOutput is the JSON shape of an estimate
type EstimationOutput struct {
	Filename   string          `json:"filename"`
	MaxTokens  int             `json:"max_tokens"`
	Estimation *api.Estimation `json:"estimation"`
}

// HistoryOutput is the JSON shape of a history listing
type HistoryOutput struct {
	Query     string         `json:"query,omitempty"`
	Contracts []api.Contract `json:"contracts"`
	Stats     *api.Stats     `json:"stats,omitempty"`
}

func resultOutput(r *render.Renderer, res *workflow.Result) output {
	report := reportFor(res)
	return output{
		text: func() (string, error) {
			body, err := r.Analysis(res.Content)
			if err != nil {
				return "", fmt.Errorf("failed to render analysis: %w", err)
			}
			return r.ResultHeader(res.Filename, res.Model, res.Date) + "\n" + body, nil
		},
		json: AnalysisOutput{
			Filename:   res.Filename,
			Model:      res.Model,
			Date:       res.Date,
			ContractID: res.ContractID,
			Content:    res.Content,
		},
		markdown: func() string { return string(report.Markdown()) },
	}
}

func reportFor(res *workflow.Result) export.Report {
	return export.Report{
		Filename: res.Filename,
		Model:    res.Model,
		Date:     res.Date,
		Content:  res.Content,
	}
}

// resultFromContract turns a stored record into the result shape
func resultFromContract(c *api.Contract) *workflow.Result {
	return &workflow.Result{
		Content:    c.AnalysisResult,
		Filename:   c.Filename,
		Model:      render.ModelLabel(c.LLMType, c.LLMModel),
		Date:       c.UploadedAt,
		ContractID: c.ID,
	}
}

func historyOutput(r *render.Renderer, records []api.Contract, stats *api.Stats, query, empty string) output {
	return output{
		text: func() (string, error) {
			if len(records) == 0 {
				return empty + "\n", nil
			}
			width := terminalWidth()
			var body string
			if width > 0 && width*history.PixelsPerColumn <= GetGlobalConfig().History.CardBreakpoint {
				body = r.Cards(records)
			} else {
				body = r.Table(records, 0) + "\n"
			}
			if stats != nil {
				body += "\n" + r.Stats(stats)
			}
			return body, nil
		},
		json:     HistoryOutput{Query: query, Contracts: records, Stats: stats},
		markdown: func() string { return r.HistoryMarkdown(records, stats) },
	}
}
