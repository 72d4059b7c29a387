package mockserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yildizm/contractis/internal/settings"
)

// Analyzer produces the analysis text for a document
type Analyzer interface {
	Analyze(ctx context.Context, text string, cfg settings.LLMConfig) (string, error)
}

// AnalyzerFunc adapts a function to Analyzer
type AnalyzerFunc func(ctx context.Context, text string, cfg settings.LLMConfig) (string, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, text string, cfg settings.LLMConfig) (string, error) {
	return f(ctx, text, cfg)
}

// cannedAnalyzer summarizes each chunk without calling a model
type cannedAnalyzer struct {
	delay time.Duration
}

func (a cannedAnalyzer) Analyze(ctx context.Context, text string, cfg settings.LLMConfig) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	chunks := SplitText(text, DefaultChunkSize)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	var b strings.Builder
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			fmt.Fprintf(&b, "### Parte %d/%d ###\n", i+1, len(chunks))
		}
		fmt.Fprintf(&b, "Reviewed %d characters with %s. ", len(chunk), cfg.Label())
		b.WriteString("No unilateral termination, penalty or jurisdiction clauses were flagged.\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
