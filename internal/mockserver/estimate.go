package mockserver

import (
	"strings"

	"github.com/yildizm/contractis/internal/api"
)

// Token arithmetic of the reference backend
const (
	CharsPerToken       = 3
	DefaultChunkSize    = 3000
	MinChunkSize        = 500
	Phase1MaxTokens     = 1200
	MaxOutputTokens     = 2000
	MinOutputTokens     = 800
	LocalContextWindow  = 8000
	OnlineContextWindow = 128000
	SafetyMargin        = 1000
	MaxInputTokens      = LocalContextWindow - MaxOutputTokens - SafetyMargin
)

const (
	systemPrompt = "Analyze legal contracts. Identify unilateral termination, penalties, jurisdiction and risks. Answer in full, without emoji or markdown."
	userQuery    = "Analyze this entire contract. Identify unilateral termination, penalties (with amounts), jurisdiction or arbitration and the main risks."
)

// Estimate computes the token breakdown for text. Documents that fit an
// online context window are estimated as a single request, larger ones as
// a two-phase chunked analysis.
func Estimate(text string, maxTokens int) api.Estimation {
	chars := len(text)
	inputTokens := chars / CharsPerToken
	systemTokens := len(systemPrompt) / CharsPerToken

	if inputTokens < OnlineContextWindow-SafetyMargin-MaxOutputTokens {
		queryTokens := len(userQuery) / CharsPerToken
		totalInput := systemTokens + queryTokens + inputTokens
		output := clamp(maxTokens, MinOutputTokens, MaxOutputTokens)

		return api.Estimation{
			CharacterCount:       chars,
			EstimatedTokens:      inputTokens,
			Chunks:               1,
			SystemPromptTokens:   systemTokens,
			Phase2InputTokens:    totalInput,
			Phase2OutputTokens:   output,
			TotalTokens:          totalInput + output,
			RecommendedMaxTokens: output,
		}
	}

	chunkSize := DefaultChunkSize
	if maxChunkTokens := MaxInputTokens / 2; chunkSize/CharsPerToken > maxChunkTokens {
		chunkSize = maxChunkTokens * CharsPerToken
	}
	chunks := len(SplitText(text, chunkSize))

	phase1 := (systemTokens + chunkSize/CharsPerToken + Phase1MaxTokens) * chunks
	phase2Input := systemTokens + Phase1MaxTokens*chunks
	phase2Output := clamp(maxTokens, MinOutputTokens, MaxOutputTokens)
	total := phase1 + phase2Input + phase2Output

	return api.Estimation{
		CharacterCount:       chars,
		EstimatedTokens:      inputTokens,
		Chunks:               chunks,
		SystemPromptTokens:   systemTokens,
		Phase1Tokens:         phase1,
		Phase2InputTokens:    phase2Input,
		Phase2OutputTokens:   phase2Output,
		TotalTokens:          total,
		RecommendedMaxTokens: RecommendedMaxTokens(chunks, chars),
		Warning:              Warning(chunks, total),
	}
}

// RecommendedMaxTokens picks the output budget for a chunked analysis
func RecommendedMaxTokens(chunks, chars int) int {
	recommended := 800
	if chunks > 10 {
		recommended = 1000
	}
	if chunks > 20 {
		recommended = 1500
	}
	if chars > 50000 {
		recommended = 2000
	}
	return recommended
}

// Warning describes an unusually expensive analysis, or returns ""
func Warning(chunks, totalTokens int) string {
	switch {
	case chunks > 30:
		return "Very large document. The analysis may take more than 20 minutes. Consider splitting the document."
	case chunks > 15:
		return "Large document. The analysis may take 10-20 minutes."
	case totalTokens > 100000:
		return "High token usage. Consider a model with a larger context or a lower maxTokens."
	}
	return ""
}

// SplitText cuts text into chunks of at most maxSize bytes, preferring to
// break at a paragraph, a sentence end or whitespace in the last 30% of a chunk
func SplitText(text string, maxSize int) []string {
	if maxSize < MinChunkSize {
		maxSize = MinChunkSize
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxSize {
			chunks = append(chunks, text)
			break
		}

		split := maxSize
		window := text[maxSize*7/10 : maxSize]
		if i := strings.LastIndex(window, "\n\n"); i != -1 {
			split = maxSize*7/10 + i + 2
		} else if i := strings.LastIndexAny(window, ".!?"); i != -1 {
			split = maxSize*7/10 + i + 1
		} else if i := strings.LastIndexAny(window, " \n\t"); i != -1 {
			split = maxSize*7/10 + i + 1
		}

		chunks = append(chunks, text[:split])
		text = text[split:]
	}
	return chunks
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
