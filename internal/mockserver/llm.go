package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/settings"
)

// Limits of the consolidation phase
const (
	MaxFragments        = 4
	maxFragmentChars    = 2500
	minConsolidation    = 1800
	hierarchyGroupSize  = 3
	instructionTokens   = 50
	defaultMaxRetries   = 3
	defaultRetryBackoff = 2 * time.Second
)

const (
	fragmentQuery      = "Analyze this fragment of the contract. Identify unilateral termination, penalties (with amounts), jurisdiction or arbitration and the main risks. No emoji."
	consolidationQuery = "Consolidate these fragments into one complete final report on unilateral termination, penalties, jurisdiction and risks. Keep every important detail. No emoji, no markdown."
)

var (
	// ErrEmptyCompletion is returned when the model answers with no text
	ErrEmptyCompletion = errors.New("the model returned an empty response")

	// ErrRateLimited is returned when the model keeps answering 429
	ErrRateLimited = errors.New("rate limited by the model endpoint")
)

// CompletionError is a non-2xx answer from the chat completions endpoint
type CompletionError struct {
	StatusCode int
	Message    string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("model endpoint returned %d: %s", e.StatusCode, e.Message)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest covers both dialects: local servers take max_tokens, hosted
// APIs take max_completion_tokens
type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Stream              bool          `json:"stream"`
}

// chatResponse accepts the OpenAI shape and the Ollama shape
type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Message chatMessage `json:"message"`
}

func (r chatResponse) content() string {
	if r.Message.Content != "" {
		return r.Message.Content
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatAnalyzerOptions configures a ChatAnalyzer
type ChatAnalyzerOptions struct {
	Client       *http.Client
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *logger.Logger
}

// ChatAnalyzer runs the analysis against the chat completions endpoint of
// the request's LLM configuration. Documents that fit an online context
// window go out as one request; everything else is analyzed chunk by chunk
// and then consolidated.
type ChatAnalyzer struct {
	client       *http.Client
	maxRetries   int
	retryBackoff time.Duration
	logger       *logger.Logger
}

// NewChatAnalyzer creates an analyzer that calls real models
func NewChatAnalyzer(opts ChatAnalyzerOptions) *ChatAnalyzer {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop("llm")
	}
	return &ChatAnalyzer{
		client:       opts.Client,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       opts.Logger,
	}
}

// Analyze implements Analyzer
func (a *ChatAnalyzer) Analyze(ctx context.Context, text string, cfg settings.LLMConfig) (string, error) {
	if cfg.IsOnline() && len(text)/CharsPerToken < OnlineContextWindow-SafetyMargin-MaxOutputTokens {
		return a.single(ctx, text, cfg)
	}

	chunks := SplitText(text, chunkSize())
	fragments := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		prompt := fmt.Sprintf("Part %d/%d of the contract:\n%s\n\nInstruction: %s", i+1, len(chunks), chunk, fragmentQuery)
		out, err := a.complete(ctx, cfg, prompt, Phase1MaxTokens)
		if err != nil {
			return "", fmt.Errorf("part %d/%d: %w", i+1, len(chunks), err)
		}
		a.logger.DebugWithFields("fragment analyzed", []logger.Field{logger.F("part", i+1), logger.Count(len(out))})
		fragments = append(fragments, fmt.Sprintf("PART %d/%d:\n%s", i+1, len(chunks), cleanFragment(out)))
	}

	if len(fragments) == 1 {
		return strings.TrimPrefix(fragments[0], "PART 1/1:\n"), nil
	}
	return a.consolidate(ctx, cfg, fragments)
}

func (a *ChatAnalyzer) single(ctx context.Context, text string, cfg settings.LLMConfig) (string, error) {
	used := (len(text) + len(systemPrompt) + len(userQuery)) / CharsPerToken
	budget := clamp(OnlineContextWindow-used-SafetyMargin, MinOutputTokens, MaxOutputTokens)
	return a.complete(ctx, cfg, userQuery+"\n\n"+text, budget)
}

func (a *ChatAnalyzer) consolidate(ctx context.Context, cfg settings.LLMConfig, fragments []string) (string, error) {
	for i, f := range fragments {
		fragments[i] = truncate(cleanFragment(f), maxFragmentChars)
	}
	if len(fragments) > MaxFragments {
		fragments = groupFragments(fragments)
	}

	prompt := consolidationPrompt(fragments)

	window := LocalContextWindow
	if cfg.IsOnline() {
		window = OnlineContextWindow
	}
	budget := clamp(window-len(prompt)/CharsPerToken-SafetyMargin, minConsolidation, MaxOutputTokens)

	return a.complete(ctx, cfg, prompt, budget)
}

// groupFragments merges fragments in groups of three
func groupFragments(fragments []string) []string {
	var groups []string
	for i := 0; i < len(fragments); i += hierarchyGroupSize {
		end := min(i+hierarchyGroupSize, len(fragments))
		text := cleanFragment(strings.Join(fragments[i:end], "\n\n"))
		groups = append(groups, fmt.Sprintf("GROUP %d-%d:\n%s", i+1, end, truncate(text, maxFragmentChars*2)))
	}
	return groups
}

// consolidationPrompt adds fragments until the input budget is spent
func consolidationPrompt(fragments []string) string {
	limit := MaxInputTokens * CharsPerToken

	var b strings.Builder
	b.WriteString(consolidationQuery)
	b.WriteString("\n\n")
	for _, f := range fragments {
		if b.Len()+len(f)+2 > limit {
			b.WriteString("[further fragments omitted]")
			break
		}
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func chunkSize() int {
	size := (MaxInputTokens - len(systemPrompt)/CharsPerToken - instructionTokens) * CharsPerToken
	return clamp(size, MinChunkSize, DefaultChunkSize)
}

// cleanFragment drops heading marks, separators and repeated blank space
func cleanFragment(text string) string {
	for _, s := range []string{"###", "##", "#", "---", "***", "==="} {
		text = strings.ReplaceAll(text, s, "")
	}
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[continued text omitted]"
}

// complete sends one system+user exchange and returns the answer text
func (a *ChatAnalyzer) complete(ctx context.Context, cfg settings.LLMConfig, prompt string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: cfg.ModelName,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	if cfg.IsOnline() {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.doWithRetry(ctx, cfg, body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", completionError(resp)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	content := strings.TrimSpace(chat.content())
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// doWithRetry retries network failures, 5xx answers and 429s honoring
// Retry-After, with a linear backoff between attempts
func (a *ChatAnalyzer) doWithRetry(ctx context.Context, cfg settings.LLMConfig, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Debug("retrying model request (%d/%d)", attempt+1, a.maxRetries)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}

		resp, err := a.client.Do(req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("model request failed: %w", err)
			wait = a.retryBackoff * time.Duration(attempt+1)
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			lastErr = ErrRateLimited
			wait = a.retryBackoff
			if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(s) * time.Second
			}
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = completionError(resp)
			_ = resp.Body.Close()
			wait = a.retryBackoff * time.Duration(attempt+1)
		default:
			return resp, nil
		}

		if attempt == a.maxRetries-1 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func completionError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var parsed errorResponse
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &CompletionError{StatusCode: resp.StatusCode, Message: message}
}
