package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yildizm/contractis/internal/settings"
)

type chatStub struct {
	mu       sync.Mutex
	requests []chatRequest
	auth     []string
	handle   func(w http.ResponseWriter, n int, req chatRequest)
}

func (s *chatStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	n := len(s.requests)
	s.mu.Unlock()

	s.handle(w, n, req)
}

func (s *chatStub) recorded() []chatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chatRequest(nil), s.requests...)
}

func answer(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func newChatStub(t *testing.T, handle func(w http.ResponseWriter, n int, req chatRequest)) (*chatStub, string) {
	t.Helper()
	stub := &chatStub{handle: handle}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv.URL + "/v1/chat/completions"
}

func testAnalyzer() *ChatAnalyzer {
	return NewChatAnalyzer(ChatAnalyzerOptions{RetryBackoff: 10 * time.Millisecond})
}

func TestChatAnalyzerOnlineSingleRequest(t *testing.T) {
	stub, url := newChatStub(t, func(w http.ResponseWriter, _ int, _ chatRequest) {
		answer(w, "The supplier may terminate with 30 days notice.")
	})

	cfg := settings.LLMConfig{Type: settings.TypeOnline, APIURL: url, APIKey: "sk-test", ModelName: "gpt-4o", MaxTokens: 800}
	got, err := testAnalyzer().Analyze(context.Background(), strings.Repeat("Clause. ", 200), cfg)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != "The supplier may terminate with 30 days notice." {
		t.Errorf("Analyze() = %q", got)
	}

	reqs := stub.recorded()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Model != "gpt-4o" || req.MaxTokens != 0 {
		t.Errorf("request model=%q max_tokens=%d", req.Model, req.MaxTokens)
	}
	if req.MaxCompletionTokens < MinOutputTokens || req.MaxCompletionTokens > MaxOutputTokens {
		t.Errorf("max_completion_tokens = %d, want within [%d, %d]", req.MaxCompletionTokens, MinOutputTokens, MaxOutputTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", req.Messages)
	}
	stub.mu.Lock()
	auth := stub.auth[0]
	stub.mu.Unlock()
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestChatAnalyzerLocalChunksAndConsolidates(t *testing.T) {
	stub, url := newChatStub(t, func(w http.ResponseWriter, _ int, req chatRequest) {
		prompt := req.Messages[1].Content
		if strings.HasPrefix(prompt, consolidationQuery) {
			answer(w, "final report")
			return
		}
		answer(w, "## Fragment\n\nPenalty   of 500 EUR.\n\n\n\n---")
	})

	cfg := settings.LLMConfig{Type: settings.TypeLocal, LocalURL: url, ModelName: "qwen3-4b", MaxTokens: 800}
	text := strings.Repeat("The parties agree to these terms. ", 220)

	got, err := testAnalyzer().Analyze(context.Background(), text, cfg)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != "final report" {
		t.Errorf("Analyze() = %q, want the consolidation answer", got)
	}

	chunks := len(SplitText(text, chunkSize()))
	if chunks < 2 {
		t.Fatalf("test text should need several chunks, got %d", chunks)
	}
	reqs := stub.recorded()
	if len(reqs) != chunks+1 {
		t.Fatalf("requests = %d, want %d", len(reqs), chunks+1)
	}

	for i, req := range reqs[:chunks] {
		if req.MaxTokens != Phase1MaxTokens || req.MaxCompletionTokens != 0 {
			t.Errorf("part %d: max_tokens=%d max_completion_tokens=%d", i+1, req.MaxTokens, req.MaxCompletionTokens)
		}
		if !strings.HasPrefix(req.Messages[1].Content, "Part ") {
			t.Errorf("part %d prompt = %.40q", i+1, req.Messages[1].Content)
		}
	}

	final := reqs[chunks]
	if final.MaxTokens < minConsolidation || final.MaxTokens > MaxOutputTokens {
		t.Errorf("consolidation max_tokens = %d", final.MaxTokens)
	}
	prompt := final.Messages[1].Content
	if strings.Contains(prompt, "##") || strings.Contains(prompt, "---") || strings.Contains(prompt, "  ") {
		t.Errorf("fragments were not cleaned: %q", prompt)
	}
	if !strings.Contains(prompt, "Penalty of 500 EUR.") {
		t.Errorf("consolidation prompt lost the fragment text: %q", prompt)
	}
}

func TestChatAnalyzerRetriesRateLimit(t *testing.T) {
	stub, url := newChatStub(t, func(w http.ResponseWriter, n int, _ chatRequest) {
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		answer(w, "ok")
	})

	cfg := settings.LLMConfig{Type: settings.TypeOnline, APIURL: url, APIKey: "k", ModelName: "m", MaxTokens: 800}
	got, err := testAnalyzer().Analyze(context.Background(), "short contract", cfg)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got != "ok" || len(stub.recorded()) != 2 {
		t.Errorf("Analyze() = %q after %d requests", got, len(stub.recorded()))
	}
}

func TestChatAnalyzerGivesUpOnPersistentRateLimit(t *testing.T) {
	stub, url := newChatStub(t, func(w http.ResponseWriter, _ int, _ chatRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	cfg := settings.LLMConfig{Type: settings.TypeOnline, APIURL: url, APIKey: "k", ModelName: "m", MaxTokens: 800}
	_, err := testAnalyzer().Analyze(context.Background(), "short contract", cfg)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Analyze() error = %v, want ErrRateLimited", err)
	}
	if len(stub.recorded()) != defaultMaxRetries {
		t.Errorf("requests = %d, want %d", len(stub.recorded()), defaultMaxRetries)
	}
}

func TestChatAnalyzerErrorBody(t *testing.T) {
	stub, url := newChatStub(t, func(w http.ResponseWriter, _ int, _ chatRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	})

	cfg := settings.LLMConfig{Type: settings.TypeOnline, APIURL: url, APIKey: "bad", ModelName: "m", MaxTokens: 800}
	_, err := testAnalyzer().Analyze(context.Background(), "short contract", cfg)

	var ce *CompletionError
	if !errors.As(err, &ce) {
		t.Fatalf("Analyze() error = %v, want *CompletionError", err)
	}
	if ce.StatusCode != http.StatusUnauthorized || ce.Message != "Incorrect API key provided" {
		t.Errorf("CompletionError = %+v", ce)
	}
	if len(stub.recorded()) != 1 {
		t.Errorf("client errors should not be retried, got %d requests", len(stub.recorded()))
	}
}

func TestChatAnalyzerEmptyAnswer(t *testing.T) {
	_, url := newChatStub(t, func(w http.ResponseWriter, _ int, _ chatRequest) {
		answer(w, "   ")
	})

	cfg := settings.LLMConfig{Type: settings.TypeLocal, LocalURL: url, ModelName: "m", MaxTokens: 800}
	_, err := testAnalyzer().Analyze(context.Background(), "short contract", cfg)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Analyze() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestChatAnalyzerOllamaShape(t *testing.T) {
	_, url := newChatStub(t, func(w http.ResponseWriter, _ int, _ chatRequest) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"from ollama"}}`))
	})

	cfg := settings.LLMConfig{Type: settings.TypeLocal, LocalURL: url, ModelName: "llama3", MaxTokens: 800}
	got, err := testAnalyzer().Analyze(context.Background(), "short contract", cfg)
	if err != nil || got != "from ollama" {
		t.Errorf("Analyze() = %q, %v", got, err)
	}
}

func TestGroupFragments(t *testing.T) {
	fragments := []string{"a", "b", "c", "d", "e"}
	groups := groupFragments(fragments)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if !strings.HasPrefix(groups[0], "GROUP 1-3:") || !strings.HasPrefix(groups[1], "GROUP 4-5:") {
		t.Errorf("groups = %q", groups)
	}
}

func TestConsolidationPromptRespectsBudget(t *testing.T) {
	big := strings.Repeat("x", MaxInputTokens*CharsPerToken/2)
	prompt := consolidationPrompt([]string{big, big, big})
	if len(prompt) > MaxInputTokens*CharsPerToken+len("[further fragments omitted]") {
		t.Errorf("prompt length %d exceeds the input budget", len(prompt))
	}
	if !strings.HasSuffix(prompt, "[further fragments omitted]") {
		t.Error("expected the omission marker")
	}
}
