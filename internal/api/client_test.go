package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yildizm/contractis/internal/settings"
)

type memFile struct {
	name string
	data []byte
}

func (m memFile) FileName() string { return m.name }

func (m memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Options{BaseURL: server.URL, RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid", "http://localhost:8080", false},
		{"trailing slash", "http://localhost:8080/", false},
		{"empty", "", true},
		{"no scheme", "localhost:8080", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{BaseURL: tt.baseURL})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/estimate" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected X-Request-ID header")
		}
		if got := r.FormValue("maxTokens"); got != "800" {
			t.Errorf("Expected maxTokens 800, got %q", got)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part: %v", err)
			return
		}
		if header.Filename != "lease.pdf" {
			t.Errorf("Expected filename lease.pdf, got %s", header.Filename)
		}

		_, _ = w.Write([]byte(`{"success":true,"characterCount":4000,"estimatedTokens":1000,"chunks":2,
			"systemPromptTokens":300,"phase1Tokens":5400,"phase2InputTokens":2700,"phase2OutputTokens":1200,
			"totalTokens":9300,"recommendedMaxTokens":1200}`))
	})

	got, err := client.Estimate(context.Background(), memFile{name: "lease.pdf", data: []byte("%PDF-1.4")}, 800)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	want := &Estimation{
		CharacterCount:       4000,
		EstimatedTokens:      1000,
		Chunks:               2,
		SystemPromptTokens:   300,
		Phase1Tokens:         5400,
		Phase2InputTokens:    2700,
		Phase2OutputTokens:   1200,
		TotalTokens:          9300,
		RecommendedMaxTokens: 1200,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Estimation mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Only PDF files are allowed"}`))
	})

	_, err := client.Estimate(context.Background(), memFile{name: "a.pdf"}, 800)
	if !IsServer(err) {
		t.Fatalf("Expected server error, got %v", err)
	}
	if Describe(err) != "Only PDF files are allowed" {
		t.Errorf("Expected verbatim server message, got %q", Describe(err))
	}
}

func TestEstimateIgnoresRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success":true,"characterCount":90000,"totalTokens":30000,"recommendedMaxTokens":2000}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Options{BaseURL: server.URL, RequestTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	est, err := client.Estimate(context.Background(), memFile{name: "large.pdf"}, 800)
	if err != nil {
		t.Fatalf("slow estimate was cut short: %v (%s)", err, Describe(err))
	}
	if est.RecommendedMaxTokens != 2000 {
		t.Errorf("Expected recommendation 2000, got %d", est.RecommendedMaxTokens)
	}

	if _, err := client.Stats(context.Background()); !IsTimeout(err) {
		t.Errorf("Expected read calls to honor the request timeout, got %v", err)
	}
}

func TestAnalyzeSendsConfig(t *testing.T) {
	cfg := settings.LLMConfig{
		Type:      settings.TypeOnline,
		APIURL:    "https://api.example.com/v1/chat/completions",
		APIKey:    "sk-test",
		ModelName: "gpt-4o",
		MaxTokens: 1200,
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var got settings.LLMConfig
		if err := json.Unmarshal([]byte(r.FormValue("llmConfig")), &got); err != nil {
			t.Errorf("llmConfig is not JSON: %v", err)
		}
		if diff := cmp.Diff(cfg, got); diff != "" {
			t.Errorf("llmConfig mismatch (-want +got):\n%s", diff)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": "## Resumen\nTodo bien"})
	})

	analysis, err := client.Analyze(context.Background(), memFile{name: "a.pdf"}, cfg)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if analysis != "## Resumen\nTodo bien" {
		t.Errorf("Unexpected analysis %q", analysis)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := client.ListContracts(context.Background(), 50)
		if !IsHTTPStatus(err) {
			t.Fatalf("Expected http status error, got %v", err)
		}
		if Describe(err) != "HTTP 500: Internal Server Error" {
			t.Errorf("Unexpected message %q", Describe(err))
		}
	})

	t.Run("status with envelope", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"Query parameter 'q' is required"}`))
		})
		_, err := client.SearchContracts(context.Background(), "", 50)
		if !IsServer(err) {
			t.Fatalf("Expected server error, got %v", err)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400 on error, got %+v", apiErr)
		}
	})

	t.Run("network", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()

		client, err := New(Options{BaseURL: baseURL})
		if err != nil {
			t.Fatal(err)
		}
		_, err = client.Stats(context.Background())
		if !IsNetwork(err) {
			t.Fatalf("Expected network error, got %v", err)
		}
		if !strings.Contains(Describe(err), "Could not connect") {
			t.Errorf("Unexpected message %q", Describe(err))
		}
	})

	t.Run("timeout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.Analyze(ctx, memFile{name: "a.pdf"}, settings.Default())
		if !IsTimeout(err) {
			t.Fatalf("Expected timeout error, got %v", err)
		}
		if IsNetwork(err) {
			t.Error("Timeout must not be reported as a connection error")
		}
		if !strings.Contains(Describe(err), "timeout") {
			t.Errorf("Unexpected message %q", Describe(err))
		}
	})

	t.Run("aborted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := client.Analyze(ctx, memFile{name: "a.pdf"}, settings.Default())
		if !IsAborted(err) {
			t.Fatalf("Expected aborted error, got %v", err)
		}
	})
}

func TestContractEndpoints(t *testing.T) {
	var deletes atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/contracts":
			if q.Get("limit") != "50" {
				t.Errorf("Expected limit 50, got %s", q.Get("limit"))
			}
			_, _ = w.Write([]byte(`{"success":true,"data":[{"id":7,"filename":"lease.pdf","uploaded_at":"2025-03-01T10:00:00Z","status":"completed","llm_type":"local","llm_model":"qwen3-4b","processing_time_seconds":12.34}]}`))
		case "/api/contracts/search":
			if q.Get("q") != "lease" || q.Get("limit") != "50" {
				t.Errorf("Unexpected search query %v", q)
			}
			_, _ = w.Write([]byte(`{"success":true,"data":null}`))
		case "/api/contracts/recent":
			_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
		case "/api/contracts/get":
			if q.Get("id") != "7" {
				t.Errorf("Expected id 7, got %s", q.Get("id"))
			}
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":7,"filename":"lease.pdf","status":"completed","analysis_result":"## ok"}}`))
		case "/api/contracts/delete":
			if r.Method != http.MethodPost {
				t.Errorf("Expected POST delete, got %s", r.Method)
			}
			deletes.Add(1)
			_, _ = w.Write([]byte(`{"success":true,"message":"deleted"}`))
		case "/api/contracts/stats":
			_, _ = w.Write([]byte(`{"success":true,"data":{"TotalContracts":3,"CompletedContracts":2,"FailedContracts":1,"TotalProcessingTime":30,"AverageProcessingTime":15}}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	list, err := client.ListContracts(ctx, 50)
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != 7 || list[0].Status != StatusCompleted || list[0].ProcessingTimeSeconds != 12.34 {
		t.Errorf("Unexpected list %+v", list)
	}

	found, err := client.SearchContracts(ctx, "lease", 50)
	if err != nil || found == nil || len(found) != 0 {
		t.Errorf("Expected empty non-nil search result, got %v, %v", found, err)
	}

	if _, err := client.RecentContracts(ctx, 10); err != nil {
		t.Errorf("RecentContracts failed: %v", err)
	}

	contract, err := client.GetContract(ctx, 7)
	if err != nil || contract.AnalysisResult != "## ok" {
		t.Errorf("Unexpected contract %+v, %v", contract, err)
	}

	if err := client.DeleteContract(ctx, 7); err != nil {
		t.Errorf("DeleteContract failed: %v", err)
	}
	if deletes.Load() != 1 {
		t.Errorf("Expected exactly one delete request, got %d", deletes.Load())
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalContracts != 3 || stats.AverageProcessingTime != 15 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Errorf("Unexpected health %+v, %v", health, err)
	}
}
