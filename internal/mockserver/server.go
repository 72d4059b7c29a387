// Package mockserver is an in-process stand-in for the contract analysis
// backend. It serves the same endpoints with canned analyses.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/settings"
)

// Options configures a Server
type Options struct {
	// Analyzer produces analyses (default: canned text)
	Analyzer Analyzer
	// AnalysisDelay slows the canned analyzer down
	AnalysisDelay time.Duration
	// Extract pulls text out of an uploaded PDF (default document.ExtractText)
	Extract func(data []byte) (string, error)
	// Seed adds demo records
	Seed   bool
	Logger *logger.Logger
	Now    func() time.Time
}

// Server serves the backend endpoints
type Server struct {
	store    *Store
	opts     Options
	logger   *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics
}

// New creates a server with its own metrics registry
func New(opts Options) *Server {
	if opts.Analyzer == nil {
		opts.Analyzer = cannedAnalyzer{delay: opts.AnalysisDelay}
	}
	if opts.Extract == nil {
		opts.Extract = func(data []byte) (string, error) {
			text, _, err := document.ExtractText(data)
			return text, err
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop("mockserver")
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		store:    NewStore(),
		opts:     opts,
		logger:   log,
		registry: registry,
		metrics:  newMetrics(registry),
	}
	if opts.Seed {
		s.store.Seed(opts.Now())
	}
	return s
}

// Store exposes the history for tests and seeding
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Post("/estimate", s.handleEstimate)
	r.Post("/upload", s.handleUpload)

	r.Route("/api/contracts", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/search", s.handleSearch)
		r.Get("/recent", s.handleRecent)
		r.Get("/stats", s.handleStats)
		r.Get("/get", s.handleGet)
		r.Post("/delete", s.handleDelete)
		r.Delete("/delete", s.handleDelete)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Health{Status: "healthy", Timestamp: s.opts.Now().UTC().Format(time.RFC3339)})
}

// readPDF reads the "file" form field. Failures are written to w as
// {success: false, error} with status 200, the way the backend reports them.
func (s *Server) readPDF(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, "Could not read the uploaded file")
		return "", nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > document.MaxSize {
		sendError(w, "File too large (maximum 10MB)")
		return "", nil, false
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		sendError(w, "Only PDF files are allowed")
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(w, "Could not read the uploaded file")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readPDF(w, r)
	if !ok {
		return
	}

	maxTokens := settings.DefaultMaxTokens
	if v := r.FormValue("maxTokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxTokens = n
		}
	}

	text, err := s.opts.Extract(data)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("text extraction failed for %s: %v", name, err)
		sendError(w, "Could not extract text from the PDF")
		return
	}

	est := Estimate(text, maxTokens)
	s.logger.Debug("estimate for %s: %d tokens, %d chunks, recommended %d", name, est.TotalTokens, est.Chunks, est.RecommendedMaxTokens)

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		api.Estimation
	}{Success: true, Estimation: est})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readPDF(w, r)
	if !ok {
		return
	}

	var cfg settings.LLMConfig
	if err := json.Unmarshal([]byte(r.FormValue("llmConfig")), &cfg); err != nil {
		sendError(w, "Could not parse the LLM configuration")
		return
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		sendError(w, fmt.Sprintf("Invalid LLM configuration: %v", err))
		return
	}

	text, err := s.opts.Extract(data)
	if err != nil || strings.TrimSpace(text) == "" {
		sendError(w, "Could not extract text from the PDF")
		return
	}

	record := s.store.Add(api.Contract{
		Filename:        name,
		FileSize:        int64(len(data)),
		UploadedAt:      s.opts.Now().UTC(),
		Status:          api.StatusAnalyzing,
		LLMType:         string(cfg.Type),
		LLMModel:        cfg.ModelName,
		MaxTokens:       cfg.MaxTokens,
		CharacterCount:  len(text),
		EstimatedTokens: len(text) / CharsPerToken,
		ChunksCount:     len(SplitText(text, DefaultChunkSize)),
	})

	start := time.Now()
	result, err := s.opts.Analyzer.Analyze(r.Context(), text, cfg)
	finished := s.opts.Now().UTC()
	record.AnalyzedAt = &finished
	record.ProcessingTimeSeconds = time.Since(start).Seconds()

	if err != nil {
		record.Status = api.StatusFailed
		record.ErrorMessage = err.Error()
		_ = s.store.Update(record)
		s.metrics.analyses.WithLabelValues(string(cfg.Type), string(api.StatusFailed)).Inc()
		if errors.Is(err, context.Canceled) {
			return
		}
		sendError(w, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	record.Status = api.StatusCompleted
	record.AnalysisResult = result
	_ = s.store.Update(record)
	s.metrics.analyses.WithLabelValues(string(cfg.Type), string(api.StatusCompleted)).Inc()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": result})
}

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.URL.Query().Get("id")
	if v == "" {
		http.Error(w, "ID parameter is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.store.List(limit), "limit": limit})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	limit := limitParam(r, 20)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.store.Search(q, limit), "query": q, "limit": limit})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.store.List(limitParam(r, 10))})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.store.Stats()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	contract, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "Contract not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": contract})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.logger.Warn("delete of contract %d failed: %v", id, err)
		http.Error(w, "Error deleting contract", http.StatusInternalServerError)
		return
	}
	s.logger.Info("deleted contract %d", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Contract deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": message})
}
