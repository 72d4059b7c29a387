package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yildizm/contractis/internal/api"
	"github.com/yildizm/contractis/internal/document"
	"github.com/yildizm/contractis/internal/settings"
	"github.com/yildizm/contractis/internal/storage"
)

type fakeBackend struct {
	mu            sync.Mutex
	estimateCalls int
	analyzeCalls  int
	lastMaxTokens int
	lastConfig    settings.LLMConfig

	estimation  *api.Estimation
	estimateErr error
	analysis    string
	analyzeErr  error

	// when set, calls signal started and wait for release
	started chan struct{}
	release chan struct{}
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.release == nil {
		return nil
	}
	f.started <- struct{}{}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) Estimate(ctx context.Context, _ api.FileSource, maxTokens int) (*api.Estimation, error) {
	f.mu.Lock()
	f.estimateCalls++
	f.lastMaxTokens = maxTokens
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.estimation, f.estimateErr
}

func (f *fakeBackend) Analyze(ctx context.Context, _ api.FileSource, cfg settings.LLMConfig) (string, error) {
	f.mu.Lock()
	f.analyzeCalls++
	f.lastConfig = cfg
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.analysis, f.analyzeErr
}

func (f *fakeBackend) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.estimateCalls, f.analyzeCalls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T, cfg *settings.LLMConfig) *settings.Store {
	t.Helper()
	store := settings.NewStore(storage.NewMemoryKV(), nil)
	store.Load(context.Background())
	if cfg != nil {
		if _, err := store.Save(context.Background(), *cfg); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	return store
}

func pdfFile(name string) *document.File {
	return &document.File{Name: name, Path: "/tmp/" + name, ContentType: "application/pdf", Size: 2048, Pages: 2}
}

func TestSelectNonPDFSendsNothing(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, newStore(t, nil), Options{})

	err := c.SelectFile(&document.File{Name: "notes.txt", ContentType: "text/plain"})
	if !errors.Is(err, document.ErrNotPDF) {
		t.Fatalf("Expected ErrNotPDF, got %v", err)
	}

	snap := c.Snapshot()
	if snap.State != Idle {
		t.Errorf("Expected state to stay idle, got %s", snap.State)
	}
	if snap.Notice == nil || snap.Notice.Kind != NoticeError {
		t.Errorf("Expected an error notice, got %+v", snap.Notice)
	}
	if snap.File != nil {
		t.Errorf("Rejected file must not be selected")
	}

	// Even forcing the actions afterwards sends nothing
	_ = c.Estimate(context.Background())
	_ = c.Analyze(context.Background())
	if e, a := backend.calls(); e != 0 || a != 0 {
		t.Errorf("Expected no requests, got %d estimates and %d analyses", e, a)
	}
}

func TestEstimateRequiresFile(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, newStore(t, nil), Options{})

	if err := c.Estimate(context.Background()); !errors.Is(err, ErrNoFile) {
		t.Fatalf("Expected ErrNoFile, got %v", err)
	}
	if e, _ := backend.calls(); e != 0 {
		t.Errorf("Expected no estimate request, got %d", e)
	}
	if snap := c.Snapshot(); snap.State != Idle || snap.Notice == nil {
		t.Errorf("Expected idle with a notice, got %s %+v", snap.State, snap.Notice)
	}
}

func TestApplyRecommendedExample(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	backend := &fakeBackend{estimation: &api.Estimation{CharacterCount: 4000, EstimatedTokens: 1000, RecommendedMaxTokens: 1200}}
	kv := storage.NewMemoryKV()
	store := settings.NewStore(kv, nil)
	store.Load(context.Background())

	c := New(backend, store, Options{Now: clock.Now})
	if err := c.SelectFile(pdfFile("two-pages.pdf")); err != nil {
		t.Fatal(err)
	}
	if err := c.Estimate(context.Background()); err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if backend.lastMaxTokens != 800 {
		t.Errorf("Expected configured 800 max tokens sent, got %d", backend.lastMaxTokens)
	}

	snap := c.Snapshot()
	if snap.State != EstimationShown || snap.Estimation == nil {
		t.Fatalf("Expected estimation shown, got %s", snap.State)
	}
	if !snap.ShowApplyRecommended() {
		t.Fatal("Expected apply-recommended control to be offered")
	}

	if err := c.ApplyRecommended(context.Background()); err != nil {
		t.Fatalf("ApplyRecommended failed: %v", err)
	}
	if got := settings.NewStore(kv, nil).Load(context.Background()).MaxTokens; got != 1200 {
		t.Errorf("Expected stored max tokens 1200, got %d", got)
	}

	snap = c.Snapshot()
	if snap.Notice == nil || snap.Notice.Kind != NoticeSuccess {
		t.Fatalf("Expected success notice, got %+v", snap.Notice)
	}
	if snap.ShowApplyRecommended() {
		t.Error("Apply control should disappear once values match")
	}
	if snap.State != EstimationShown {
		t.Errorf("Expected to stay in estimation view, got %s", snap.State)
	}

	clock.Advance(2 * time.Second)
	if c.Snapshot().Notice == nil {
		t.Error("Success notice should still be visible after 2s")
	}
	clock.Advance(time.Second)
	if n := c.Snapshot().Notice; n != nil {
		t.Errorf("Success notice should be gone after 3s, got %+v", n)
	}
}

func TestApplyRecommendedHiddenWhenEqual(t *testing.T) {
	backend := &fakeBackend{estimation: &api.Estimation{RecommendedMaxTokens: 800}}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))
	_ = c.Estimate(context.Background())

	if c.Snapshot().ShowApplyRecommended() {
		t.Error("Apply control should not be offered when recommendation equals configuration")
	}
	if err := c.ApplyRecommended(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestEstimateFailureAndDismiss(t *testing.T) {
	backend := &fakeBackend{estimateErr: api.NewError(api.ErrTypeServer, "Error extracting text from PDF", "/estimate")}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))

	if err := c.Estimate(context.Background()); err == nil {
		t.Fatal("Expected estimate error")
	}

	snap := c.Snapshot()
	if snap.State != ErrorShown {
		t.Fatalf("Expected error shown, got %s", snap.State)
	}
	if snap.Notice == nil || snap.Notice.Message != "Error extracting text from PDF" {
		t.Errorf("Expected server message verbatim, got %+v", snap.Notice)
	}

	c.DismissNotice()
	if snap := c.Snapshot(); snap.State != Idle || snap.Notice != nil {
		t.Errorf("Expected back to idle without notice, got %s %+v", snap.State, snap.Notice)
	}
}

func TestErrorReturnsToPrecedingState(t *testing.T) {
	backend := &fakeBackend{analysis: "## first"}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))

	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	backend.estimateErr = api.NewError(api.ErrTypeNetwork, "could not connect", "/estimate")
	_ = c.Estimate(context.Background())
	if c.State() != ErrorShown {
		t.Fatalf("Expected error shown, got %s", c.State())
	}

	c.DismissNotice()
	snap := c.Snapshot()
	if snap.State != ResultShown {
		t.Fatalf("Expected to return to result view, got %s", snap.State)
	}
	if snap.Result == nil || snap.Result.Content != "## first" {
		t.Errorf("Expected previous result to be shown again, got %+v", snap.Result)
	}
}

func TestMutualExclusion(t *testing.T) {
	backend := &fakeBackend{
		estimation: &api.Estimation{RecommendedMaxTokens: 1000},
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))

	done := make(chan error, 1)
	go func() { done <- c.Estimate(context.Background()) }()
	<-backend.started

	snap := c.Snapshot()
	want := Controls{}
	if diff := cmp.Diff(want, snap.Controls); diff != "" {
		t.Errorf("Expected every control disabled while estimating (-want +got):\n%s", diff)
	}

	if err := c.Analyze(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for analyze during estimate, got %v", err)
	}
	if err := c.Estimate(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for second estimate, got %v", err)
	}
	if err := c.SelectFile(pdfFile("b.pdf")); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for file selection, got %v", err)
	}

	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if e, a := backend.calls(); e != 1 || a != 0 {
		t.Errorf("Expected 1 estimate and 0 analyses, got %d and %d", e, a)
	}
	if c.State() != EstimationShown {
		t.Errorf("Expected estimation shown, got %s", c.State())
	}
}

func TestProceedAndCancel(t *testing.T) {
	backend := &fakeBackend{estimation: &api.Estimation{RecommendedMaxTokens: 1000}, analysis: "### Parte 1/2 ###\nok"}
	c := New(backend, newStore(t, nil), Options{})
	file := pdfFile("a.pdf")
	_ = c.SelectFile(file)

	if err := c.Proceed(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for proceed in idle, got %v", err)
	}

	_ = c.Estimate(context.Background())
	if err := c.CancelEstimate(); err != nil {
		t.Fatalf("CancelEstimate failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != Idle || snap.Estimation != nil || snap.File != file {
		t.Errorf("Expected idle with file kept and no estimation, got %s %+v %v", snap.State, snap.Estimation, snap.File)
	}

	_ = c.Estimate(context.Background())
	if err := c.Proceed(context.Background()); err != nil {
		t.Fatalf("Proceed failed: %v", err)
	}
	snap = c.Snapshot()
	if snap.State != ResultShown || snap.Estimation != nil {
		t.Errorf("Expected result shown and estimation discarded, got %s", snap.State)
	}
	if snap.Result.Filename != "a.pdf" || snap.Result.Model != "local: no model" {
		t.Errorf("Unexpected result metadata %+v", snap.Result)
	}
	if _, a := backend.calls(); a != 1 {
		t.Errorf("Expected one analysis, got %d", a)
	}
}

func TestShowContractAndReset(t *testing.T) {
	c := New(&fakeBackend{}, newStore(t, nil), Options{})
	uploaded := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	analyzed := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

	err := c.ShowContract(&api.Contract{
		ID: 9, Filename: "nda.pdf", Status: api.StatusCompleted, LLMType: "online", LLMModel: "gpt-4o",
		UploadedAt: uploaded, AnalyzedAt: &analyzed, AnalysisResult: "## NDA",
	})
	if err != nil {
		t.Fatalf("ShowContract failed: %v", err)
	}

	want := &Result{Content: "## NDA", Filename: "nda.pdf", Model: "online: gpt-4o", Date: uploaded, ContractID: 9}
	if diff := cmp.Diff(want, c.Snapshot().Result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	if snap := c.Snapshot(); snap.State != Idle || snap.Result != nil {
		t.Errorf("Expected idle without result, got %s", snap.State)
	}
}

func TestShowContractOnlyCompleted(t *testing.T) {
	for _, status := range []api.Status{api.StatusPending, api.StatusAnalyzing, api.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			c := New(&fakeBackend{}, newStore(t, nil), Options{})
			err := c.ShowContract(&api.Contract{ID: 3, Filename: "lease.pdf", Status: status, ErrorMessage: "LLM request timed out"})
			if !errors.Is(err, ErrNotViewable) {
				t.Fatalf("Expected ErrNotViewable, got %v", err)
			}
			if snap := c.Snapshot(); snap.State != Idle || snap.Result != nil {
				t.Errorf("Expected idle without result, got %s %+v", snap.State, snap.Result)
			}
		})
	}
}

func TestSelectFileAfterFailedReestimate(t *testing.T) {
	backend := &fakeBackend{estimation: &api.Estimation{RecommendedMaxTokens: 1200}}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))
	if err := c.Estimate(context.Background()); err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	backend.estimateErr = api.NewError(api.ErrTypeNetwork, "could not connect", "/estimate")
	_ = c.Estimate(context.Background())
	if c.State() != ErrorShown {
		t.Fatalf("Expected error shown, got %s", c.State())
	}

	if err := c.SelectFile(pdfFile("b.pdf")); err != nil {
		t.Fatalf("SelectFile failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != Idle {
		t.Errorf("Expected idle after a new selection, got %s", snap.State)
	}
	if snap.Notice != nil {
		t.Errorf("Expected the error notice to be hidden, got %+v", snap.Notice)
	}

	c.DismissNotice()
	snap = c.Snapshot()
	if snap.State != Idle || snap.Estimation != nil {
		t.Errorf("Estimation of a.pdf must not come back for b.pdf: %s %+v", snap.State, snap.Estimation)
	}
	if snap.Controls.ApplyRecommended || snap.Controls.Proceed {
		t.Errorf("Unexpected estimation controls %+v", snap.Controls)
	}
	if snap.File == nil || snap.File.Name != "b.pdf" {
		t.Errorf("Expected b.pdf selected, got %+v", snap.File)
	}
}

func TestSelectFileAfterFailedAnalysisKeepsResult(t *testing.T) {
	backend := &fakeBackend{analysis: "## first"}
	c := New(backend, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))
	_ = c.Analyze(context.Background())

	backend.analyzeErr = api.NewError(api.ErrTypeServer, "boom", "/upload")
	_ = c.Analyze(context.Background())

	if err := c.SelectFile(pdfFile("b.pdf")); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.State != ResultShown || snap.Notice != nil {
		t.Errorf("Expected previous result without notice, got %s %+v", snap.State, snap.Notice)
	}
}

// blockingStore holds UpdateMaxTokens until released
type blockingStore struct {
	*settings.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) UpdateMaxTokens(ctx context.Context, n int) (settings.LLMConfig, error) {
	close(b.entered)
	<-b.release
	return b.Store.UpdateMaxTokens(ctx, n)
}

func TestApplyRecommendedDoesNotBlockSnapshots(t *testing.T) {
	store := &blockingStore{Store: newStore(t, nil), entered: make(chan struct{}), release: make(chan struct{})}
	backend := &fakeBackend{estimation: &api.Estimation{RecommendedMaxTokens: 1200}}
	c := New(backend, store, Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))
	_ = c.Estimate(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.ApplyRecommended(context.Background()) }()
	<-store.entered

	snapped := make(chan State, 1)
	go func() { snapped <- c.Snapshot().State }()
	select {
	case state := <-snapped:
		if state != EstimationShown {
			t.Errorf("Expected estimation shown while saving, got %s", state)
		}
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked while the configuration was being saved")
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("ApplyRecommended failed: %v", err)
	}
	if n := c.Snapshot().Notice; n == nil || n.Kind != NoticeSuccess {
		t.Errorf("Expected success notice, got %+v", n)
	}
}

func newHTTPController(t *testing.T, cfg settings.LLMConfig, onlineTimeout time.Duration, handler http.HandlerFunc) *Controller {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := api.New(api.Options{BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	c := New(client, newStore(t, &cfg), Options{OnlineTimeout: onlineTimeout})
	if err := c.SelectFile(pdfFile("contract.pdf")); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOnlineAnalysisTimeout(t *testing.T) {
	cfg := settings.LLMConfig{Type: settings.TypeOnline, APIURL: "https://api.example.com", APIKey: "sk", ModelName: "gpt-4o", MaxTokens: 800}

	c := newHTTPController(t, cfg, 50*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	err := c.Analyze(context.Background())
	if !api.IsTimeout(err) {
		t.Fatalf("Expected timeout error, got %v", err)
	}

	snap := c.Snapshot()
	if snap.State != ErrorShown {
		t.Fatalf("Expected error shown, got %s", snap.State)
	}
	msg := snap.Notice.Message
	if !strings.Contains(msg, "timeout") {
		t.Errorf("Expected timeout-specific message, got %q", msg)
	}
	if strings.Contains(msg, "Could not connect") {
		t.Errorf("Timeout must not look like a connection failure: %q", msg)
	}
}

func TestLocalAnalysisHasNoTimeout(t *testing.T) {
	cfg := settings.Default()
	cfg.ModelName = "qwen3-4b"

	// The backend answers well after the online deadline would have expired
	c := newHTTPController(t, cfg, 20*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success":true,"data":"## slow but fine"}`))
	})

	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("Local analysis should not time out: %v", err)
	}
	if snap := c.Snapshot(); snap.State != ResultShown || snap.Result.Content != "## slow but fine" {
		t.Errorf("Expected result shown, got %s", snap.State)
	}
}

func TestConnectionErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := api.New(api.Options{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	c := New(client, newStore(t, nil), Options{})
	_ = c.SelectFile(pdfFile("a.pdf"))

	_ = c.Estimate(context.Background())
	snap := c.Snapshot()
	if snap.State != ErrorShown || !strings.Contains(snap.Notice.Message, "Could not connect") {
		t.Errorf("Expected connection error notice, got %s %+v", snap.State, snap.Notice)
	}
}
