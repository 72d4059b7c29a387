package mockserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yildizm/contractis/internal/api"
)

// ErrNotFound is returned for unknown contract ids
var ErrNotFound = errors.New("contract not found")

// Store is the in-memory contract history
type Store struct {
	mu        sync.RWMutex
	contracts map[int64]api.Contract
	nextID    int64
}

// NewStore creates an empty history
func NewStore() *Store {
	return &Store{contracts: make(map[int64]api.Contract), nextID: 1}
}

// Add stores c under a new id and returns it
func (s *Store) Add(c api.Contract) api.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID
	s.nextID++
	if c.UploadedAt.IsZero() {
		c.UploadedAt = time.Now().UTC()
	}
	s.contracts[c.ID] = c
	return c
}

// Update replaces an existing record
func (s *Store) Update(c api.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[c.ID]; !ok {
		return ErrNotFound
	}
	s.contracts[c.ID] = c
	return nil
}

// List returns the newest records first, without analysis text
func (s *Store) List(limit int) []api.Contract {
	return s.filter("", limit)
}

// Search matches filenames case-insensitively
func (s *Store) Search(q string, limit int) []api.Contract {
	return s.filter(strings.ToLower(q), limit)
}

func (s *Store) filter(q string, limit int) []api.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		if q != "" && !strings.Contains(strings.ToLower(c.Filename), q) {
			continue
		}
		c.AnalysisResult = ""
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns one record including its analysis
func (s *Store) Get(id int64) (api.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return api.Contract{}, ErrNotFound
	}
	return c, nil
}

// Delete removes a record
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contracts, id)
	return nil
}

// Stats aggregates the history
func (s *Store) Stats() api.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats api.Stats
	for _, c := range s.contracts {
		stats.TotalContracts++
		switch c.Status {
		case api.StatusCompleted:
			stats.CompletedContracts++
			stats.TotalProcessingTime += c.ProcessingTimeSeconds
		case api.StatusFailed:
			stats.FailedContracts++
		}
		if c.AnalyzedAt != nil && (stats.LastAnalyzedAt == nil || c.AnalyzedAt.After(*stats.LastAnalyzedAt)) {
			t := *c.AnalyzedAt
			stats.LastAnalyzedAt = &t
		}
	}
	if stats.CompletedContracts > 0 {
		stats.AverageProcessingTime = stats.TotalProcessingTime / float64(stats.CompletedContracts)
	}
	return stats
}

// Seed fills the store with a few demo records
func (s *Store) Seed(now time.Time) {
	at := func(d time.Duration) *time.Time {
		t := now.Add(-d).UTC()
		return &t
	}

	s.Add(api.Contract{
		Filename: "lease-agreement.pdf", FileSize: 48213, UploadedAt: *at(72 * time.Hour), AnalyzedAt: at(72*time.Hour - 40*time.Second),
		Status: api.StatusCompleted, LLMType: "local", LLMModel: "qwen3-4b", MaxTokens: 800,
		CharacterCount: 9120, EstimatedTokens: 3040, ChunksCount: 4, ProcessingTimeSeconds: 38.4,
		AnalysisResult: "### Parte 1/2 ###\nThe tenant may terminate with 30 days notice.\n\n### Parte 2/2 ###\nLate payment carries a 5% monthly penalty. Disputes go to arbitration.",
	})
	s.Add(api.Contract{
		Filename: "supplier-nda.pdf", FileSize: 20110, UploadedAt: *at(26 * time.Hour), AnalyzedAt: at(26*time.Hour - 12*time.Second),
		Status: api.StatusCompleted, LLMType: "online", LLMModel: "gpt-4o-mini", MaxTokens: 1000,
		CharacterCount: 4100, EstimatedTokens: 1366, ChunksCount: 1, ProcessingTimeSeconds: 11.7,
		AnalysisResult: "The confidentiality obligations survive for five years. Jurisdiction is the courts of the disclosing party.",
	})
	s.Add(api.Contract{
		Filename: "employment-contract.pdf", FileSize: 90544, UploadedAt: *at(2 * time.Hour),
		Status: api.StatusFailed, LLMType: "local", LLMModel: "qwen3-4b", MaxTokens: 800,
		ErrorMessage: "LLM request timed out",
	})
}
