package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/yildizm/contractis/internal/logger"
	"github.com/yildizm/contractis/internal/storage"
)

// ErrIntegrity is returned when the persisted value does not read back identically
var ErrIntegrity = errors.New("saved configuration did not verify")

// SaveError reports a persistence failure; the previous configuration stays active
type SaveError struct {
	Op    string
	Cause error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save configuration (%s): %v", e.Op, e.Cause)
}

func (e *SaveError) Unwrap() error {
	return e.Cause
}

// Store owns the active configuration and its persisted copy
type Store struct {
	kv     storage.KV
	logger *logger.Logger

	mu     sync.RWMutex
	active LLMConfig
}

// NewStore creates a store over kv. Call Load before use.
func NewStore(kv storage.KV, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop("settings")
	}
	return &Store{
		kv:     kv,
		logger: log,
		active: Default(),
	}
}

// Load reads the persisted configuration. Missing, malformed or unreadable
// data falls back to Default and is not an error.
func (s *Store) Load(ctx context.Context) LLMConfig {
	cfg := s.read(ctx)

	s.mu.Lock()
	s.active = cfg
	s.mu.Unlock()
	return cfg
}

func (s *Store) read(ctx context.Context) LLMConfig {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("no stored configuration, using defaults")
		return Default()
	}
	if err != nil {
		s.logger.WarnWithFields("stored configuration unreadable, using defaults", []logger.Field{logger.Error(err)})
		return Default()
	}

	var cfg LLMConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.WarnWithFields("stored configuration malformed, using defaults", []logger.Field{logger.Error(err)})
		return Default()
	}
	return cfg
}

// Active returns the configuration currently in effect
func (s *Store) Active() LLMConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Save validates candidate, persists it, verifies the read-back and only
// then makes it active. Validation failures return *FieldError and touch
// nothing.
func (s *Store) Save(ctx context.Context, candidate LLMConfig) (LLMConfig, error) {
	candidate = candidate.Normalize()
	if err := candidate.Validate(); err != nil {
		return s.Active(), err
	}
	if err := s.commit(ctx, candidate); err != nil {
		return s.Active(), err
	}
	s.logger.InfoWithFields("configuration saved", []logger.Field{logger.F("type", candidate.Type), logger.F("model", candidate.ModelName)})
	return candidate, nil
}

// UpdateMaxTokens persists the active configuration with a new token budget.
// The other fields are not validated so a recommendation can be applied to
// an unconfigured default.
func (s *Store) UpdateMaxTokens(ctx context.Context, n int) (LLMConfig, error) {
	if n <= 0 {
		return s.Active(), &FieldError{Field: "maxTokens", Message: "Max tokens must be a positive number"}
	}
	next := s.Active()
	next.MaxTokens = n
	if err := s.commit(ctx, next); err != nil {
		return s.Active(), err
	}
	s.logger.Info("max tokens updated to %d", n)
	return next, nil
}

// Reset removes the persisted value and reverts to Default
func (s *Store) Reset(ctx context.Context) (LLMConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, StorageKey); err != nil {
		return s.active, &SaveError{Op: "delete", Cause: err}
	}
	s.active = Default()
	return s.active, nil
}

// commit is write, read back, compare, swap. The in-memory value changes
// only after the persisted copy verified.
func (s *Store) commit(ctx context.Context, next LLMConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(next)
	if err != nil {
		return &SaveError{Op: "encode", Cause: err}
	}

	previous, prevErr := s.kv.Get(ctx, StorageKey)

	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return &SaveError{Op: "write", Cause: err}
	}

	stored, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.restore(ctx, previous, prevErr)
		return &SaveError{Op: "verify", Cause: err}
	}
	var roundTrip LLMConfig
	if err := json.Unmarshal(stored, &roundTrip); err != nil || roundTrip != next {
		s.restore(ctx, previous, prevErr)
		return &SaveError{Op: "verify", Cause: ErrIntegrity}
	}

	s.active = next
	return nil
}

func (s *Store) restore(ctx context.Context, previous []byte, prevErr error) {
	var err error
	switch {
	case prevErr == nil:
		err = s.kv.Set(ctx, StorageKey, previous)
	case errors.Is(prevErr, storage.ErrNotFound):
		err = s.kv.Delete(ctx, StorageKey)
	default:
		return
	}
	if err != nil {
		s.logger.WarnWithFields("could not restore previous configuration", []logger.Field{logger.Error(err)})
	}
}
