// Package store owns the persisted state of a run. All mutations go through a
// Tx so that every externally visible change is validated and persisted
// atomically before it becomes visible in memory.
package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Backend persists whole run states. Save must be atomic: a failed Save
// leaves the previously persisted state readable. Save also applies
// CheckRevision against the persisted copy so that a writer holding a stale
// state gets a *ConflictError instead of overwriting a newer revision.
type Backend interface {
	Load(ctx context.Context, runID string) (*story.ProjectState, error)
	Save(ctx context.Context, state *story.ProjectState) error
	Delete(ctx context.Context, runID string) error
	List(ctx context.Context) ([]string, error)
}

// Encode serializes a state to its TOML document form.
func Encode(state *story.ProjectState) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("encoding state %s: %w", state.RunID, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a TOML state document. Fields missing from the document take
// their zero values, then defaults are filled in.
func Decode(data []byte) (*story.ProjectState, error) {
	var state story.ProjectState
	if err := toml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	state.Normalize()
	return &state, nil
}

// Store is the exclusive owner of one run's state.
type Store struct {
	backend Backend
	now     func() time.Time

	mu    sync.RWMutex
	state *story.ProjectState
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp mutations.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func newStore(b Backend, opts []Option) *Store {
	s := &Store{backend: b, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create persists a new run state and returns its store.
func Create(ctx context.Context, b Backend, state *story.ProjectState, opts ...Option) (*Store, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	s := newStore(b, opts)
	working := state.Clone()
	working.Revision = 1
	if err := b.Save(ctx, working); err != nil {
		return nil, fmt.Errorf("saving new run %s: %w", state.RunID, err)
	}
	s.state = working
	return s, nil
}

// Open loads an existing run. It returns *story.NotFoundError when the run
// does not exist.
func Open(ctx context.Context, b Backend, runID string, opts ...Option) (*Store, error) {
	state, err := b.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	s := newStore(b, opts)
	s.state = state
	return s, nil
}

// RunID returns the id of the run this store owns.
func (s *Store) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RunID
}

// State returns a deep copy of the current state. Callers may read it freely;
// changes to it are never persisted.
func (s *Store) State() *story.ProjectState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Tx runs fn against a working copy of the state. If fn returns nil the copy
// is validated and saved, then replaces the current state. On any error
// neither memory nor the backend is changed.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{state: s.state.Clone(), now: s.now().UTC()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.state.UpdatedAt = tx.now
	tx.state.Revision = s.state.Revision + 1
	if err := tx.state.Validate(); err != nil {
		return err
	}
	if err := s.backend.Save(ctx, tx.state); err != nil {
		return fmt.Errorf("saving run %s: %w", tx.state.RunID, err)
	}
	s.state = tx.state
	return nil
}
