// Package filestore persists run states as TOML documents on disk, one
// directory per run.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// StateFileName is the name of the state document inside a run directory.
const StateFileName = "state.toml"

// Backend stores each run at <Dir>/<run_id>/state.toml.
type Backend struct {
	Dir string
}

// New returns a Backend rooted at dir, creating dir if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating runs dir: %w", err)
	}
	return &Backend{Dir: dir}, nil
}

// RunDir returns the directory holding a run's files.
func (b *Backend) RunDir(runID string) string {
	return filepath.Join(b.Dir, runID)
}

// StatePath returns the path of a run's state document.
func (b *Backend) StatePath(runID string) string {
	return filepath.Join(b.RunDir(runID), StateFileName)
}

// Load reads and decodes a run's state document.
func (b *Backend) Load(_ context.Context, runID string) (*story.ProjectState, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.StatePath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &story.NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	state, err := store.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return state, nil
}

// Save writes the state file atomically (write temp + rename). The revision
// check and the rename happen under the run's lock file, so two processes
// saving from the same base revision cannot both succeed.
func (b *Backend) Save(ctx context.Context, state *story.ProjectState) error {
	if err := checkRunID(state.RunID); err != nil {
		return err
	}
	data, err := store.Encode(state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.RunDir(state.RunID), 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	release, err := b.acquire(ctx, state.RunID)
	if err != nil {
		return err
	}
	defer release()

	persisted, exists, err := b.revision(state.RunID)
	if err != nil {
		return err
	}
	if err := store.CheckRevision(state, persisted, exists); err != nil {
		return err
	}

	path := b.StatePath(state.RunID)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming state file: %w", err)
	}

	return nil
}

// revision reads the revision of the persisted state document.
func (b *Backend) revision(runID string) (int, bool, error) {
	data, err := os.ReadFile(b.StatePath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading state file: %w", err)
	}
	state, err := store.Decode(data)
	if err != nil {
		return 0, false, fmt.Errorf("run %s: %w", runID, err)
	}
	return state.Revision, true, nil
}

// Delete removes a run directory and everything in it.
func (b *Backend) Delete(_ context.Context, runID string) error {
	if err := checkRunID(runID); err != nil {
		return err
	}
	dir := b.RunDir(runID)
	if _, err := os.Stat(filepath.Join(dir, StateFileName)); errors.Is(err, os.ErrNotExist) {
		return &story.NotFoundError{RunID: runID}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return nil
}

// List returns the ids of every run with a state document, sorted.
func (b *Backend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(b.StatePath(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// checkRunID rejects ids that would escape the runs directory.
func checkRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}
