package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/attestor-io/strata/iox"
	"github.com/attestor-io/strata/types"
)

const (
	runsDir      = "runs"
	systemDir    = "_system"
	runMetaFile  = "run.json"
	runStateFile = "state.json"
)

// FS stores runs under <base>/runs/<run_id>/ with one msgpack file per
// artifact and JSON system files in _system/. Artifact ids are
// url-path-escaped to stay filename-safe.
type FS struct {
	base string
}

// NewFS returns a filesystem store rooted at base. The directory is
// created on first write, not here.
func NewFS(base string) *FS {
	return &FS{base: base}
}

// Base returns the store's root directory.
func (s *FS) Base() string { return s.base }

func (s *FS) runDir(runID string) string {
	return filepath.Join(s.base, runsDir, url.PathEscape(runID))
}

func (s *FS) artifactPath(runID, key string) string {
	return filepath.Join(s.runDir(runID), url.PathEscape(key))
}

// Save implements Store.
func (s *FS) Save(ctx context.Context, runID, key string, msg *types.Message) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", key, err)
	}
	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run directory %s: %w", dir, err)
	}
	return iox.WriteFileAtomic(s.artifactPath(runID, key), data, 0o644)
}

// Get implements Store.
func (s *FS) Get(ctx context.Context, runID, key string) (*types.Message, error) {
	data, err := os.ReadFile(s.artifactPath(runID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s in run %s: %w", key, runID, ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	var msg types.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &msg, nil
}

// Exists implements Store.
func (s *FS) Exists(ctx context.Context, runID, key string) (bool, error) {
	_, err := os.Stat(s.artifactPath(runID, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %s: %w", key, err)
}

// Delete implements Store.
func (s *FS) Delete(ctx context.Context, runID, key string) error {
	err := os.Remove(s.artifactPath(runID, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}

// ListKeys implements Store.
func (s *FS) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run %s: %w", runID, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear implements Store.
func (s *FS) Clear(ctx context.Context, runID string) error {
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		return fmt.Errorf("clear run %s: %w", runID, err)
	}
	return nil
}

// SaveRunMetadata implements Store.
func (s *FS) SaveRunMetadata(ctx context.Context, meta *types.RunMetadata) error {
	return s.writeSystemFile(meta.RunID, runMetaFile, meta)
}

// LoadRunMetadata implements Store.
func (s *FS) LoadRunMetadata(ctx context.Context, runID string) (*types.RunMetadata, error) {
	var meta types.RunMetadata
	if err := s.readSystemFile(runID, runMetaFile, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveState implements Store.
func (s *FS) SaveState(ctx context.Context, runID string, state *types.ExecutionState) error {
	return s.writeSystemFile(runID, runStateFile, state)
}

// LoadState implements Store.
func (s *FS) LoadState(ctx context.Context, runID string) (*types.ExecutionState, error) {
	var state types.ExecutionState
	if err := s.readSystemFile(runID, runStateFile, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListRuns implements Store.
func (s *FS) ListRuns(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, runsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *FS) writeSystemFile(runID, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s for run %s: %w", name, runID, err)
	}
	dir := filepath.Join(s.runDir(runID), systemDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create system directory %s: %w", dir, err)
	}
	return iox.WriteFileAtomic(filepath.Join(dir, name), data, 0o644)
}

func (s *FS) readSystemFile(runID, name string, v any) error {
	path := filepath.Join(s.runDir(runID), systemDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s for run %s: %w", name, runID, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Verify FS implements Store.
var _ Store = (*FS)(nil)
