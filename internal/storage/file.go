package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"persona_engine/pkg"

	"github.com/bytedance/sonic"
)

// FileSnapshotStore keeps one JSON file per owner under baseDir
type FileSnapshotStore struct {
	baseDir string
}

// NewFileSnapshotStore creates a file-based snapshot store
func NewFileSnapshotStore(baseDir string) *FileSnapshotStore {
	return &FileSnapshotStore{baseDir: baseDir}
}

func (f *FileSnapshotStore) LoadAll(ctx context.Context) (map[string][]pkg.MemoryEntry, error) {
	out := make(map[string][]pkg.MemoryEntry)

	files, err := os.ReadDir(f.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("failed to list snapshot directory: %w", err)
	}

	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		owner, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		entries, err := f.Load(ctx, owner)
		if err != nil {
			return nil, err
		}
		out[owner] = entries
	}
	return out, nil
}

func (f *FileSnapshotStore) Load(_ context.Context, ownerID string) ([]pkg.MemoryEntry, error) {
	filePath := f.path(ownerID)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []pkg.MemoryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var entries []pkg.MemoryEntry
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", filePath, err)
	}
	return entries, nil
}

// Save writes the collection to a temp file and renames it into place
func (f *FileSnapshotStore) Save(_ context.Context, ownerID string, entries []pkg.MemoryEntry) error {
	if err := os.MkdirAll(f.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := sonic.ConfigStd.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	filePath := f.path(ownerID)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (f *FileSnapshotStore) Delete(_ context.Context, ownerID string) error {
	if err := os.Remove(f.path(ownerID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}

func (f *FileSnapshotStore) path(ownerID string) string {
	return filepath.Join(f.baseDir, url.PathEscape(ownerID)+".json")
}
