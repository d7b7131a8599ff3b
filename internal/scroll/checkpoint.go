package scroll

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckpointStore persists the most recently confirmed iteration token.
// A restarted run resumes from the stored token; graceful completion
// clears it.
type CheckpointStore interface {
	// Load returns the stored token, or "" when no checkpoint exists.
	Load() (string, error)
	// Save overwrites the checkpoint with the given token.
	Save(token string) error
	// Clear removes the checkpoint. Clearing a missing checkpoint is not
	// an error.
	Clear() error
}

// FileCheckpoint stores the token as a single-line plain text file,
// overwritten atomically via rename.
type FileCheckpoint struct {
	path string
}

// NewFileCheckpoint creates a file-backed checkpoint store.
func NewFileCheckpoint(path string) *FileCheckpoint {
	return &FileCheckpoint{path: path}
}

func (c *FileCheckpoint) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *FileCheckpoint) Save(token string) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(token); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *FileCheckpoint) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// MemoryCheckpoint keeps the token in memory; used by tests and callers
// that do not need crash recovery.
type MemoryCheckpoint struct {
	token string
}

// NewMemoryCheckpoint creates an empty in-memory store.
func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{}
}

func (c *MemoryCheckpoint) Load() (string, error)  { return c.token, nil }
func (c *MemoryCheckpoint) Save(token string) error { c.token = token; return nil }
func (c *MemoryCheckpoint) Clear() error            { c.token = ""; return nil }
