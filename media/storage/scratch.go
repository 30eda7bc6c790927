package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/leeforge/imgcompress/utils"
)

const (
	// DefaultScratchPrefix names every slot created by a ScratchDir.
	DefaultScratchPrefix = "compress_"
	scratchExt           = ".jpg"
)

// ScratchDir hands out one unique slot path per call, so concurrent
// compressions sharing a directory never write the same file.
type ScratchDir struct {
	path   string
	prefix string
}

// NewScratchDir creates the directory if needed. An empty path selects a
// subdirectory of os.TempDir().
func NewScratchDir(path string) (*ScratchDir, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "imgcompress")
	}
	if err := utils.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &ScratchDir{
		path:   path,
		prefix: DefaultScratchPrefix,
	}, nil
}

// Path returns the directory path.
func (d *ScratchDir) Path() string {
	return d.path
}

// NewSlot returns a fresh path inside the directory. The file is not created.
func (d *ScratchDir) NewSlot() string {
	return filepath.Join(d.path, d.prefix+uuid.NewString()+scratchExt)
}

// Owns reports whether path is a slot of this directory.
func (d *ScratchDir) Owns(path string) bool {
	if filepath.Dir(path) != filepath.Clean(d.path) {
		return false
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, d.prefix) && strings.HasSuffix(base, scratchExt)
}

// Remove deletes a slot. Missing files are not an error.
func (d *ScratchDir) Remove(path string) error {
	if !d.Owns(path) {
		return fmt.Errorf("path %s is not a scratch slot of %s", path, d.path)
	}
	return utils.RemoveIfExists(path)
}

// List returns the slot files currently present.
func (d *ScratchDir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(d.path, entry.Name())
		if d.Owns(full) {
			files = append(files, full)
		}
	}
	return files, nil
}

// Purge removes every slot in the directory and returns how many were deleted.
func (d *ScratchDir) Purge() (int, error) {
	files, err := d.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := utils.RemoveIfExists(f); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
