package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Source yields the raw bytes of a named image.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// FileSource reads images from the local filesystem. Relative names are
// resolved against basePath; absolute names are used as-is.
type FileSource struct {
	basePath string
}

// NewFileSource creates a file source rooted at basePath. An empty basePath
// resolves relative names against the working directory.
func NewFileSource(basePath string) *FileSource {
	return &FileSource{basePath: basePath}
}

// ReadFile returns the full content of name.
func (s *FileSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("empty source name")
	}

	data, err := os.ReadFile(s.resolve(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (s *FileSource) resolve(name string) string {
	if filepath.IsAbs(name) || s.basePath == "" {
		return name
	}
	return filepath.Join(s.basePath, name)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, name string) ([]byte, error)

func (f SourceFunc) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}
