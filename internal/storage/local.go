package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docstack/internal/models"
)

// LocalStore keeps objects as files under a root directory. Object keys map
// to relative paths, so the key alphabet must not escape the root.
type LocalStore struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create storage root '%s': %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("object key '%s' escapes storage root: %w", key, models.ErrInvalidArgument)
	}
	return filepath.Join(s.root, clean), nil
}

// Get reads the object's content.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object '%s': %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read object '%s': %w", key, err)
	}
	return data, nil
}

// Put writes the object, creating parent directories as needed.
func (s *LocalStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("unable to create object directory for '%s': %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("unable to write object '%s': %w", key, err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
