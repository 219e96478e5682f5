// Package workspace stores project files on disk, one directory tree per
// project, and implements the orchestrator's storage collaborator.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"vibeforge/internal/orchestrator"
)

// Store reads and writes project files beneath a root directory.
type Store struct {
	root   string
	logger *zap.Logger
}

// New creates a workspace store rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace root required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Store{root: abs, logger: logger}, nil
}

// GetFileContent returns a project file's content. A missing file is
// reported as found=false with no error.
func (s *Store) GetFileContent(_ context.Context, projectID, path string) (string, bool, error) {
	full, err := s.resolve(projectID, path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), true, nil
}

// ApplyFileAction creates, updates, or deletes one project file. Creates
// and updates both write content, making parent directories as needed;
// deleting a file that is already gone is not an error.
func (s *Store) ApplyFileAction(_ context.Context, projectID string, action orchestrator.Action, path, content string) error {
	full, err := s.resolve(projectID, path)
	if err != nil {
		return err
	}

	switch action {
	case orchestrator.ActionCreate, orchestrator.ActionUpdate:
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("failed to create parent dirs for %s: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	case orchestrator.ActionDelete:
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unknown file action %q", action)
	}

	s.logger.Debug("file action applied",
		zap.String("project", projectID),
		zap.String("action", string(action)),
		zap.String("path", path))
	return nil
}

// resolve joins a project-relative path under the project directory and
// rejects anything that would escape it.
func (s *Store) resolve(projectID, path string) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("project id required")
	}
	if strings.Contains(projectID, "..") || strings.ContainsAny(projectID, `/\`) {
		return "", fmt.Errorf("invalid project id %q", projectID)
	}
	if path == "" {
		return "", fmt.Errorf("path required")
	}
	projectDir := filepath.Join(s.root, projectID)
	full := filepath.Join(projectDir, filepath.FromSlash(path))
	if full != projectDir && !strings.HasPrefix(full, projectDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project", path)
	}
	return full, nil
}
