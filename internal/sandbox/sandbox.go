// Package sandbox runs user-project commands in per-project working
// directories under a configured root.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"vibeforge/internal/orchestrator"
)

// maxCapturedOutput bounds how much stdout/stderr is kept per run.
const maxCapturedOutput = 50000

// Local executes commands on the host, each project confined to its own
// directory under Root. It implements orchestrator.Sandbox.
type Local struct {
	root   string
	logger *zap.Logger
}

// NewLocal creates a local sandbox rooted at dir, creating it if needed.
func NewLocal(dir string, logger *zap.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("sandbox root required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}
	return &Local{root: abs, logger: logger}, nil
}

// ProjectDir returns the working directory for a project, creating it on
// first use. Project identifiers that would escape the root are rejected.
func (l *Local) ProjectDir(projectID string) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("project id required")
	}
	if strings.Contains(projectID, "..") || strings.ContainsAny(projectID, `/\`) {
		return "", fmt.Errorf("invalid project id %q", projectID)
	}
	dir := filepath.Join(l.root, projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create project dir: %w", err)
	}
	return dir, nil
}

// RunCommand executes one shell command in the project's directory and
// captures its output. A non-zero exit is a normal result, not an error;
// errors mean the command could not run at all (bad project, timeout,
// spawn failure).
func (l *Local) RunCommand(ctx context.Context, projectID, command string) (*orchestrator.RunResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command is required")
	}
	dir, err := l.ProjectDir(projectID)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.logger.Debug("running sandbox command",
		zap.String("project", projectID),
		zap.String("command", command))

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command timed out: %w", ctx.Err())
	}

	result := &orchestrator.RunResult{
		Stdout: truncateOutput(stdout.String()),
		Stderr: truncateOutput(stderr.String()),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command: %w", runErr)
	}
	return result, nil
}

func truncateOutput(s string) string {
	if len(s) > maxCapturedOutput {
		return s[:maxCapturedOutput] + "\n...[truncated]"
	}
	return s
}
