package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// outputTailChars bounds how much stdout/stderr a CommandResult keeps.
const outputTailChars = 500

// runDirectives executes extracted directives against the sandbox, strictly
// in order. One directive's failure never halts the rest: any error from the
// sandbox becomes a synthetic exit-1 result and the loop continues.
func (o *Orchestrator) runDirectives(ctx context.Context, projectID string, commands []string) []CommandResult {
	results := make([]CommandResult, 0, len(commands))
	for _, command := range commands {
		results = append(results, o.runOne(ctx, projectID, command))
	}
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, projectID, command string) CommandResult {
	runCtx, cancel := context.WithTimeout(ctx, o.commandTimeout)
	defer cancel()

	started := time.Now()
	run, err := o.sandbox.RunCommand(runCtx, projectID, command)
	if err != nil {
		o.logger.Warn("sandbox command failed",
			zap.String("project", projectID),
			zap.String("command", command),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return CommandResult{Command: command, ExitCode: 1}
	}

	o.logger.Debug("sandbox command finished",
		zap.String("project", projectID),
		zap.String("command", command),
		zap.Int("exitCode", run.ExitCode),
		zap.Duration("elapsed", time.Since(started)))

	return CommandResult{
		Command:  command,
		ExitCode: run.ExitCode,
		Stdout:   tail(run.Stdout, outputTailChars),
		Stderr:   tail(run.Stderr, outputTailChars),
	}
}

// summarizeCommands builds a human-readable stand-in message when directive
// extraction left nothing visible to say.
func summarizeCommands(results []CommandResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.ExitCode == 0 {
			lines = append(lines, fmt.Sprintf("Ran: %s", r.Command))
		} else {
			lines = append(lines, fmt.Sprintf("Failed (%d): %s", r.ExitCode, r.Command))
		}
	}
	return strings.Join(lines, "\n")
}

// tail keeps the last n characters of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
