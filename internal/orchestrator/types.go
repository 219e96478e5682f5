// Package orchestrator turns one generated assistant reply into the
// side-effecting operations that make it real: embedded commands run in the
// project sandbox, the file plan lands in storage, the pineapple ledger is
// credited, activity is recorded, and live viewers are notified.
package orchestrator

import (
	"context"
	"time"
)

// Action is a file-plan action kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// FilePlanItem is one file action produced by the generation collaborator.
// Items are immutable and consumed in list order.
type FilePlanItem struct {
	Path        string `json:"path"`
	Action      Action `json:"action"`
	Description string `json:"description"`
}

// GenerationResponse is the raw output of one generation call. The pipeline
// mutates it in place as stages run and returns it once to the caller.
type GenerationResponse struct {
	Message  string         `json:"message"`
	FilePlan []FilePlanItem `json:"filePlan,omitempty"`
	ThreadID string         `json:"threadId,omitempty"`
}

// CommandResult records one executed directive. Stdout and Stderr hold at
// most the last 500 characters of the sandbox output. A result is present
// for every directive, including ones that failed inside the pipeline.
type CommandResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// AppliedFileRecord reports one file-plan item after application. Path is
// the resolved path, which may differ from the planned path when an alias
// resolver matched.
type AppliedFileRecord struct {
	Path    string `json:"path"`
	Action  Action `json:"action"`
	Success bool   `json:"success"`
}

// Award is the ledger collaborator's answer to one award call. Idempotent
// is true when the key had already been credited and the stored amount and
// balance were replayed instead of credited again.
type Award struct {
	Amount     int64
	NewBalance int64
	Idempotent bool
}

// ActivityEvent is one entry in a project's bounded activity history.
type ActivityEvent struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RunResult is the sandbox collaborator's answer to one command run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Request is the exposed contract's input. Credential is the opaque caller
// credential forwarded to the ledger; it is never interpreted here.
type Request struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	Context        string `json:"context,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Tag            string `json:"tag,omitempty"`

	Credential string `json:"-"`
}

// Response is the exposed contract's output.
type Response struct {
	Message           string              `json:"message"`
	FilePlan          []FilePlanItem      `json:"filePlan,omitempty"`
	ThreadID          string              `json:"threadId,omitempty"`
	RunCommandResults []CommandResult     `json:"runCommandResults,omitempty"`
	AppliedFiles      []AppliedFileRecord `json:"appliedFiles,omitempty"`
	PineapplesEarned  int64               `json:"pineapplesEarned"`
	NewBalance        int64               `json:"newBalance"`
}

// Generator produces assistant replies and regenerated file contents.
type Generator interface {
	Generate(ctx context.Context, prompt, model, chatContext string) (*GenerationResponse, error)
	GenerateFileContent(ctx context.Context, path string, action Action, description, currentContent string) (string, error)
}

// Sandbox runs shell commands inside a project's execution environment.
type Sandbox interface {
	RunCommand(ctx context.Context, projectID, command string) (*RunResult, error)
}

// Storage reads and mutates a project's files. GetFileContent reports
// found=false for a missing path without an error.
type Storage interface {
	GetFileContent(ctx context.Context, projectID, path string) (content string, found bool, err error)
	ApplyFileAction(ctx context.Context, projectID string, action Action, path, content string) error
}

// Ledger credits the pineapple economy. Award must be idempotent per key:
// replaying a used key returns the recorded amount and balance without
// crediting again.
type Ledger interface {
	Award(ctx context.Context, credential, projectID, eventType, idempotencyKey string) (*Award, error)
}

// ActivityLog appends to a project's bounded activity history. The log
// owns the history and its FIFO eviction.
type ActivityLog interface {
	AppendActivity(ctx context.Context, projectID string, event ActivityEvent) error
}

// Broadcaster notifies live stream viewers. Satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(event string, data any)
}
