package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// PathAlias is one candidate path-resolution transform. When a planned path
// is missing from storage and starts with From, the fetch is retried with
// From swapped for To; on a hit the resolved path sticks for the rest of
// that item. Aliases are tried in slice order, so new directory conventions
// are additive rather than inline special cases.
type PathAlias struct {
	From string
	To   string
}

// defaultPathAliases covers the Next.js src-directory convention in both
// directions.
var defaultPathAliases = []PathAlias{
	{From: "src/app/", To: "app/"},
	{From: "app/", To: "src/app/"},
}

var codeFence = regexp.MustCompile("(?s)```[^\n]*\n.*?```")

// applyFilePlan applies plan items strictly sequentially. Sequential order
// keeps the applied-files report deterministic and avoids two items racing
// on the same sandbox filesystem. Per-item failures are logged and recorded;
// siblings always run. There is no rollback: partial application is an
// accepted outcome.
func (o *Orchestrator) applyFilePlan(ctx context.Context, projectID string, plan []FilePlanItem) []AppliedFileRecord {
	records := make([]AppliedFileRecord, 0, len(plan))
	for _, item := range plan {
		records = append(records, o.applyOne(ctx, projectID, item))
	}
	return records
}

func (o *Orchestrator) applyOne(ctx context.Context, projectID string, item FilePlanItem) AppliedFileRecord {
	record := AppliedFileRecord{Path: item.Path, Action: item.Action}

	if item.Action == ActionDelete {
		if err := o.storage.ApplyFileAction(ctx, projectID, ActionDelete, item.Path, ""); err != nil {
			o.logger.Warn("file delete failed",
				zap.String("project", projectID),
				zap.String("path", item.Path),
				zap.Error(err))
			return record
		}
		record.Success = true
		o.broadcastFile(projectID, record)
		return record
	}

	resolved := item.Path
	currentContent := ""
	if item.Action == ActionUpdate {
		path, content, err := o.fetchCurrent(ctx, projectID, item.Path)
		if err != nil {
			o.logger.Warn("file content fetch failed",
				zap.String("project", projectID),
				zap.String("path", item.Path),
				zap.Error(err))
			return record
		}
		resolved = path
		record.Path = path
		currentContent = content
	}

	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	content, err := o.generator.GenerateFileContent(genCtx, resolved, item.Action, item.Description, currentContent)
	cancel()
	if err != nil {
		o.logger.Warn("file content generation failed",
			zap.String("project", projectID),
			zap.String("path", resolved),
			zap.Error(err))
		return record
	}
	if strings.TrimSpace(content) == "" {
		// Never overwrite a file with nothing.
		o.logger.Warn("generated content empty, skipping apply",
			zap.String("project", projectID),
			zap.String("path", resolved))
		return record
	}

	if err := o.storage.ApplyFileAction(ctx, projectID, item.Action, resolved, content); err != nil {
		o.logger.Warn("file apply failed",
			zap.String("project", projectID),
			zap.String("path", resolved),
			zap.String("action", string(item.Action)),
			zap.Error(err))
		return record
	}

	record.Success = true
	o.broadcastFile(projectID, record)
	return record
}

// fetchCurrent loads the current content for an update, retrying the fetch
// under each matching path alias when the planned path is missing. Returns
// the resolved path and whatever content was found; a clean miss on every
// candidate is not an error, the update proceeds with empty content.
func (o *Orchestrator) fetchCurrent(ctx context.Context, projectID, path string) (string, string, error) {
	content, found, err := o.storage.GetFileContent(ctx, projectID, path)
	if err != nil {
		return path, "", err
	}
	if found {
		return path, content, nil
	}

	for _, alias := range o.pathAliases {
		if !strings.HasPrefix(path, alias.From) {
			continue
		}
		candidate := alias.To + strings.TrimPrefix(path, alias.From)
		content, found, err = o.storage.GetFileContent(ctx, projectID, candidate)
		if err != nil {
			return path, "", err
		}
		if found {
			o.logger.Debug("path resolved via alias",
				zap.String("planned", path),
				zap.String("resolved", candidate))
			return candidate, content, nil
		}
	}
	return path, "", nil
}

func (o *Orchestrator) broadcastFile(projectID string, record AppliedFileRecord) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.Broadcast("file_applied", map[string]string{
		"projectId": projectID,
		"path":      record.Path,
		"action":    string(record.Action),
	})
}

// stripCodeFences removes fenced code blocks from the outward message once
// the code has landed in files, then collapses the blank lines left behind.
func stripCodeFences(message string) string {
	stripped := codeFence.ReplaceAllString(message, "")
	return strings.TrimSpace(collapseNewlines(stripped))
}

func anySucceeded(records []AppliedFileRecord) bool {
	for _, r := range records {
		if r.Success {
			return true
		}
	}
	return false
}
