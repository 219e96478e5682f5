// Package generation adapts the Gemini API to the orchestrator's
// generation collaborator: one call produces the assistant message plus a
// file plan, another regenerates individual file contents.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"vibeforge/internal/orchestrator"
)

// DefaultModel is used when the caller does not pick one.
const DefaultModel = "gemini-2.0-flash"

const systemPrompt = `You are the build assistant of an AI app builder.
Reply with a single JSON object, no surrounding prose:
{
  "message": "what you did, in plain language",
  "filePlan": [{"path": "app/page.tsx", "action": "create|update|delete", "description": "what this file is for"}]
}
To run a shell command in the user's project, put a line starting with
RUN_COMMAND: <command> inside the message.`

const fileContentPrompt = `You are generating the full content of one project file.
Return only the raw file content. No code fences, no commentary.`

// Client calls Gemini. It implements orchestrator.Generator.
type Client struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a Gemini-backed generator.
func NewClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{client: client, model: model, logger: logger}, nil
}

// generatedReply mirrors the JSON shape the model is asked to produce.
type generatedReply struct {
	Message  string `json:"message"`
	FilePlan []struct {
		Path        string `json:"path"`
		Action      string `json:"action"`
		Description string `json:"description"`
	} `json:"filePlan"`
}

// Generate produces one assistant reply with its file plan.
func (c *Client) Generate(ctx context.Context, prompt, model, chatContext string) (*orchestrator.GenerationResponse, error) {
	if model == "" {
		model = c.model
	}

	user := prompt
	if chatContext != "" {
		user = "Context:\n" + chatContext + "\n\nRequest:\n" + prompt
	}

	result, err := c.client.Models.GenerateContent(ctx, model,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	text := result.Text()
	reply, err := parseReply(text)
	if err != nil {
		// A malformed reply still has a usable message; the file plan is
		// simply empty.
		c.logger.Warn("model reply not parseable as JSON, using raw text",
			zap.String("model", model), zap.Error(err))
		return &orchestrator.GenerationResponse{Message: text}, nil
	}

	resp := &orchestrator.GenerationResponse{Message: reply.Message}
	for _, item := range reply.FilePlan {
		action := orchestrator.Action(item.Action)
		switch action {
		case orchestrator.ActionCreate, orchestrator.ActionUpdate, orchestrator.ActionDelete:
		default:
			c.logger.Warn("dropping file-plan item with unknown action",
				zap.String("path", item.Path), zap.String("action", item.Action))
			continue
		}
		resp.FilePlan = append(resp.FilePlan, orchestrator.FilePlanItem{
			Path:        item.Path,
			Action:      action,
			Description: item.Description,
		})
	}
	return resp, nil
}

// GenerateFileContent regenerates one file's full content.
func (c *Client) GenerateFileContent(ctx context.Context, path string, action orchestrator.Action, description, currentContent string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nAction: %s\nPurpose: %s\n", path, action, description)
	if currentContent != "" {
		fmt.Fprintf(&b, "\nCurrent content:\n%s\n", currentContent)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(b.String()),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(fileContentPrompt, genai.RoleUser),
		})
	if err != nil {
		return "", fmt.Errorf("file content generation failed for %s: %w", path, err)
	}
	return stripFence(result.Text()), nil
}

// parseReply decodes the model's JSON, tolerating a fenced wrapper.
func parseReply(text string) (*generatedReply, error) {
	cleaned := stripFence(text)
	var reply generatedReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode model reply: %w", err)
	}
	return &reply, nil
}

// stripFence removes one wrapping markdown code fence, if present.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSpace(trimmed)
}
