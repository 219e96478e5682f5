package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyPrompt rejects a request before any side effect is attempted.
var ErrEmptyPrompt = errors.New("prompt is required")

// Config tunes the pipeline's bounded waits and path resolution.
type Config struct {
	// CommandTimeout bounds each sandbox command run.
	CommandTimeout time.Duration
	// GenerationTimeout bounds each generation collaborator call.
	GenerationTimeout time.Duration
	// ActivityTimeout bounds the detached activity append.
	ActivityTimeout time.Duration
	// PathAliases are tried in order when an update's path is missing.
	// Nil selects the default Next.js src-directory pair.
	PathAliases []PathAlias
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 90 * time.Second
	}
	if c.ActivityTimeout <= 0 {
		c.ActivityTimeout = 10 * time.Second
	}
	if c.PathAliases == nil {
		c.PathAliases = defaultPathAliases
	}
	return c
}

// Orchestrator coordinates one generation response end to end. It holds no
// per-request state; each Respond call is independent, and concurrent calls
// against the same project are arbitrated only by the collaborators
// themselves. That is a known limitation, not an oversight.
type Orchestrator struct {
	generator   Generator
	sandbox     Sandbox
	storage     Storage
	ledger      Ledger
	activity    ActivityLog
	broadcaster Broadcaster
	logger      *zap.Logger

	commandTimeout    time.Duration
	generationTimeout time.Duration
	activityTimeout   time.Duration
	pathAliases       []PathAlias
}

// New wires the pipeline to its collaborators. broadcaster may be nil when
// no live viewers exist (e.g. in batch tooling).
func New(gen Generator, sb Sandbox, st Storage, lg Ledger, al ActivityLog, b Broadcaster, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		generator:         gen,
		sandbox:           sb,
		storage:           st,
		ledger:            lg,
		activity:          al,
		broadcaster:       b,
		logger:            logger,
		commandTimeout:    cfg.CommandTimeout,
		generationTimeout: cfg.GenerationTimeout,
		activityTimeout:   cfg.ActivityTimeout,
		pathAliases:       cfg.PathAliases,
	}
}

// Respond runs the full pipeline for one request: generate, execute
// embedded directives, apply the file plan, credit rewards, record
// activity. Stages after generation degrade independently; only a missing
// prompt or a failed generation call surface as errors.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	gen, err := o.generator.Generate(genCtx, req.Prompt, req.Model, req.Context)
	cancel()
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Message:  gen.Message,
		FilePlan: gen.FilePlan,
		ThreadID: gen.ThreadID,
	}

	// Command and file stages need somewhere to act and someone to act as.
	active := req.ProjectID != "" && req.Credential != ""

	if active {
		// Extraction is lazy: when the stage is skipped the directive
		// lines stay in the message untouched.
		commands, cleaned := ExtractDirectives(gen.Message)
		if len(commands) > 0 {
			results := o.runDirectives(ctx, req.ProjectID, commands)
			resp.RunCommandResults = results
			if strings.TrimSpace(cleaned) == "" {
				resp.Message = summarizeCommands(results)
			} else {
				resp.Message = cleaned
			}
		}
	}

	if active && len(gen.FilePlan) > 0 {
		resp.AppliedFiles = o.applyFilePlan(ctx, req.ProjectID, gen.FilePlan)
		if anySucceeded(resp.AppliedFiles) && strings.Contains(resp.Message, "```") {
			// The code landed in files; redisplaying it is redundant.
			resp.Message = stripCodeFences(resp.Message)
		}
	}

	if active && req.IdempotencyKey != "" {
		resp.PineapplesEarned, resp.NewBalance = o.awardRewards(ctx, req.Credential, req.ProjectID, req.IdempotencyKey, req.Tag)
	}

	if req.ProjectID != "" {
		o.recordActivity(req, resp.PineapplesEarned)
	}

	return resp, nil
}

// recordActivity appends a prompt event to the project's bounded history.
// It is fire-and-forget: the caller never waits on it and gets no
// guarantee it happened. Failures are logged and discarded.
func (o *Orchestrator) recordActivity(req Request, pineapples int64) {
	event := ActivityEvent{
		Type:        promptEventType,
		Description: truncateDescription(req.Prompt),
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{"pineapples": strconv.FormatInt(pineapples, 10)},
	}
	if req.Tag != "" {
		event.Metadata["tag"] = req.Tag
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn("activity append panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.activityTimeout)
		defer cancel()
		if err := o.activity.AppendActivity(ctx, req.ProjectID, event); err != nil {
			o.logger.Warn("activity append failed",
				zap.String("project", req.ProjectID),
				zap.Error(err))
		}
	}()
}

// descriptionLimit bounds activity descriptions.
const descriptionLimit = 120

func truncateDescription(s string) string {
	if len(s) <= descriptionLimit {
		return s
	}
	return s[:descriptionLimit] + "..."
}
