package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// fakeGenerator scripts generation responses and file contents.
type fakeGenerator struct {
	resp    *GenerationResponse
	err     error
	content func(path string, action Action, description, current string) (string, error)

	mu           sync.Mutex
	contentCalls []contentCall
}

type contentCall struct {
	path        string
	action      Action
	description string
	current     string
}

func (g *fakeGenerator) Generate(_ context.Context, _, _, _ string) (*GenerationResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	// Copy so the pipeline's in-place mutation never leaks between tests.
	cp := *g.resp
	cp.FilePlan = append([]FilePlanItem(nil), g.resp.FilePlan...)
	return &cp, nil
}

func (g *fakeGenerator) GenerateFileContent(_ context.Context, path string, action Action, description, current string) (string, error) {
	g.mu.Lock()
	g.contentCalls = append(g.contentCalls, contentCall{path, action, description, current})
	g.mu.Unlock()
	if g.content != nil {
		return g.content(path, action, description, current)
	}
	return "// generated " + path + "\n", nil
}

// fakeSandbox scripts per-command results and records execution order.
type fakeSandbox struct {
	run func(command string) (*RunResult, error)

	mu       sync.Mutex
	commands []string
}

func (s *fakeSandbox) RunCommand(_ context.Context, _, command string) (*RunResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()
	if s.run != nil {
		return s.run(command)
	}
	return &RunResult{ExitCode: 0, Stdout: "ok"}, nil
}

// fakeStorage holds project files in a map keyed by path.
type fakeStorage struct {
	mu       sync.Mutex
	files    map[string]string
	applied  []appliedCall
	applyErr map[string]error
	getErr   error
}

type appliedCall struct {
	action  Action
	path    string
	content string
}

func newFakeStorage(files map[string]string) *fakeStorage {
	if files == nil {
		files = make(map[string]string)
	}
	return &fakeStorage{files: files, applyErr: make(map[string]error)}
}

func (s *fakeStorage) GetFileContent(_ context.Context, _, path string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	content, ok := s.files[path]
	return content, ok, nil
}

func (s *fakeStorage) ApplyFileAction(_ context.Context, _ string, action Action, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyErr[path]; err != nil {
		return err
	}
	s.applied = append(s.applied, appliedCall{action, path, content})
	if action == ActionDelete {
		delete(s.files, path)
	} else {
		s.files[path] = content
	}
	return nil
}

// fakeLedger mimics the idempotency contract: a replayed key returns the
// recorded amount and balance without crediting again.
type fakeLedger struct {
	amounts map[string]int64 // event type -> amount

	mu      sync.Mutex
	entries map[string]*Award
	balance int64
	err     error
}

func newFakeLedger(amounts map[string]int64) *fakeLedger {
	return &fakeLedger{amounts: amounts, entries: make(map[string]*Award)}
}

func (l *fakeLedger) Award(_ context.Context, _, _, eventType, key string) (*Award, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if prior, ok := l.entries[key]; ok {
		replay := *prior
		replay.Idempotent = true
		return &replay, nil
	}
	amount, ok := l.amounts[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	l.balance += amount
	award := &Award{Amount: amount, NewBalance: l.balance}
	l.entries[key] = award
	return award, nil
}

// fakeActivity records appended events.
type fakeActivity struct {
	mu     sync.Mutex
	events []ActivityEvent
	err    error
	done   chan struct{}
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{done: make(chan struct{}, 8)}
}

func (a *fakeActivity) AppendActivity(_ context.Context, _ string, event ActivityEvent) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	a.done <- struct{}{}
	return a.err
}

func (a *fakeActivity) Events() []ActivityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ActivityEvent(nil), a.events...)
}

// fakeBroadcaster records broadcast event names.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (b *fakeBroadcaster) Broadcast(event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.data = append(b.data, data)
}

func (b *fakeBroadcaster) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}
