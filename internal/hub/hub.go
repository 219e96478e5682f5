// Package hub implements the realtime broadcast hub for vibeforge.
// It fans events out to every connected live-stream viewer as SSE frames.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is one live, connected event-stream consumer. A sink never outlives
// its transport connection: the first failed write removes it from the hub,
// and the transport layer calls Remove on client disconnect.
type Sink interface {
	// Write delivers one already-encoded frame. It must be safe to call
	// from any goroutine and should return an error once the underlying
	// connection is gone.
	Write(frame []byte) error
}

// Hub maintains the set of registered subscriber sinks and broadcasts
// events to all of them. Constructed once per process and passed by
// reference; it owns its membership set.
//
// Delivery is at-most-once per subscriber with no backlog or replay:
// a sink only receives events broadcast while it is registered.
type Hub struct {
	mu     sync.RWMutex
	sinks  map[Sink]struct{}
	logger *zap.Logger

	pingInterval time.Duration
}

// New creates an empty hub.
func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sinks:        make(map[Sink]struct{}),
		logger:       logger,
		pingInterval: 25 * time.Second,
	}
}

// Register adds a sink, typically on stream open.
func (h *Hub) Register(s Sink) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.sinks[s] = struct{}{}
	n := len(h.sinks)
	h.mu.Unlock()
	h.logger.Debug("subscriber registered", zap.Int("subscribers", n))
}

// Remove drops a sink. Safe to call for a sink that was already removed
// by a failed write.
func (h *Hub) Remove(s Sink) {
	if s == nil {
		return
	}
	h.mu.Lock()
	delete(h.sinks, s)
	n := len(h.sinks)
	h.mu.Unlock()
	h.logger.Debug("subscriber removed", zap.Int("subscribers", n))
}

// Len reports the current number of registered sinks.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Broadcast serializes data once as a single SSE frame
// (event: <name>\ndata: <json>\n\n) and writes the same bytes to every
// currently registered sink. A sink whose write fails is removed
// immediately; the failure is never surfaced to the caller.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("broadcast payload not serializable",
			zap.String("event", event), zap.Error(err))
		return
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload))
	h.writeAll(frame)
}

// Run emits periodic comment frames so intermediaries keep idle streams
// open. It blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.writeAll([]byte(": ping\n\n"))
		}
	}
}

func (h *Hub) writeAll(frame []byte) {
	h.mu.RLock()
	targets := make([]Sink, 0, len(h.sinks))
	for s := range h.sinks {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.Write(frame); err != nil {
			// Treat a failed write purely as subscriber departure.
			h.Remove(s)
			h.logger.Debug("subscriber write failed, dropping", zap.Error(err))
		}
	}
}
