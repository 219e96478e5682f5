package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSink captures every frame written to it.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *recordingSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection reset")
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *recordingSink) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func TestBroadcastFraming(t *testing.T) {
	h := New(zap.NewNop())
	sink := &recordingSink{}
	h.Register(sink)

	h.Broadcast("file_created", map[string]string{"path": "app/page.tsx"})

	frames := sink.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "event: file_created\ndata: {\"path\":\"app/page.tsx\"}\n\n", string(frames[0]))
}

func TestBroadcastRemovesFailingSink(t *testing.T) {
	h := New(zap.NewNop())

	good := make([]*recordingSink, 3)
	for i := range good {
		good[i] = &recordingSink{}
		h.Register(good[i])
	}
	bad := &recordingSink{fail: true}
	h.Register(bad)
	require.Equal(t, 4, h.Len())

	h.Broadcast("status", map[string]string{"state": "building"})

	assert.Equal(t, 3, h.Len())
	for _, s := range good {
		frames := s.Frames()
		require.Len(t, frames, 1)
		assert.Equal(t, "event: status\ndata: {\"state\":\"building\"}\n\n", string(frames[0]))
	}
	assert.Empty(t, bad.Frames())
}

func TestRemovedSinkReceivesNothing(t *testing.T) {
	h := New(zap.NewNop())
	sink := &recordingSink{}
	h.Register(sink)
	h.Remove(sink)

	h.Broadcast("status", "later")
	assert.Empty(t, sink.Frames())
	assert.Equal(t, 0, h.Len())
}

func TestBroadcastUnserializablePayload(t *testing.T) {
	h := New(zap.NewNop())
	sink := &recordingSink{}
	h.Register(sink)

	h.Broadcast("bad", make(chan int))

	assert.Empty(t, sink.Frames())
	assert.Equal(t, 1, h.Len(), "sink stays registered when encoding fails")
}

func TestConcurrentRegisterBroadcastRemove(t *testing.T) {
	h := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &recordingSink{}
			h.Register(s)
			h.Broadcast("tick", i)
			h.Remove(s)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.Len())
}

func TestRunPings(t *testing.T) {
	h := New(zap.NewNop())
	h.pingInterval = 5 * time.Millisecond
	sink := &recordingSink{}
	h.Register(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(sink.Frames()) > 0
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, ": ping\n\n", string(sink.Frames()[0]))
}

func ExampleHub_Broadcast() {
	h := New(zap.NewNop())
	sink := &recordingSink{}
	h.Register(sink)
	h.Broadcast("file_created", map[string]string{"path": "app/layout.tsx"})
	fmt.Print(string(sink.Frames()[0]))
	// Output:
	// event: file_created
	// data: {"path":"app/layout.tsx"}
}
