package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/anima/internal/logging"
	"github.com/aretw0/anima/pkg/domain"
)

// Event names sent on GET /events.
const (
	EventAction = "action"
	EventDiff   = "diff"
	EventFact   = "fact"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data []byte
}

// StreamManager fans events out to the active SSE connections. It is also
// an ActionSink, so it can be handed to the soul directly.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
	logger      *slog.Logger
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithStreamBuffer sets how many events a slow subscriber may lag behind
// before events are dropped for it.
func WithStreamBuffer(n int) StreamOption {
	return func(sm *StreamManager) {
		sm.buffer = n
	}
}

// WithStreamLogger sets a custom structured logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(sm *StreamManager) {
		sm.logger = logger
	}
}

func NewStreamManager(opts ...StreamOption) *StreamManager {
	sm := &StreamManager{
		subscribers: make(map[chan Event]struct{}),
		buffer:      32,
	}
	for _, opt := range opts {
		opt(sm)
	}
	if sm.logger == nil {
		sm.logger = logging.NewNop()
	}
	return sm
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (sm *StreamManager) Subscribe() (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, sm.buffer)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Subscribers reports the number of active subscribers.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast sends payload, encoded as JSON, to every subscriber. Subscribers
// whose buffer is full miss the event.
func (sm *StreamManager) Broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("sse: failed to encode event", "event", name, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers {
		select {
		case ch <- Event{Name: name, Data: data}:
		default:
			sm.logger.Warn("sse: client buffer full, dropping event", "event", name)
		}
	}
}

// Emit implements domain.ActionSink.
func (sm *StreamManager) Emit(_ context.Context, action domain.Action) error {
	sm.Broadcast(EventAction, action)
	return nil
}

// SubscribeEvents handles GET /events. ?watch=action,diff limits the
// event names delivered.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var watch map[string]bool
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watch = make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			watch[strings.TrimSpace(name)] = true
		}
	}

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("sse: client connected", "watch", r.URL.Query().Get("watch"))

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse: client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if watch != nil && !watch[ev.Name] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}
