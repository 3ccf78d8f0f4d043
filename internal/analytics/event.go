package analytics

import (
	"sync"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPlaybackStart    EventType = "playback_start"
	EventPlaybackPause    EventType = "playback_pause"
	EventPlaybackComplete EventType = "playback_complete"
	EventPlaybackError    EventType = "playback_error"
	EventFirstFrame       EventType = "time_to_first_frame"
)

// Event is one lifecycle record.
type Event struct {
	Type      EventType      `json:"type"`
	VideoID   string         `json:"video_id"`
	PostID    string         `json:"post_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Sink receives lifecycle events. Implementations must not block or panic.
type Sink interface {
	LogEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// LogEvent calls f.
func (f SinkFunc) LogEvent(e Event) { f(e) }

type nopSink struct{}

func (nopSink) LogEvent(Event) {}

// Nop returns a sink that discards every event.
func Nop() Sink { return nopSink{} }

// MultiSink delivers each event to every sink in order.
type MultiSink []Sink

// LogEvent fans out to each non-nil sink.
func (m MultiSink) LogEvent(e Event) {
	for _, sink := range m {
		if sink != nil {
			sink.LogEvent(e)
		}
	}
}

// MemorySink retains events in memory, trimmed to a limit when one is set.
type MemorySink struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemorySink returns a sink keeping at most limit events; limit <= 0 keeps all.
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

// LogEvent appends the event, dropping the oldest when over the limit.
func (m *MemorySink) LogEvent(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = append(m.events[:0], m.events[len(m.events)-m.limit:]...)
	}
}

// Events returns a copy of the retained events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the retained event types in order.
func (m *MemorySink) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// Reset drops all retained events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
