package workflow

import (
	"sync"
	"time"

	"github.com/bhargavap21/tradeforge/backtest"
)

// eventBufferSize bounds each session's live event channel (spec.md §4.7
// "a bounded event queue per session") so a slow consumer cannot grow memory
// without limit; an event that finds the channel full is dropped from the
// channel (it stays in history) rather than block the workflow goroutine.
const eventBufferSize = 256

// resultTTL is how long a completed session's Result stays retrievable
// (spec.md §4.7 "24h TTL result store").
const resultTTL = 24 * time.Hour

// Session tracks one running or completed workflow instance.
type Session struct {
	ID        string
	UserID    string
	UserQuery string
	CreatedAt time.Time

	mu       sync.Mutex
	events   chan Event
	history  []Event
	closed   bool
	started  bool
	protected map[string]any
}

func newSession(id, userQuery string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		UserQuery: userQuery,
		CreatedAt: createdAt,
		events:    make(chan Event, eventBufferSize),
	}
}

// emit appends the event to history and pushes it onto the live channel,
// dropping the event (never blocking the workflow goroutine) when the
// channel is already full, whatever the event's type (terminal events
// included). Every event, dropped or not, is kept in history, and complete
// is emitted after the result is stored, so a subscriber that follows
// History still sees it.
func (s *Session) emit(evt Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.history = append(s.history, evt)
	s.mu.Unlock()

	select {
	case s.events <- evt:
	default:
	}
}

// History returns every event emitted so far, for the "replay history then
// stream live" semantics a late-connecting subscriber needs (spec.md §6).
func (s *Session) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// Events returns the live channel for a subscriber to range over.
func (s *Session) Events() <-chan Event {
	return s.events
}

// close marks the session terminal. Callers should wait a short grace
// period after the terminal event before calling this, so a subscriber mid
// -receive on the channel isn't starved by a premature close.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// resultEntry pairs a stored Result with its expiry.
type resultEntry struct {
	result    *SessionResult
	expiresAt time.Time
}

// SessionResult is the final artifact of a completed workflow run (spec.md
// §4.7 "session result").
type SessionResult struct {
	SessionID    string                 `json:"session_id"`
	UserID       string                 `json:"user_id,omitempty"`
	Spec         map[string]any         `json:"strategy"`
	BacktestResult *backtest.Result     `json:"backtest_result"`
	Analysis     string                 `json:"analysis"`
	Insights     map[string]any         `json:"insights"`
	Iterations   int                    `json:"iterations"`
	ChangesLog   []string               `json:"changes_log"`
	CreatedAt    time.Time              `json:"created_at"`
}
