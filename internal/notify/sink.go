package notify

import (
	"sync"
	"time"

	"github.com/keza/ikimina/internal/models"
)

// Sink consumes delivered events on behalf of one viewer. It dedupes by
// event ID within a bounded recent-history window, invokes the registered
// handler at most once per event, and tracks which notifications are
// still visible. Dismissal only affects display; entity state is owned by
// the workflow engine.
type Sink struct {
	mu sync.Mutex

	handler func(models.Event)

	// seen is the dedup window: a set plus insertion order so the
	// oldest entry can be evicted once the window is full.
	seen  map[string]struct{}
	order []string
	limit int

	visible map[string]*shown
	ttl     time.Duration
}

type shown struct {
	event models.Event
	timer *time.Timer
}

// NewSink creates a sink with the given dedup window size and display
// duration. A zero ttl keeps notifications visible until dismissed.
func NewSink(historyLimit int, ttl time.Duration) *Sink {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Sink{
		seen:    make(map[string]struct{}, historyLimit),
		limit:   historyLimit,
		visible: make(map[string]*shown),
		ttl:     ttl,
	}
}

// OnEvent registers the render handler. It is invoked at most once per
// delivered event; registering replaces any previous handler.
func (s *Sink) OnEvent(h func(models.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Receive processes one delivered event. Duplicates within the history
// window are discarded silently. Returns true if the event was rendered.
func (s *Sink) Receive(e models.Event) bool {
	s.mu.Lock()

	if _, dup := s.seen[e.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.remember(e.ID)

	sh := &shown{event: e}
	if s.ttl > 0 {
		id := e.ID
		sh.timer = time.AfterFunc(s.ttl, func() { s.Dismiss(id) })
	}
	s.visible[e.ID] = sh
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(e)
	}
	return true
}

// remember records an event ID, evicting the oldest entry when the
// window is full. Caller holds s.mu.
func (s *Sink) remember(id string) {
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
}

// Dismiss hides a notification early. Dismissing an unknown or already
// hidden event is a no-op.
func (s *Sink) Dismiss(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.visible[eventID]; ok {
		if sh.timer != nil {
			sh.timer.Stop()
		}
		delete(s.visible, eventID)
	}
}

// Visible returns the events currently on display.
func (s *Sink) Visible() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, 0, len(s.visible))
	for _, sh := range s.visible {
		out = append(out, sh.event)
	}
	return out
}
