package notify

import "sync"

// EventKind tells subscribers how to render an Event.
type EventKind string

const (
	EventToast        EventKind = "toast"
	EventNotification EventKind = "notification"
)

// Event is a single item delivered to live subscribers.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Toast        *Toast        `json:"toast,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// Hub fans events out to live subscribers, typically the server-sent event
// streams of one browser session. Slow subscribers miss events rather than
// block the publisher.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	next    uint64
	dropped uint64
}

var _ Toaster = (*Hub)(nil)

// NewHub creates a Hub without subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with a buffer of size buf. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, max(buf, 1))

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber whose buffer has room.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

// Toast publishes t as a toast event.
func (h *Hub) Toast(t Toast) {
	h.Publish(Event{Kind: EventToast, Toast: &t})
}

// Notify publishes n as a notification event.
func (h *Hub) Notify(n Notification) {
	h.Publish(Event{Kind: EventNotification, Notification: &n})
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dropped
}
