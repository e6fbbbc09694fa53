package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent reports a contact's state after a change.
type ProgressEvent struct {
	ContactID    string       `json:"contactId"`
	State        ContactState `json:"state"`
	Solves       int          `json:"solves"`
	Observations int          `json:"observations"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	Course       float64      `json:"course"`
	Speed        float64      `json:"speed"`
	Value        float64      `json:"value"`
	Error        string       `json:"error,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

func newProgressEvent(c Contact) ProgressEvent {
	e := ProgressEvent{
		ContactID:    c.ID,
		State:        c.State,
		Solves:       c.Solves,
		Observations: len(c.Scenario.Observations),
		Error:        c.Error,
		Timestamp:    time.Now(),
	}
	if c.Solution != nil {
		e.X, e.Y = c.Solution.X, c.Solution.Y
		e.Course, e.Speed, e.Value = c.Solution.Course, c.Solution.Speed, c.Solution.Value
	}
	return e
}

// EventBroadcaster fans contact events out to SSE clients.
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan ProgressEvent]struct{}
	lastEvent map[string]ProgressEvent
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]struct{}),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe returns a channel of events for a contact. The last event, if
// any, is delivered first.
func (eb *EventBroadcaster) Subscribe(contactID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 10)
	if eb.clients[contactID] == nil {
		eb.clients[contactID] = make(map[chan ProgressEvent]struct{})
	}
	eb.clients[contactID][ch] = struct{}{}

	if last, ok := eb.lastEvent[contactID]; ok {
		ch <- last
	}

	slog.Debug("SSE client subscribed", "contactID", contactID, "total_clients", len(eb.clients[contactID]))
	return ch
}

// Unsubscribe is a no-op for a channel CleanupContact already closed.
func (eb *EventBroadcaster) Unsubscribe(contactID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients, ok := eb.clients[contactID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(eb.clients, contactID)
	}
	slog.Debug("SSE client unsubscribed", "contactID", contactID)
}

// Broadcast never blocks: a client whose buffer is full misses the event.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.ContactID] = event
	for ch := range eb.clients[event.ContactID] {
		select {
		case ch <- event:
		default:
			slog.Warn("SSE channel full, skipping event", "contactID", event.ContactID)
		}
	}
}

// CleanupContact closes every client of a contact and forgets its last event.
func (eb *EventBroadcaster) CleanupContact(contactID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[contactID] {
		close(ch)
	}
	delete(eb.clients, contactID)
	delete(eb.lastEvent, contactID)
	slog.Debug("Cleaned up SSE resources", "contactID", contactID)
}

// handleContactStream serves GET /api/v1/contacts/:id/stream.
func (s *Server) handleContactStream(w http.ResponseWriter, r *http.Request, contactID string) {
	c, exists := s.contacts.GetContact(contactID)
	if !exists {
		http.Error(w, "Contact not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.contacts.broadcaster.Subscribe(contactID)
	defer s.contacts.broadcaster.Unsubscribe(contactID, events)

	if err := writeSSEEvent(w, newProgressEvent(c)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "contactID", contactID)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one "data:" frame.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
