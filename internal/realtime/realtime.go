// Package realtime defines the event port handlers publish through. The
// websocket hub and the AMQP broker both implement Publisher.
package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

const (
	EventNewOrder           = "new_order"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderAssigned      = "order_assigned"
	EventOrderCancelled     = "order_cancelled"
	EventOrderUpdated       = "order_updated"
	EventNewMessage         = "new_message"
	EventMessagesRead       = "messages_read"
	EventNoteAdded          = "note_added"
	EventNoteUpdated        = "note_updated"
	EventNoteDeleted        = "note_deleted"
	EventRestaurantUpdated  = "restaurant_updated"
)

// Event is what subscribers receive.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Publisher interface {
	Publish(room string, ev Event)
}

func NewEvent(typ string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: data}, nil
}

// Emit marshals payload once and publishes it to every room. A payload that
// cannot be marshalled is logged and dropped.
func Emit(p Publisher, typ string, payload interface{}, rooms ...string) {
	ev, err := NewEvent(typ, payload)
	if err != nil {
		log.Printf("WARN: marshal %s event: %v", typ, err)
		return
	}
	for _, room := range rooms {
		p.Publish(room, ev)
	}
}

func RestaurantRoom(id uuid.UUID) string {
	return "restaurant:" + id.String()
}

func OrderRoom(id uuid.UUID) string {
	return "order:" + id.String()
}

// Multi fans out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(room string, ev Event) {
	for _, p := range m {
		p.Publish(room, ev)
	}
}

type Nop struct{}

func (Nop) Publish(string, Event) {}

// Published is one recorded call to Recorder.Publish.
type Published struct {
	Room  string
	Event Event
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Published
}

func (r *Recorder) Publish(room string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Room: room, Event: ev})
}

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the event types published to room, in order.
func (r *Recorder) Types(room string) []string {
	var out []string
	for _, p := range r.Events() {
		if p.Room == room {
			out = append(out, p.Event.Type)
		}
	}
	return out
}
