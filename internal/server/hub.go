package server

import (
	"sync"

	"github.com/DomeenoH/dual/internal/step"
)

// EventType names what an Event reports
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessageUpdated EventType = "message.updated"
	EventNotice         EventType = "notice"
	EventStepFinished   EventType = "step.finished"
)

// Event is pushed to every websocket subscriber
type Event struct {
	Type    EventType             `json:"type"`
	Message *step.StreamedMessage `json:"message,omitempty"`
	Notice  *noticeView           `json:"notice,omitempty"`
	Step    *stepView             `json:"step,omitempty"`
}

type noticeView struct {
	Kind    step.NoticeKind `json:"kind"`
	StepID  string          `json:"stepId"`
	Attempt int             `json:"attempt"`
	Error   string          `json:"error,omitempty"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind before events are dropped for it
const subscriberBuffer = 256

// Hub is a message store that broadcasts every change to its subscribers. It also relays step notices.
type Hub struct {
	*step.MemoryStore

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		MemoryStore: step.NewMemoryStore(),
		subscribers: make(map[chan Event]struct{}),
	}
}

func (h *Hub) Create(role, purpose string) (string, error) {
	id, err := h.MemoryStore.Create(role, purpose)
	if err != nil {
		return "", err
	}
	h.publishMessage(EventMessageCreated, id)
	return id, nil
}

func (h *Hub) Update(id string, update step.MessageUpdate) error {
	if err := h.MemoryStore.Update(id, update); err != nil {
		return err
	}
	h.publishMessage(EventMessageUpdated, id)
	return nil
}

func (h *Hub) Notify(n step.Notice) {
	view := &noticeView{Kind: n.Kind, StepID: n.StepID, Attempt: n.Attempt}
	if n.Err != nil {
		view.Error = n.Err.Error()
	}
	h.Publish(Event{Type: EventNotice, Notice: view})
}

func (h *Hub) publishMessage(t EventType, id string) {
	msg, ok := h.Get(id)
	if !ok {
		return
	}
	h.Publish(Event{Type: t, Message: &msg})
}

// Subscribe returns a channel of future events and a function that ends the subscription
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber without blocking
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
