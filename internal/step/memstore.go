package step

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps messages in memory in creation order
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	messages map[string]*StreamedMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*StreamedMessage)}
}

func (s *MemoryStore) Create(role, purpose string) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[id] = &StreamedMessage{ID: id, Role: role, Purpose: purpose, Status: StatusStreaming}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryStore) Update(id string, update MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("unknown message %q", id)
	}
	if msg.Status != StatusStreaming {
		return fmt.Errorf("message %q is already %s", id, msg.Status)
	}
	msg.Text = update.Text
	msg.Thoughts = update.Thoughts
	msg.Elapsed = update.Elapsed
	if update.Status != "" {
		msg.Status = update.Status
	}
	return nil
}

// Get returns a copy of the message with the given id
func (s *MemoryStore) Get(id string) (StreamedMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return StreamedMessage{}, false
	}
	return *msg, true
}

// Messages returns copies of all messages in creation order
func (s *MemoryStore) Messages() []StreamedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StreamedMessage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.messages[id])
	}
	return out
}
