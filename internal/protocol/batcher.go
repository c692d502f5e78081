package protocol

import (
	"encoding/json"
	"sync"
)

// Priority levels for batching
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

// PriorityOf returns the priority a message is sent with: errors first,
// frames last.
func PriorityOf(t MessageType) Priority {
	switch t {
	case MsgError:
		return PriorityHigh
	case MsgFrame:
		return PriorityLow
	}
	return PriorityMedium
}

// Outbox queues outgoing messages for one connection. Only the newest
// frame is kept, so a slow renderer skips frames instead of falling behind.
type Outbox struct {
	pending [PriorityLow][]*Message
	frame   *Message
	dropped int
	mu      sync.Mutex
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Queue adds msg to the outbox.
func (b *Outbox) Queue(msg *Message) {
	if msg == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p := PriorityOf(msg.Type)
	if p == PriorityLow {
		if b.frame != nil {
			b.dropped++
		}
		b.frame = msg
		return
	}
	b.pending[p] = append(b.pending[p], msg)
}

// IsEmpty returns true if nothing is queued.
func (b *Outbox) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame == nil && len(b.pending[PriorityHigh]) == 0 && len(b.pending[PriorityMedium]) == 0
}

// Dropped counts frames replaced before they were sent.
func (b *Outbox) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Flush returns the queued messages in priority order, preserving order
// within a priority, and empties the outbox. Returns nil if nothing is
// queued.
func (b *Outbox) Flush() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.pending[PriorityHigh]) + len(b.pending[PriorityMedium])
	if b.frame != nil {
		n++
	}
	if n == 0 {
		return nil
	}

	result := make([]*Message, 0, n)
	for p := PriorityHigh; p < PriorityLow; p++ {
		result = append(result, b.pending[p]...)
		b.pending[p] = nil
	}
	if b.frame != nil {
		result = append(result, b.frame)
		b.frame = nil
	}
	return result
}

// FlushJSON returns the batch as a JSON array or single message.
// Returns nil if nothing is queued.
func (b *Outbox) FlushJSON() ([]byte, error) {
	messages := b.Flush()
	if len(messages) == 0 {
		return nil, nil
	}

	if len(messages) == 1 {
		return messages[0].Encode()
	}

	return json.Marshal(messages)
}
