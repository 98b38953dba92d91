package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by a closed MemoryBackend.
var ErrClosed = errors.New("mq: backend closed")

// MemoryBackend is an in-process Backend. Each channel is a buffered queue
// shared by its subscribers; a nacked message is put back on the queue.
type MemoryBackend struct {
	mu       sync.Mutex
	queues   map[string]chan Message
	buffer   int
	closed   chan struct{}
	closeOne sync.Once
}

func NewMemoryBackend(buffer int) *MemoryBackend {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		buffer: buffer,
		closed: make(chan struct{}),
	}
}

func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	msg := Message{
		ID:         uuid.NewString(),
		Data:       append([]byte(nil), data...),
		Attributes: copyAttributes(attrs),
	}
	select {
	case <-m.closed:
		return "", ErrClosed
	default:
	}
	select {
	case m.queue(channel) <- msg:
		return msg.ID, nil
	case <-m.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages until ctx ends or the backend is closed.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	queue := m.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case msg := <-queue:
			if err := handler(ctx, msg); err != nil {
				go func() {
					select {
					case queue <- msg:
					case <-m.closed:
					}
				}()
			}
		}
	}
}

func (m *MemoryBackend) Close() error {
	m.closeOne.Do(func() { close(m.closed) })
	return nil
}

func (m *MemoryBackend) queue(channel string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, m.buffer)
		m.queues[channel] = q
	}
	return q
}

func copyAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
