package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	pkgkafka "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/kafka"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// LocalBus is an in-process Publisher used when Kafka is disabled. Events
// are dispatched to subscribed handlers on a background goroutine so the
// publishing request never waits on them.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]pkgkafka.Handler
	wg       sync.WaitGroup
	closed   bool
	logger   *slog.Logger
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{
		handlers: make(map[string][]pkgkafka.Handler),
		logger:   logger,
	}
}

// Subscribe registers h for events published to topic.
func (b *LocalBus) Subscribe(topic string, h pkgkafka.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish dispatches event to the topic's handlers. Events on topics with
// no subscribers are dropped.
func (b *LocalBus) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	handlers := b.handlers[topic]
	if len(handlers) == 0 {
		return nil
	}

	// Detach from the request so handlers outlive it, keeping its values.
	hctx := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, h := range handlers {
			if err := h(hctx, event); err != nil {
				b.logger.ErrorContext(hctx, "local event handler failed",
					slog.String("topic", topic),
					slog.String("event_id", event.EventID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	return nil
}

// Close rejects further events and waits for in-flight handlers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
