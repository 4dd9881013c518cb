package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/kafka"
)

func TestLocalBus_DispatchesToSubscribers(t *testing.T) {
	bus := NewLocalBus(newTestLogger())

	var a, b atomic.Int32
	bus.Subscribe("t1", func(context.Context, *pkgkafka.Event) error { a.Add(1); return nil })
	bus.Subscribe("t1", func(context.Context, *pkgkafka.Event) error { b.Add(1); return errors.New("ignored") })

	require.NoError(t, bus.Publish(context.Background(), "t1", &pkgkafka.Event{EventID: "e1"}))
	require.NoError(t, bus.Publish(context.Background(), "other", &pkgkafka.Event{EventID: "e2"}))
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load(), "a failing handler does not stop the others")
}

func TestLocalBus_HandlerOutlivesRequestContext(t *testing.T) {
	bus := NewLocalBus(newTestLogger())

	var ctxErr atomic.Value
	bus.Subscribe("t", func(ctx context.Context, _ *pkgkafka.Event) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, "t", &pkgkafka.Event{}))
	cancel()
	require.NoError(t, bus.Close())

	assert.Equal(t, true, ctxErr.Load())
}

func TestLocalBus_PublishAfterClose(t *testing.T) {
	bus := NewLocalBus(newTestLogger())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "t", &pkgkafka.Event{})
	assert.ErrorIs(t, err, ErrBusClosed)
}
