package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	ps := NewPubSub(8)
	ctx := context.Background()

	ch1, cancel1, err := ps.Subscribe(ctx, "status")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := ps.Subscribe(ctx, "status")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "status", "hello"))
	for _, ch := range []<-chan *LocalMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "status", msg.Channel)
			assert.Equal(t, "hello", msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	// After cancel, the subscriber channel closes and stops receiving.
	cancel2()
	_, open := <-ch2
	assert.False(t, open)

	require.NoError(t, ps.Publish(ctx, "status", "again"))
	select {
	case msg := <-ch1:
		assert.Equal(t, "again", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishToUnsubscribedChannel(t *testing.T) {
	ps := NewPubSub(8)
	assert.NoError(t, ps.Publish(context.Background(), "nobody", "x"))
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "busy")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "busy", "first"))
	require.NoError(t, ps.Publish(ctx, "busy", "dropped"))

	msg := <-ch
	assert.Equal(t, "first", msg.Payload)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected message %q", extra.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}
