package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDeliversInOrder(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: "notification", Body: []byte("1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "notification", Body: []byte("2")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, want := range []string{"1", "2"} {
		select {
		case msg := <-msgs:
			assert.Equal(t, want, string(msg.Body))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "x"}), context.Canceled)
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestSerializeKeepsSeparatorInBody(t *testing.T) {
	in := Message{Type: "notification", Body: []byte(`{"title":"a|b"}`)}

	raw, err := serialize(in)
	require.NoError(t, err)
	out, err := deserialize(raw)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}

func TestRedisQueueKeys(t *testing.T) {
	assert.Equal(t, DefaultKey+":dead", NewRedisQueue(nil, "", nil).DeadKey())
	assert.Equal(t, "custom:dead", NewRedisQueue(nil, "custom", nil).DeadKey())
}
