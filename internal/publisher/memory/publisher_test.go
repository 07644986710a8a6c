package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New("neo-archived", nil)
	id, err := pub.Publish(context.Background(), "", map[string]string{"id": "2000433"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = pub.Publish(context.Background(), "other", "second")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "neo-archived", msgs[0].Topic)
	require.JSONEq(t, `{"id":"2000433"}`, string(msgs[0].Data))
	require.Equal(t, "other", msgs[1].Topic)
	require.Equal(t, "second", msgs[1].Payload)
	require.Equal(t, "memory-2", msgs[1].ID)

	msgs[0].Topic = "changed"
	require.Equal(t, "neo-archived", pub.Messages()[0].Topic)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New("neo-archived", nil)
	_, err := pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, pub.Messages())
}

func TestPublisherLogsEachNotice(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	pub := New("neo-archived", zap.New(core))

	_, err := pub.Publish(context.Background(), "", map[string]string{"id": "1"})
	require.NoError(t, err)

	entries := logs.FilterMessage("archive notice recorded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "neo-archived", fields["topic"])
	require.Equal(t, "memory-1", fields["message_id"])
}
