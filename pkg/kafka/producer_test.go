package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishEntityEvents(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("keys messages by entity id", func(t *testing.T) {
		w := &fakeWriter{}
		p := NewProducerWithWriter(w, "crowdbiz.entities", logger)

		err := p.PublishEntityEvents(context.Background(), []*EntityEvent{
			{EventType: "person.created", EntityID: "p-1", EntityType: "person", BatchID: "b-1"},
			{EventType: "role.closed", EntityID: "r-1", EntityType: "role", BatchID: "b-1"},
		})
		require.NoError(t, err)
		require.Len(t, w.messages, 2)

		msg := w.messages[0]
		assert.Equal(t, "crowdbiz.entities", msg.Topic)
		assert.Equal(t, "p-1", string(msg.Key))
		assert.Equal(t, "person.created", header(msg, "event_type"))
		assert.Equal(t, "b-1", header(msg, "batch_id"))

		var decoded EntityEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, "person", decoded.EntityType)
		assert.False(t, decoded.Timestamp.IsZero())
	})

	t.Run("no events is a no-op", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("should not be called")}
		p := NewProducerWithWriter(w, "t", logger)
		assert.NoError(t, p.PublishEntityEvents(context.Background(), nil))
	})

	t.Run("returns write errors", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker unavailable")}
		p := NewProducerWithWriter(w, "t", logger)
		err := p.PublishEntityEvent(context.Background(), &EntityEvent{EventType: "x", EntityID: "1"})
		assert.EqualError(t, err, "broker unavailable")
	})

	t.Run("close closes the writer", func(t *testing.T) {
		w := &fakeWriter{}
		require.NoError(t, NewProducerWithWriter(w, "t", logger).Close())
		assert.True(t, w.closed)
	})
}
