package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/webhook"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages then reports EOF
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func message(t *testing.T, offset int64, p webhook.Payload) kafka.Message {
	t.Helper()
	value, err := json.Marshal(p)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker hiccup")},
		queue: []kafka.Message{
			message(t, 1, webhook.Payload{MessageID: "a", From: "1", To: "2", Event: "MoMessage", Content: webhook.Content{Text: "hi"}}),
			message(t, 2, webhook.Payload{MessageID: "b", From: "1", To: "2", Event: "MoMessage"}),
			{Offset: 3, Value: []byte("garbage")},
			message(t, 4, webhook.Payload{MessageID: "", From: "1", To: "2"}),
		},
	}

	var handled []string
	c := newConsumer(r, "events", func(ctx context.Context, event *core.InboundEvent) error {
		handled = append(handled, event.ID)
		if event.ID == "b" {
			return errors.New("store unavailable")
		}
		return nil
	})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, handled)
	assert.Equal(t, []int64{1, 3, 4}, r.committed, "failed message stays uncommitted")
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeReader{fetchErrs: []error{context.Canceled}}
	c := newConsumer(r, "events", func(ctx context.Context, event *core.InboundEvent) error { return nil })

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "events")

	event := &core.InboundEvent{ID: "m1", From: "1", To: "2", Text: "hi", Kind: core.EventInboundMessage}
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("2"), w.msgs[0].Key)

	payload, err := DecodeJSON[webhook.Payload](w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, "hi", payload.Text())

	w.err = errors.New("no leader")
	assert.Error(t, p.Publish(context.Background(), event))
}
