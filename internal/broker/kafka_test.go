package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader hands out a fixed list of messages and then blocks until ctx ends
type scriptedReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	fetched   int
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetched < len(r.messages) {
		msg := r.messages[r.fetched]
		r.fetched++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func newTestConsumer(reader messageReader) *Consumer {
	c := newConsumer(reader, "stock-receipts")
	c.minBackoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond
	return c
}

func TestConsumerRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &scriptedReader{messages: []kafka.Message{{Offset: 5}, {Offset: 6}}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []int64
	failures := 2
	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		handled = append(handled, msg.Offset)
		if msg.Offset == 5 && failures > 0 {
			failures--
			return errors.New("database unavailable")
		}
		if msg.Offset == 6 {
			cancel()
		}
		return nil
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []int64{5, 5, 5, 6}, handled)
	assert.Equal(t, []int64{5, 6}, reader.committed)
}

func TestConsumerStopsWithoutCommittingUnhandledMessage(t *testing.T) {
	reader := &scriptedReader{messages: []kafka.Message{{Offset: 5}, {Offset: 6}}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		require.Equal(t, int64(5), msg.Offset, "a later message must not be handled while 5 fails")
		if attempts++; attempts == 3 {
			cancel()
		}
		return errors.New("database unavailable")
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, reader.committed)
	assert.Equal(t, 1, reader.fetched)
}
