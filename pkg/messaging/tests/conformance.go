// Package tests holds a broker-agnostic conformance suite shared by every
// messaging adapter's own tests.
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/stretchr/testify/require"
)

// RunBrokerTests exercises the basic publish/consume contract against any
// messaging.Broker implementation.
func RunBrokerTests(t *testing.T, broker messaging.Broker) {
	t.Helper()

	t.Run("publish and consume", func(t *testing.T) {
		topic := "conformance.publish-consume"
		consumer, err := broker.Consumer(topic, "conformance")
		require.NoError(t, err)
		defer consumer.Close()

		producer, err := broker.Producer(topic)
		require.NoError(t, err)
		defer producer.Close()

		received := make(chan *messaging.Message, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		go func() {
			_ = consumer.Consume(ctx, func(_ context.Context, msg *messaging.Message) error {
				received <- msg
				cancel()
				return nil
			})
		}()

		// Give the consumer goroutine a moment to subscribe before publishing.
		time.Sleep(10 * time.Millisecond)

		err = producer.Publish(context.Background(), &messaging.Message{
			Topic:   topic,
			Payload: []byte(`{"hello":"world"}`),
		})
		require.NoError(t, err)

		select {
		case msg := <-received:
			require.Equal(t, []byte(`{"hello":"world"}`), msg.Payload)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	})

	t.Run("publish batch", func(t *testing.T) {
		topic := "conformance.publish-batch"
		consumer, err := broker.Consumer(topic, "conformance")
		require.NoError(t, err)
		defer consumer.Close()

		producer, err := broker.Producer(topic)
		require.NoError(t, err)
		defer producer.Close()

		var mu sync.Mutex
		var got []string
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		go func() {
			_ = consumer.Consume(ctx, func(_ context.Context, msg *messaging.Message) error {
				mu.Lock()
				got = append(got, string(msg.Payload))
				done := len(got) == 3
				mu.Unlock()
				if done {
					cancel()
				}
				return nil
			})
		}()

		time.Sleep(10 * time.Millisecond)

		err = producer.PublishBatch(context.Background(), []*messaging.Message{
			{Topic: topic, Payload: []byte("a")},
			{Topic: topic, Payload: []byte("b")},
			{Topic: topic, Payload: []byte("c")},
		})
		require.NoError(t, err)

		<-ctx.Done()
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got, 3)
	})

	t.Run("healthy", func(t *testing.T) {
		require.True(t, broker.Healthy(context.Background()))
	})
}
