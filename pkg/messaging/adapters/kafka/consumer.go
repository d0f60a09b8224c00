package kafka

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
)

// consumer is a Kafka consumer-group implementation.
type consumer struct {
	topic string
	group string
	cg    sarama.ConsumerGroup

	mu     sync.Mutex
	closed bool
}

// Consume joins the consumer group and dispatches records to handler until
// ctx is canceled or the group session errors out. Rebalances are
// transparent to the caller: sarama calls Setup/Cleanup/ConsumeClaim again
// on every rebalance and Consume simply loops.
func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	groupHandler := &consumerGroupHandler{handler: handler, topic: c.topic}

	go func() {
		for err := range c.cg.Errors() {
			_ = err // drained so sarama never blocks; these errors are discarded
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.cg.Consume(ctx, []string{c.topic}, groupHandler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return messaging.ErrConsumeFailed(err)
		}
	}
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cg.Close()
}

// consumerGroupHandler adapts messaging.MessageHandler to sarama's
// ConsumerGroupHandler contract.
type consumerGroupHandler struct {
	handler messaging.MessageHandler
	topic   string
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := &messaging.Message{
				Topic:     msg.Topic,
				Key:       msg.Key,
				Payload:   msg.Value,
				Timestamp: msg.Timestamp,
				Headers:   headersToMap(msg.Headers),
				Metadata: messaging.MessageMetadata{
					Partition: msg.Partition,
					Offset:    msg.Offset,
					Raw:       msg,
				},
			}
			for _, hd := range msg.Headers {
				if string(hd.Key) == "message-id" {
					m.ID = string(hd.Value)
				}
			}

			if err := h.handler(sess.Context(), m); err != nil {
				// Leave the offset uncommitted so the broker redelivers this
				// record on the next rebalance; the caller routes persistent
				// failures to a dead-letter topic itself.
				return err
			}
			sess.MarkMessage(msg, "")

		case <-sess.Context().Done():
			return nil
		}
	}
}

func headersToMap(hdrs []*sarama.RecordHeader) map[string]string {
	if len(hdrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(hdrs))
	for _, h := range hdrs {
		m[string(h.Key)] = string(h.Value)
	}
	return m
}
