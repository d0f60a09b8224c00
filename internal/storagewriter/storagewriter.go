// Package storagewriter implements the Storage Writer (section 4.3):
// consuming the orchestrator's durable-message topic and performing a
// multi-tier, idempotent write (hot cache, realtime store, relational
// archive), advancing per-user sync cursors, cleaning the WAL, and
// publishing a persistence ACK, tolerating at-least-once redelivery.
package storagewriter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/message"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config configures the writer's topics, hot-cache window, and
// idempotency tracking.
type Config struct {
	Topic          string        `env:"STORAGEWRITER_TOPIC" env-default:"flare.im.message.created"`
	Group          string        `env:"STORAGEWRITER_GROUP" env-default:"storage-writer"`
	DLQTopic       string        `env:"STORAGEWRITER_DLQ_TOPIC" env-default:"flare.im.message.created.dlq"`
	AckTopic       string        `env:"STORAGEWRITER_ACK_TOPIC" env-default:"messages.persisted"`
	HotCacheTTL    time.Duration `env:"STORAGEWRITER_HOT_CACHE_TTL" env-default:"10m"`
	IdempotencyTTL time.Duration `env:"STORAGEWRITER_IDEMPOTENCY_TTL" env-default:"168h"`
	MongoURI       string        `env:"STORAGEWRITER_MONGO_URI" env-required:"true"`
	MongoDB        string        `env:"STORAGEWRITER_MONGO_DB" env-default:"messaging"`
	MongoColl      string        `env:"STORAGEWRITER_MONGO_COLLECTION" env-default:"messages"`
}

// persistAck is the payload published to AckTopic once a record clears
// (or is found to already have cleared) the storage pipeline.
type persistAck struct {
	ServerID       string    `json:"server_id"`
	ConversationID string    `json:"conversation_id"`
	IngestionTS    time.Time `json:"ingestion_ts"`
	PersistedTS    time.Time `json:"persisted_ts"`
	Deduplicated   bool      `json:"deduplicated"`
}

// Writer consumes the storage topic and persists each message through
// the hot cache, realtime document store, and relational archive tiers.
// The realtime store talks to mongo-driver directly (see DESIGN.md for
// why the generic document-store interface was bypassed), keyed by
// server_msg_id so redelivery upserts rather than duplicates.
//
// Per-user read/deleted/burned state (the spec's message_state table)
// is out of scope here: it belongs to the read-path service that owns
// per-user visibility, not to the write path this package implements.
// See DESIGN.md.
type Writer struct {
	cfg          Config
	consumer     messaging.Consumer
	dlq          messaging.Producer
	ackProducer  messaging.Producer
	hot          cache.Cache
	client       *mongo.Client
	coll         *mongo.Collection
	archive      *Archiver
	conversation ports.Conversation
}

// New connects to Mongo and the archive store, and opens the storage-topic
// consumer, DLQ producer, and persistence-ack producer.
func New(cfg Config, broker messaging.Broker, hot cache.Cache, conv ports.Conversation, archive *Archiver) (*Writer, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to realtime store")
	}
	if err := client.Ping(context.Background(), nil); err != nil {
		return nil, errors.Wrap(err, "failed to ping realtime store")
	}

	consumer, err := broker.Consumer(cfg.Topic, cfg.Group)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open storage topic consumer")
	}
	dlq, err := broker.Producer(cfg.DLQTopic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dead-letter producer")
	}
	ackProducer, err := broker.Producer(cfg.AckTopic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open persistence-ack producer")
	}

	coll := client.Database(cfg.MongoDB).Collection(cfg.MongoColl)
	return &Writer{
		cfg:          cfg,
		consumer:     consumer,
		dlq:          dlq,
		ackProducer:  ackProducer,
		hot:          hot,
		client:       client,
		coll:         coll,
		archive:      archive,
		conversation: conv,
	}, nil
}

// Run blocks consuming the storage topic until ctx is canceled.
func (w *Writer) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *Writer) handle(ctx context.Context, raw *messaging.Message) error {
	var msg message.Message
	if err := json.Unmarshal(raw.Payload, &msg); err != nil {
		logger.L().ErrorContext(ctx, "malformed storage message, routing to dlq", "error", err)
		return w.deadLetter(ctx, raw, err)
	}

	deduplicated, err := w.alreadyPersisted(ctx, msg.ServerID)
	if err != nil {
		return errors.Wrap(err, "failed to check idempotency set")
	}
	// An edit, recall or hard delete re-publishes an already-persisted
	// message under its original server id with a new Operations entry;
	// it must still be written so the archive records the transition.
	if deduplicated && len(msg.Operations) == 0 {
		logger.L().InfoContext(ctx, "skipping already-persisted message", "server_id", msg.ServerID)
		return w.publishAck(ctx, &msg, true)
	}

	// Write ordering is hot -> realtime -> archive; a failure at any tier
	// short-circuits so the record is retried on redelivery. The
	// idempotency set is only marked once the archive write commits.
	if err := w.writeHot(ctx, &msg); err != nil {
		// The hot cache is a read-path accelerator, not the source of
		// truth; its failure never blocks the commit the consumer offset
		// depends on.
		logger.L().WarnContext(ctx, "hot cache write failed", "server_id", msg.ServerID, "error", err)
	}

	if err := w.writeRealtime(ctx, &msg); err != nil {
		logger.L().ErrorContext(ctx, "realtime write failed", "server_id", msg.ServerID, "error", err)
		return err
	}

	if err := w.archive.Archive(ctx, &msg); err != nil {
		logger.L().ErrorContext(ctx, "archive write failed", "server_id", msg.ServerID, "error", err)
		return err
	}

	if err := w.markPersisted(ctx, msg.ServerID); err != nil {
		return errors.Wrap(err, "failed to mark message as persisted")
	}

	if err := w.advanceCursors(ctx, &msg); err != nil {
		logger.L().ErrorContext(ctx, "cursor advancement failed", "server_id", msg.ServerID, "error", err)
		return err
	}

	if err := w.hot.Delete(ctx, walKey(msg.ServerID)); err != nil {
		logger.L().WarnContext(ctx, "failed to clear wal entry", "server_id", msg.ServerID, "error", err)
	}

	return w.publishAck(ctx, &msg, false)
}

// advanceCursors moves each recipient's per-conversation sync cursor
// forward so followers can page correctly. The sender already observed
// its own send, so it is excluded, mirroring the unread-count exclusion
// the orchestrator already applies.
func (w *Writer) advanceCursors(ctx context.Context, msg *message.Message) error {
	for _, userID := range msg.ReceiverIDs {
		if userID == msg.SenderID {
			continue
		}
		if err := w.conversation.UpdateCursor(ctx, userID, msg.ConversationID, msg.Timestamp); err != nil {
			return errors.Wrap(err, "failed to advance sync cursor")
		}
	}
	return nil
}

func idempotencyKey(serverID string) string { return fmt.Sprintf("storage:idempotency:%s", serverID) }

func walKey(serverID string) string { return fmt.Sprintf("wal:%s", serverID) }

func (w *Writer) alreadyPersisted(ctx context.Context, serverID string) (bool, error) {
	var marker string
	err := w.hot.Get(ctx, idempotencyKey(serverID), &marker)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errors.CodeNotFound) {
		return false, nil
	}
	return false, err
}

func (w *Writer) markPersisted(ctx context.Context, serverID string) error {
	return w.hot.Set(ctx, idempotencyKey(serverID), "1", w.cfg.IdempotencyTTL)
}

func (w *Writer) publishAck(ctx context.Context, msg *message.Message, deduplicated bool) error {
	ack := persistAck{
		ServerID:       msg.ServerID,
		ConversationID: msg.ConversationID,
		IngestionTS:    msg.Timestamp,
		PersistedTS:    time.Now(),
		Deduplicated:   deduplicated,
	}
	body, err := json.Marshal(ack)
	if err != nil {
		return errors.Wrap(err, "failed to encode persistence ack")
	}
	return w.ackProducer.Publish(ctx, &messaging.Message{Topic: w.cfg.AckTopic, Key: []byte(msg.ServerID), Payload: body})
}

func (w *Writer) writeRealtime(ctx context.Context, msg *message.Message) error {
	body, err := bson.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message for realtime store")
	}
	var doc bson.M
	if err := bson.Unmarshal(body, &doc); err != nil {
		return errors.Wrap(err, "failed to decode message document")
	}
	doc["_id"] = msg.ServerID

	_, err = w.coll.ReplaceOne(ctx, bson.M{"_id": msg.ServerID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "failed to upsert message into realtime store")
	}
	return nil
}

func hotKey(conversationID string, seq int64) string {
	return fmt.Sprintf("hot:%s:%d", conversationID, seq)
}

func (w *Writer) writeHot(ctx context.Context, msg *message.Message) error {
	return w.hot.Set(ctx, hotKey(msg.ConversationID, msg.Seq), msg, w.cfg.HotCacheTTL)
}

func (w *Writer) deadLetter(ctx context.Context, raw *messaging.Message, cause error) error {
	headers := map[string]string{"error": cause.Error()}
	for k, v := range raw.Headers {
		headers[k] = v
	}
	return w.dlq.Publish(ctx, &messaging.Message{ID: raw.ID, Key: raw.Key, Payload: raw.Payload, Headers: headers})
}

// Close releases the writer's broker, archive, and database connections.
func (w *Writer) Close() error {
	if err := w.consumer.Close(); err != nil {
		return err
	}
	if err := w.dlq.Close(); err != nil {
		return err
	}
	if err := w.ackProducer.Close(); err != nil {
		return err
	}
	if err := w.archive.Close(); err != nil {
		return err
	}
	return w.client.Disconnect(context.Background())
}
