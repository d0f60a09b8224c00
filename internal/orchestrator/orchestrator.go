// Package orchestrator implements the Message Orchestrator (section
// 4.2): validation/enrichment of a client send, sequence assignment,
// the write-ahead log a sync send waits on, hook invocation, and
// publishing to the Storage Writer and Push Server via Kafka.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/conversation"
	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/hook"
	"github.com/chris-alexander-pop/system-design-library/internal/message"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/oklog/ulid/v2"
)

// Config configures the orchestrator's topics and the write-ahead log's
// retention window.
type Config struct {
	StorageTopic string        `env:"ORCHESTRATOR_STORAGE_TOPIC" env-default:"flare.im.message.created"`
	PushTopic    string        `env:"ORCHESTRATOR_PUSH_TOPIC" env-default:"flare.im.push.tasks"`
	WALTTL       time.Duration `env:"ORCHESTRATOR_WAL_TTL" env-default:"24h"`
}

// Service implements gateway.Sink.
type Service struct {
	cfg          Config
	seq          cache.Cache
	wal          cache.Cache
	hooks        *hook.Chain
	conversation ports.Conversation
	media        ports.Media
	storage      messaging.Producer
	push         messaging.Producer
}

// New wires an orchestrator Service. seqAndWAL backs both sequence
// counters and the WAL; in production this is the same Redis cache
// instance, since both are short-lived, high-churn keyspaces.
func New(cfg Config, seqAndWAL cache.Cache, hooks *hook.Chain, conv ports.Conversation, media ports.Media, broker messaging.Broker) (*Service, error) {
	if cfg.WALTTL <= 0 {
		cfg.WALTTL = 24 * time.Hour
	}
	storage, err := broker.Producer(cfg.StorageTopic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open storage producer")
	}
	push, err := broker.Producer(cfg.PushTopic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open push producer")
	}
	return &Service{cfg: cfg, seq: seqAndWAL, wal: seqAndWAL, hooks: hooks, conversation: conv, media: media, storage: storage, push: push}, nil
}

func seqKey(conversationID string) string { return fmt.Sprintf("seq:%s", conversationID) }
func walKey(serverMsgID string) string    { return fmt.Sprintf("wal:%s", serverMsgID) }

// SendMessage validates, enriches, and durably queues one client send,
// returning the ack the Gateway forwards back to the originating socket.
func (s *Service) SendMessage(ctx context.Context, senderID, tenant string, cmd *frame.MessageCommand) (*frame.SendEnvelopeAck, error) {
	var req sendRequest
	if err := json.Unmarshal(cmd.Payload, &req); err != nil {
		return nil, errors.InvalidArgument("malformed send payload", err)
	}

	if req.Content.Type == message.ContentOperation {
		return s.applyOperation(ctx, senderID, tenant, &req)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		if len(req.ReceiverIDs) != 1 {
			return nil, errors.InvalidArgument("conversation_id required for non single-chat sends", nil)
		}
		conversationID = conversation.SingleChatID(senderID, req.ReceiverIDs[0])
		participants := []ports.Participant{{UserID: senderID}, {UserID: req.ReceiverIDs[0]}}
		if err := s.conversation.EnsureConversation(ctx, conversationID, ports.ConversationSingle, "", participants, tenant); err != nil {
			return nil, errors.Wrap(err, "failed to ensure conversation")
		}
	}

	seq, err := s.seq.Incr(ctx, seqKey(conversationID), 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to assign sequence number")
	}

	msg := &message.Message{
		ServerID:       ulid.Make().String(),
		ClientMsgID:    req.ClientMsgID,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderType:     message.SenderUser,
		ReceiverIDs:    req.ReceiverIDs,
		Content:        req.Content,
		Timestamp:      time.Now(),
		Seq:            seq,
		MessageType:    req.Content.Type,
		Tenant:         tenant,
		Tags:           req.Tags,
	}

	if len(req.Attachments) > 0 {
		refs := make([]ports.AttachmentRef, len(req.Attachments))
		for i, a := range req.Attachments {
			refs[i] = ports.AttachmentRef{AttachmentID: a.AttachmentID}
		}
		resolved, err := s.media.ResolveAttachments(ctx, refs)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve attachments")
		}
		msg.Attachments = make([]message.MediaRef, len(resolved))
		for i, r := range resolved {
			msg.Attachments[i] = message.MediaRef{AttachmentID: r.AttachmentID, MimeType: r.MimeType, SizeBytes: r.SizeBytes, URL: r.URL}
		}
	}

	env := &ports.HookEnvelope{Message: msg, Headers: map[string]string{}, Metadata: map[string]string{}}
	if err := s.hooks.Run(ctx, ports.PreSend, env); err != nil {
		return nil, err
	}

	if msg.IsPersistable() {
		if err := msg.Persist(); err != nil {
			return nil, err
		}
		if err := s.wal.Set(ctx, walKey(msg.ServerID), msg, s.cfg.WALTTL); err != nil {
			return nil, errors.Wrap(err, "failed to write-ahead log message")
		}
		if err := s.conversation.UpdateLastMessage(ctx, conversationID, msg.ServerID, seq); err != nil {
			return nil, errors.Wrap(err, "failed to update conversation pointer")
		}
		if err := s.conversation.BatchUpdateUnreadCount(ctx, conversationID, seq, senderID); err != nil {
			return nil, errors.Wrap(err, "failed to update unread counts")
		}
		if err := s.publish(ctx, s.storage, msg); err != nil {
			return nil, err
		}
	}

	if err := s.publish(ctx, s.push, msg); err != nil {
		return nil, err
	}

	s.hooks.RunAsync(ctx, ports.PostSend, env)

	return &frame.SendEnvelopeAck{ServerMsgID: msg.ServerID, Status: frame.StatusSuccess, Seq: seq}, nil
}

// applyOperation loads the target message from the write-ahead log and
// applies an edit/recall/delete, re-publishing the mutated message.
func (s *Service) applyOperation(ctx context.Context, actorID, tenant string, req *sendRequest) (*frame.SendEnvelopeAck, error) {
	op := req.Content.Op
	if op == nil {
		return nil, errors.InvalidArgument("operation content missing op", nil)
	}

	var msg message.Message
	if err := s.wal.Get(ctx, walKey(op.TargetID), &msg); err != nil {
		return nil, errors.NotFound("target message not found in write-ahead log", err)
	}

	now := time.Now()
	var point ports.HookPoint
	switch op.Type {
	case message.OpEdit:
		if err := msg.Edit(*op, now); err != nil {
			return nil, err
		}
		point = ports.PreSend
	case message.OpRecall:
		if err := msg.Recall(actorID, now); err != nil {
			return nil, err
		}
		point = ports.Recall
	case message.OpDeleteHard:
		if err := msg.DeleteHard(actorID, now); err != nil {
			return nil, err
		}
		point = ports.Recall
	case message.OpDeleteSoft:
		msg.DeleteSoft(actorID)
		point = ports.Recall
	default:
		return nil, errors.InvalidArgument("unknown operation type", nil)
	}

	env := &ports.HookEnvelope{Message: &msg, Headers: map[string]string{}, Metadata: map[string]string{}}
	if err := s.hooks.Run(ctx, point, env); err != nil {
		return nil, err
	}

	if err := s.wal.Set(ctx, walKey(msg.ServerID), &msg, s.cfg.WALTTL); err != nil {
		return nil, errors.Wrap(err, "failed to update write-ahead log entry")
	}
	if err := s.publish(ctx, s.storage, &msg); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, s.push, &msg); err != nil {
		return nil, err
	}

	s.hooks.RunAsync(ctx, ports.PostSend, env)

	return &frame.SendEnvelopeAck{ServerMsgID: msg.ServerID, Status: frame.StatusSuccess, Seq: msg.Seq}, nil
}

func (s *Service) publish(ctx context.Context, producer messaging.Producer, msg *message.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message for publish")
	}
	return producer.Publish(ctx, &messaging.Message{
		ID:      msg.ServerID,
		Key:     []byte(msg.ConversationID),
		Payload: body,
		Headers: map[string]string{"tenant": msg.Tenant},
	})
}

// Close releases the orchestrator's producer connections.
func (s *Service) Close() error {
	if err := s.storage.Close(); err != nil {
		return err
	}
	return s.push.Close()
}
