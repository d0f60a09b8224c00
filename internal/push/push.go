// Package push implements the Push Server (section 4.4): consuming the
// orchestrator's push topic, resolving delivery targets via Online/Route,
// dispatching to the owning Access Gateway (locally or cross-region),
// and tracking delivery acks through to retry or degrade.
package push

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/hook"
	"github.com/chris-alexander-pop/system-design-library/internal/message"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/internal/push/ackstore"
	"github.com/chris-alexander-pop/system-design-library/internal/push/flowcontrol"
	"github.com/chris-alexander-pop/system-design-library/internal/push/gatewayrouter"
	"github.com/chris-alexander-pop/system-design-library/internal/push/onlinecache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
)

// Config configures the push pipeline's consumer and default fanout
// strategy.
type Config struct {
	Topic    string `env:"PUSH_TOPIC" env-default:"flare.im.push.tasks"`
	Group    string `env:"PUSH_GROUP" env-default:"push-server"`
	Strategy string `env:"PUSH_STRATEGY" env-default:"active_devices"`
}

func parseStrategy(s string) ports.PushStrategy {
	switch strings.ToLower(s) {
	case "all_devices":
		return ports.StrategyAllDevices
	case "best_device":
		return ports.StrategyBestDevice
	case "primary_device":
		return ports.StrategyPrimaryDevice
	default:
		return ports.StrategyActiveDevices
	}
}

// importanceFor maps a message's content type onto an ack-timeout tier.
// Typing, system-event and notification content is low importance:
// losing a typing indicator is tolerable. Operations (edit/recall/delete)
// are medium importance. Ordinary content is high importance, since a
// stuck delivery there is user-visible.
func importanceFor(msg *message.Message) ackstore.Importance {
	switch msg.MessageType {
	case message.ContentTyping, message.ContentSystemEvent, message.ContentNotification:
		return ackstore.ImportanceLow
	case message.ContentOperation:
		return ackstore.ImportanceMedium
	default:
		return ackstore.ImportanceHigh
	}
}

// Service implements the push pipeline and the ackstore.Redeliverer /
// ackstore.Degrader / gateway.DeliveryAckSink roles the Access Gateway
// and ack scanner need.
type Service struct {
	cfg      Config
	strategy ports.PushStrategy
	consumer messaging.Consumer
	hooks    *hook.Chain
	route    ports.Route
	online   *onlinecache.Cache
	router   *gatewayrouter.Router
	flow     *flowcontrol.Controller
	acks     *ackstore.Store
}

// New wires a push Service.
func New(cfg Config, broker messaging.Broker, hooks *hook.Chain, route ports.Route, online *onlinecache.Cache, router *gatewayrouter.Router, flow *flowcontrol.Controller, acks *ackstore.Store) (*Service, error) {
	consumer, err := broker.Consumer(cfg.Topic, cfg.Group)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open push topic consumer")
	}
	return &Service{
		cfg:      cfg,
		strategy: parseStrategy(cfg.Strategy),
		consumer: consumer,
		hooks:    hooks,
		route:    route,
		online:   online,
		router:   router,
		flow:     flow,
		acks:     acks,
	}, nil
}

// Run blocks consuming the push topic until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.consumer.Consume(ctx, s.handle)
}

func (s *Service) handle(ctx context.Context, raw *messaging.Message) error {
	var msg message.Message
	if err := json.Unmarshal(raw.Payload, &msg); err != nil {
		logger.L().ErrorContext(ctx, "malformed push message, dropping", "error", err)
		return nil
	}

	if err := s.flow.Check(ctx, msg.ConversationID); err != nil {
		return err
	}

	env := &ports.HookEnvelope{Message: &msg, Headers: map[string]string{}, Metadata: map[string]string{}}
	if err := s.hooks.Run(ctx, ports.Delivery, env); err != nil {
		logger.L().WarnContext(ctx, "delivery hook rejected push", "server_id", msg.ServerID, "error", err)
		return nil
	}

	recipients := make([]string, 0, len(msg.ReceiverIDs))
	for _, receiverID := range msg.ReceiverIDs {
		if receiverID != msg.SenderID {
			recipients = append(recipients, receiverID)
		}
	}

	statuses, err := s.online.BatchGetOnlineStatus(ctx, recipients)
	if err != nil {
		logger.L().WarnContext(ctx, "online status lookup failed, assuming all recipients online", "error", err)
		statuses = nil
	}

	f := toFrame(&msg)
	importance := importanceFor(&msg)

	for _, receiverID := range recipients {
		if statuses != nil {
			if st, ok := statuses[receiverID]; ok && !st.Online {
				continue
			}
		}
		s.deliverToUser(ctx, receiverID, &msg, f, importance)
	}

	s.hooks.RunAsync(ctx, ports.PostSend, env)
	return nil
}

func (s *Service) deliverToUser(ctx context.Context, userID string, msg *message.Message, f *frame.Frame, importance ackstore.Importance) {
	targets, err := s.route.SelectPushTargets(ctx, userID, s.strategy)
	if err != nil {
		logger.L().WarnContext(ctx, "failed to select push targets", "user_id", userID, "error", err)
		return
	}
	if len(targets) == 0 {
		// User has no live session; delivery falls back to the pull-sync
		// path (Conversation.SyncMessages) on next reconnect.
		return
	}

	for _, target := range targets {
		if err := s.router.Deliver(ctx, target, f); err != nil {
			logger.L().WarnContext(ctx, "push delivery failed", "user_id", userID, "gateway_id", target.GatewayID, "error", err)
			continue
		}
		rec := ackstore.Record{
			MessageID:  msg.ServerID,
			UserID:     userID,
			AckType:    "delivery",
			Importance: importance,
			Payload:    f.Message.Payload,
			SentAt:     time.Now(),
		}
		if err := s.acks.Track(ctx, rec); err != nil {
			logger.L().WarnContext(ctx, "failed to track pending ack", "message_id", msg.ServerID, "error", err)
		}
	}
}

func toFrame(msg *message.Message) *frame.Frame {
	body, _ := json.Marshal(msg)
	return &frame.Frame{
		Version: 1,
		Kind:    frame.CommandMessage,
		Message: &frame.MessageCommand{
			Type:      frame.Send,
			MessageID: msg.ServerID,
			Payload:   body,
			Seq:       msg.Seq,
		},
	}
}

// Redeliver re-resolves the user's current targets and re-pushes the
// original frame. Targets are re-resolved rather than cached from the
// first attempt, since the user may have reconnected on a different
// gateway/device between the original send and this retry.
func (s *Service) Redeliver(ctx context.Context, rec ackstore.Record) error {
	targets, err := s.route.SelectPushTargets(ctx, rec.UserID, s.strategy)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.Unavailable("no live session to redeliver to", nil)
	}

	var lastErr error
	delivered := false
	for _, target := range targets {
		f := &frame.Frame{
			Version: 1,
			Kind:    frame.CommandMessage,
			Message: &frame.MessageCommand{
				Type:      frame.Send,
				MessageID: rec.MessageID,
				Payload:   rec.Payload,
			},
		}
		if err := s.router.Deliver(ctx, target, f); err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if !delivered {
		return lastErr
	}
	return nil
}

// Degrade is invoked once a delivery has exhausted its retry budget. It
// does not retry further; the receiver picks the message up on its next
// Conversation.SyncMessages pull.
func (s *Service) Degrade(ctx context.Context, rec ackstore.Record) error {
	logger.L().WarnContext(ctx, "delivery degraded after exhausting retries", "message_id", rec.MessageID, "user_id", rec.UserID)
	return nil
}

// AckDeliveryRequest is the AckDeliveryService.Ack wire type: an Access
// Gateway RPC client bundles the two gateway.DeliveryAckSink arguments
// into one struct since a unary RPC carries a single request value.
type AckDeliveryRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
}

// AckDeliveryResponse is an empty success marker; failures surface as a
// gRPC error status instead of a response field.
type AckDeliveryResponse struct{}

// AckDelivery implements gateway.DeliveryAckSink: the Access Gateway
// calls this when a client acks a server push.
func (s *Service) AckDelivery(ctx context.Context, userID, messageID string) error {
	return s.acks.Ack(ctx, messageID, userID)
}

// Ack adapts AckDelivery to the AckDeliveryService.Ack RPC signature.
func (s *Service) Ack(ctx context.Context, req *AckDeliveryRequest) (*AckDeliveryResponse, error) {
	if err := s.AckDelivery(ctx, req.UserID, req.MessageID); err != nil {
		return nil, err
	}
	return &AckDeliveryResponse{}, nil
}

// Close releases the push consumer and router connections.
func (s *Service) Close() error {
	if err := s.consumer.Close(); err != nil {
		return err
	}
	return s.router.Close()
}

