package online

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a ports.Online with tracing and structured logging.
type Instrumented struct {
	next   ports.Online
	tracer trace.Tracer
}

// NewInstrumented wraps next.
func NewInstrumented(next ports.Online) *Instrumented {
	return &Instrumented{next: next, tracer: otel.Tracer("internal/online")}
}

func (i *Instrumented) Login(ctx context.Context, s ports.Session) (string, ports.ConflictPolicy, []ports.Session, error) {
	ctx, span := i.tracer.Start(ctx, "online.Login", trace.WithAttributes(
		attribute.String("online.user_id", s.UserID),
		attribute.String("online.device_id", s.DeviceID),
	))
	defer span.End()

	sessionID, applied, evicted, err := i.next.Login(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "online login failed", "user_id", s.UserID, "error", err)
		return sessionID, applied, evicted, err
	}
	span.SetAttributes(attribute.Int("online.evicted_count", len(evicted)))
	logger.L().InfoContext(ctx, "online login", "user_id", s.UserID, "evicted", len(evicted))
	return sessionID, applied, evicted, nil
}

func (i *Instrumented) Logout(ctx context.Context, userID, deviceID string) error {
	ctx, span := i.tracer.Start(ctx, "online.Logout")
	defer span.End()
	err := i.next.Logout(ctx, userID, deviceID)
	if err != nil {
		span.RecordError(err)
		logger.L().ErrorContext(ctx, "online logout failed", "user_id", userID, "error", err)
	}
	return err
}

func (i *Instrumented) Heartbeat(ctx context.Context, sessionID string, quality *ports.Quality) error {
	_, span := i.tracer.Start(ctx, "online.Heartbeat")
	defer span.End()
	err := i.next.Heartbeat(ctx, sessionID, quality)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (i *Instrumented) GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	ctx, span := i.tracer.Start(ctx, "online.GetOnlineStatus", trace.WithAttributes(
		attribute.Int("online.user_count", len(userIDs)),
	))
	defer span.End()
	out, err := i.next.GetOnlineStatus(ctx, userIDs)
	if err != nil {
		span.RecordError(err)
		logger.L().ErrorContext(ctx, "get online status failed", "error", err)
	}
	return out, err
}

func (i *Instrumented) ListUserDevices(ctx context.Context, userID string) ([]ports.Session, error) {
	ctx, span := i.tracer.Start(ctx, "online.ListUserDevices")
	defer span.End()
	return i.next.ListUserDevices(ctx, userID)
}

func (i *Instrumented) KickDevice(ctx context.Context, userID, deviceID string) error {
	ctx, span := i.tracer.Start(ctx, "online.KickDevice")
	defer span.End()
	err := i.next.KickDevice(ctx, userID, deviceID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
