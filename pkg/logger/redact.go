package logger

import (
	"context"
	"log/slog"
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ccPattern    = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	tokenKeys    = map[string]bool{
		"password": true, "token": true, "bearer_token": true, "access_token": true,
		"refresh_token": true, "authorization": true, "secret": true, "cc": true,
		"card_number": true,
	}
)

// RedactHandler scrubs known-sensitive attribute keys and masks
// email/card-number-shaped values in the remaining attributes before
// forwarding the record.
type RedactHandler struct {
	next slog.Handler
}

func NewRedactHandler(next slog.Handler) *RedactHandler {
	return &RedactHandler{next: next}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, nr)
}

func redactAttr(a slog.Attr) slog.Attr {
	if tokenKeys[a.Key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		s = emailPattern.ReplaceAllString(s, "[REDACTED_EMAIL]")
		s = ccPattern.ReplaceAllString(s, "[REDACTED_CC]")
		return slog.String(a.Key, s)
	}
	return a
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactHandler{next: h.next.WithAttrs(redacted)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name)}
}
