package ackstore

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
)

// ScannerConfig tunes the timeout tiers and retry budget. The three
// timeouts are deliberately ordered high < medium < low: a high-
// importance delivery is retried sooner because the cost of a stuck
// high-importance message is greater.
type ScannerConfig struct {
	CheckInterval    time.Duration `env:"PUSH_ACKSCANNER_INTERVAL" env-default:"1s"`
	HighTimeout      time.Duration `env:"PUSH_ACKSCANNER_HIGH_TIMEOUT" env-default:"30s"`
	MediumTimeout    time.Duration `env:"PUSH_ACKSCANNER_MEDIUM_TIMEOUT" env-default:"60s"`
	LowTimeout       time.Duration `env:"PUSH_ACKSCANNER_LOW_TIMEOUT" env-default:"120s"`
	MaxRetryCount    int           `env:"PUSH_ACKSCANNER_MAX_RETRY" env-default:"3"`
}

// Redeliverer re-sends a delivery whose ack timed out but still has
// retry budget remaining.
type Redeliverer interface {
	Redeliver(ctx context.Context, rec Record) error
}

// Degrader handles a delivery that exhausted its retry budget: typically
// falling back to an offline-sync path rather than further realtime push.
type Degrader interface {
	Degrade(ctx context.Context, rec Record) error
}

// Scanner periodically walks the Store's pending index, retrying or
// degrading any entry that has outlived its importance-tiered timeout.
type Scanner struct {
	cfg       ScannerConfig
	store     *Store
	redeliver Redeliverer
	degrade   Degrader
}

// NewScanner builds a Scanner over store.
func NewScanner(cfg ScannerConfig, store *Store, redeliver Redeliverer, degrade Degrader) *Scanner {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.HighTimeout <= 0 {
		cfg.HighTimeout = 30 * time.Second
	}
	if cfg.MediumTimeout <= 0 {
		cfg.MediumTimeout = 60 * time.Second
	}
	if cfg.LowTimeout <= 0 {
		cfg.LowTimeout = 120 * time.Second
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 3
	}
	return &Scanner{cfg: cfg, store: store, redeliver: redeliver, degrade: degrade}
}

func (s *Scanner) timeoutFor(importance Importance) time.Duration {
	switch importance {
	case ImportanceHigh:
		return s.cfg.HighTimeout
	case ImportanceMedium:
		return s.cfg.MediumTimeout
	default:
		return s.cfg.LowTimeout
	}
}

// Run blocks, scanning on cfg.CheckInterval, until ctx is canceled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.checkTimeouts(ctx)
		}
	}
}

func (s *Scanner) checkTimeouts(ctx context.Context) {
	now := time.Now()
	for key, entry := range s.store.snapshot() {
		if now.Sub(entry.Record.SentAt) < s.timeoutFor(entry.Record.Importance) {
			continue
		}
		s.handleTimeout(ctx, key, entry)
	}
}

func (s *Scanner) handleTimeout(ctx context.Context, key string, entry *pendingEntry) {
	if entry.RetryCount >= s.cfg.MaxRetryCount {
		if s.store.archiver != nil {
			s.store.archiver.Archive(entry.Record, "degraded")
		}
		if err := s.degrade.Degrade(ctx, entry.Record); err != nil {
			logger.L().ErrorContext(ctx, "ack degrade handler failed", "message_id", entry.Record.MessageID, "user_id", entry.Record.UserID, "error", err)
		}
		s.store.remove(key)
		return
	}

	rec, count, err := s.store.bumpRetry(ctx, key)
	if err != nil {
		logger.L().WarnContext(ctx, "failed to bump ack retry count", "message_id", entry.Record.MessageID, "error", err)
		return
	}
	if err := s.redeliver.Redeliver(ctx, rec); err != nil {
		logger.L().WarnContext(ctx, "ack redeliver failed", "message_id", rec.MessageID, "user_id", rec.UserID, "retry", count, "error", err)
	}
}
