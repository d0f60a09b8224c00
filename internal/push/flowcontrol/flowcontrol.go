// Package flowcontrol implements the Push Server's backpressure guard
// (SPEC_FULL.md section 4.4 supplement): per-conversation QPS limiting,
// hot-conversation degradation, and system-wide backpressure from Kafka
// consumer lag and storage write latency.
package flowcontrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// MonitoringClient reports the system backpressure signals the
// controller checks when BackpressureEnabled is set.
type MonitoringClient interface {
	KafkaLag(ctx context.Context) (uint64, error)
	StorageLatencyMillis(ctx context.Context) (float64, error)
}

// Config tunes the controller's limits.
type Config struct {
	SessionQPSLimit           int64   `env:"PUSH_FLOWCONTROL_SESSION_QPS_LIMIT" env-default:"50"`
	HotConversationThreshold  int64   `env:"PUSH_FLOWCONTROL_HOT_THRESHOLD" env-default:"100"`
	KafkaLagLimit             uint64  `env:"PUSH_FLOWCONTROL_KAFKA_LAG_LIMIT" env-default:"10000"`
	StorageLatencyLimitMillis float64 `env:"PUSH_FLOWCONTROL_STORAGE_LATENCY_LIMIT_MS" env-default:"500"`
	HotConversationDelay      time.Duration
}

type hotConversationInfo struct {
	lastDetected time.Time
	currentQPS   int64
	degraded     bool
}

// Controller checks one conversation's send against its QPS budget and,
// when wired with a MonitoringClient, against system-wide backpressure.
// It carries no storage beyond the per-second rate-limit counters in
// counters and an in-process map of conversations it has flagged hot.
type Controller struct {
	cfg        Config
	counters   cache.Cache
	monitoring MonitoringClient

	mu  sync.RWMutex
	hot map[string]*hotConversationInfo
}

// New builds a Controller. monitoring may be nil, in which case
// backpressure checks are skipped entirely.
func New(cfg Config, counters cache.Cache, monitoring MonitoringClient) *Controller {
	if cfg.SessionQPSLimit <= 0 {
		cfg.SessionQPSLimit = 50
	}
	if cfg.HotConversationThreshold <= 0 {
		cfg.HotConversationThreshold = 100
	}
	if cfg.KafkaLagLimit == 0 {
		cfg.KafkaLagLimit = 10000
	}
	if cfg.StorageLatencyLimitMillis == 0 {
		cfg.StorageLatencyLimitMillis = 500
	}
	if cfg.HotConversationDelay <= 0 {
		cfg.HotConversationDelay = 100 * time.Millisecond
	}
	return &Controller{cfg: cfg, counters: counters, monitoring: monitoring, hot: make(map[string]*hotConversationInfo)}
}

// bucketKey gives the QPS counter one-second granularity. cache.Cache
// exposes Incr but no standalone Expire, so the window is enforced by
// key rotation rather than a server-side TTL on a single counter key.
func bucketKey(conversationID string) string {
	return fmt.Sprintf("rate_limit:session_qps:%s:%d", conversationID, time.Now().Unix())
}

func (c *Controller) isHot(conversationID string, qps int64) bool {
	return qps > c.cfg.HotConversationThreshold
}

func (c *Controller) markHot(conversationID string, qps int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hot[conversationID] = &hotConversationInfo{
		lastDetected: time.Now(),
		currentQPS:   qps,
		degraded:     qps > c.cfg.HotConversationThreshold,
	}
}

func (c *Controller) isDegraded(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.hot[conversationID]
	return ok && info.degraded
}

// Check enforces the conversation's QPS limit, then (if enabled) the
// system backpressure signals. A non-nil error means the caller should
// not push now; the broker's at-least-once redelivery handles retry.
func (c *Controller) Check(ctx context.Context, conversationID string) error {
	if conversationID != "" && c.counters != nil {
		qps, err := c.counters.Incr(ctx, bucketKey(conversationID), 1)
		if err != nil {
			return errors.Wrap(err, "failed to read conversation qps counter")
		}
		if c.isHot(conversationID, qps) {
			c.markHot(conversationID, qps)
			if c.isDegraded(conversationID) {
				select {
				case <-time.After(c.cfg.HotConversationDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if qps > c.cfg.SessionQPSLimit {
			return errors.Unavailable(fmt.Sprintf("conversation qps limit exceeded: %d > %d", qps, c.cfg.SessionQPSLimit), nil)
		}
	}

	if c.monitoring == nil {
		return nil
	}
	lag, err := c.monitoring.KafkaLag(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read kafka lag")
	}
	if lag > c.cfg.KafkaLagLimit {
		return errors.Unavailable(fmt.Sprintf("kafka lag too high: %d", lag), nil)
	}
	latency, err := c.monitoring.StorageLatencyMillis(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read storage latency")
	}
	if latency > c.cfg.StorageLatencyLimitMillis {
		return errors.Unavailable(fmt.Sprintf("storage latency too high: %.1fms", latency), nil)
	}
	return nil
}
