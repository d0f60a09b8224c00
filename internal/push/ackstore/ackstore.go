// Package ackstore tracks outstanding delivery acks for the Push Server,
// escalating through retry and, past a retry budget, degradation. Timeout
// tiers and retry/degrade policy are grounded in the importance-tiered
// ack timeout monitor of section 4.4's supplemented ack pipeline.
package ackstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// Importance classifies a message for ack-timeout purposes: higher
// importance gets a shorter timeout so a stuck delivery is retried sooner.
type Importance int

const (
	ImportanceLow Importance = iota
	ImportanceMedium
	ImportanceHigh
)

// Record is one outstanding delivery awaiting client ack.
type Record struct {
	MessageID  string
	UserID     string
	AckType    string
	Importance Importance
	Payload    []byte
	Metadata   map[string]string
	SentAt     time.Time
}

type pendingEntry struct {
	Record     Record
	RetryCount int
}

func recordKey(messageID, userID string) string {
	return fmt.Sprintf("%s:%s", messageID, userID)
}

// Config configures the durable side of the store.
type Config struct {
	KeyPrefix string        `env:"PUSH_ACKSTORE_KEY_PREFIX" env-default:"ack:pending:"`
	TTL       time.Duration `env:"PUSH_ACKSTORE_TTL" env-default:"24h"`
}

// Store tracks pending acks. The durable record lives in cache (Redis in
// production) so a reconnecting push-server pod can see it survived a
// restart; the scan index is process-local, since cache.Cache exposes no
// SCAN primitive to enumerate keys by prefix.
type Store struct {
	cfg      Config
	cache    cache.Cache
	archiver *Archiver

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// New builds a Store. archiver may be nil to skip audit archival.
func New(cfg Config, c cache.Cache, archiver *Archiver) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ack:pending:"
	}
	return &Store{cfg: cfg, cache: c, archiver: archiver, pending: make(map[string]*pendingEntry)}
}

func (s *Store) cacheKey(messageID, userID string) string {
	return s.cfg.KeyPrefix + recordKey(messageID, userID)
}

// Track registers a just-sent delivery as pending ack.
func (s *Store) Track(ctx context.Context, rec Record) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	entry := &pendingEntry{Record: rec}

	s.mu.Lock()
	s.pending[recordKey(rec.MessageID, rec.UserID)] = entry
	s.mu.Unlock()

	if err := s.cache.Set(ctx, s.cacheKey(rec.MessageID, rec.UserID), entry, s.cfg.TTL); err != nil {
		return errors.Wrap(err, "failed to persist pending ack record")
	}
	return nil
}

// Ack retires a delivery the client has confirmed, archiving it as acked
// when an archiver is wired.
func (s *Store) Ack(ctx context.Context, messageID, userID string) error {
	key := recordKey(messageID, userID)

	s.mu.Lock()
	entry, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, s.cacheKey(messageID, userID)); err != nil {
		return errors.Wrap(err, "failed to clear pending ack record")
	}
	if !ok {
		return errors.NotFound("no pending ack for "+key, nil)
	}
	if s.archiver != nil {
		s.archiver.Archive(entry.Record, "acked")
	}
	return nil
}

// bumpRetry increments the live pending entry's retry count, refreshes
// its SentAt to the moment of redelivery, and re-persists it, returning
// the updated record and retry count.
func (s *Store) bumpRetry(ctx context.Context, key string) (Record, int, error) {
	s.mu.Lock()
	entry, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return Record{}, 0, errors.NotFound("no pending ack for "+key, nil)
	}
	entry.RetryCount++
	entry.Record.SentAt = time.Now()
	rec := entry.Record
	count := entry.RetryCount
	s.mu.Unlock()

	if err := s.cache.Set(ctx, s.cfg.KeyPrefix+key, entry, s.cfg.TTL); err != nil {
		return rec, count, errors.Wrap(err, "failed to persist ack retry count")
	}
	return rec, count, nil
}

// remove drops an entry from the scan index without touching the cache
// (used once a delivery has been archived and degraded).
func (s *Store) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
}

// snapshot returns a point-in-time copy of the pending index for the
// scanner to walk without holding the store's lock during I/O.
func (s *Store) snapshot() map[string]*pendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*pendingEntry, len(s.pending))
	for k, v := range s.pending {
		cp := *v
		out[k] = &cp
	}
	return out
}
