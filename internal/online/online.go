// Package online implements the Online/Presence collaborator (section
// 4.5) on top of Redis, matching the persisted-state layout in section 6:
// a per-user hash `presence:{user}` keyed by device id.
package online

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config configures the Redis-backed Online adapter.
type Config struct {
	Addr     string `env:"ONLINE_REDIS_ADDR" env-required:"true"`
	Password string `env:"ONLINE_REDIS_PASSWORD"`
	DB       int    `env:"ONLINE_REDIS_DB" env-default:"0"`
}

// Service implements ports.Online.
type Service struct {
	client *redis.Client
}

// New dials Redis and returns a ready Service.
func New(cfg Config) (*Service, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to online presence store")
	}
	return &Service{client: client}, nil
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func sessionIndexKey(sessionID string) string {
	return fmt.Sprintf("presence:session:%s", sessionID)
}

// Login registers a session, applying the requested conflict policy
// against prior sessions of the user (invariant 5 in section 8: eviction
// completes before Login returns).
func (s *Service) Login(ctx context.Context, sess ports.Session) (string, ports.ConflictPolicy, []ports.Session, error) {
	key := presenceKey(sess.UserID)

	existing, err := s.listSessionsLocked(ctx, key)
	if err != nil {
		return "", sess.ConflictPolicy, nil, err
	}

	var evicted []ports.Session
	switch sess.ConflictPolicy {
	case ports.PolicyExclusive, ports.PolicyForceLogout:
		evicted = existing
	case ports.PolicyPlatformExclusive:
		for _, e := range existing {
			if e.Platform == sess.Platform {
				evicted = append(evicted, e)
			}
		}
	case ports.PolicyCoexist:
		// no eviction
	}

	pipe := s.client.TxPipeline()
	for _, e := range evicted {
		pipe.HDel(ctx, key, e.DeviceID)
		pipe.Del(ctx, sessionIndexKey(e.SessionID))
	}
	sess.SessionID = uuid.New().String()
	sess.LastSeen = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return "", sess.ConflictPolicy, nil, errors.Wrap(err, "failed to marshal session")
	}
	pipe.HSet(ctx, key, sess.DeviceID, data)
	pipe.Set(ctx, sessionIndexKey(sess.SessionID), sess.UserID+":"+sess.DeviceID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", sess.ConflictPolicy, nil, errors.Wrap(err, "failed to persist session")
	}

	return sess.SessionID, sess.ConflictPolicy, evicted, nil
}

func (s *Service) Logout(ctx context.Context, userID, deviceID string) error {
	if err := s.client.HDel(ctx, presenceKey(userID), deviceID).Err(); err != nil {
		return errors.Wrap(err, "failed to remove session")
	}
	return nil
}

// Heartbeat resolves sessionID to its owning (user, device) via the
// session index and refreshes LastSeen/quality in the presence hash.
func (s *Service) Heartbeat(ctx context.Context, sessionID string, quality *ports.Quality) error {
	owner, err := s.client.Get(ctx, sessionIndexKey(sessionID)).Result()
	if err == redis.Nil {
		return errors.NotFound("session not found", nil)
	}
	if err != nil {
		return errors.Wrap(err, "failed to resolve session")
	}
	parts := splitOwner(owner)
	if parts == nil {
		return errors.Internal("corrupt session index entry", nil)
	}
	userID, deviceID := parts[0], parts[1]

	key := presenceKey(userID)
	raw, err := s.client.HGet(ctx, key, deviceID).Bytes()
	if err == redis.Nil {
		return errors.NotFound("session not found", nil)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load session")
	}
	var sess ports.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return errors.Wrap(err, "failed to decode session")
	}
	sess.LastSeen = time.Now()
	sess.Quality = quality
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	return s.client.HSet(ctx, key, deviceID, data).Err()
}

func splitOwner(owner string) []string {
	for i := 0; i < len(owner); i++ {
		if owner[i] == ':' {
			return []string{owner[:i], owner[i+1:]}
		}
	}
	return nil
}

func (s *Service) GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	out := make(map[string]ports.OnlineStatus, len(userIDs))
	for _, uid := range userIDs {
		sessions, err := s.listSessionsLocked(ctx, presenceKey(uid))
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			out[uid] = ports.OnlineStatus{UserID: uid, Online: false}
			continue
		}
		best := sessions[0]
		for _, sess := range sessions[1:] {
			if sess.LastSeen.After(best.LastSeen) {
				best = sess
			}
		}
		out[uid] = ports.OnlineStatus{
			UserID:    uid,
			Online:    true,
			GatewayID: best.GatewayID,
			DeviceID:  best.DeviceID,
			Platform:  best.Platform,
			LastSeen:  best.LastSeen,
		}
	}
	return out, nil
}

func (s *Service) ListUserDevices(ctx context.Context, userID string) ([]ports.Session, error) {
	return s.listSessionsLocked(ctx, presenceKey(userID))
}

func (s *Service) KickDevice(ctx context.Context, userID, deviceID string) error {
	return s.Logout(ctx, userID, deviceID)
}

func (s *Service) listSessionsLocked(ctx context.Context, key string) ([]ports.Session, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	sessions := make([]ports.Session, 0, len(raw))
	for _, v := range raw {
		var sess ports.Session
		if err := json.Unmarshal([]byte(v), &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *Service) Close() error {
	return s.client.Close()
}
