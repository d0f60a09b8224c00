// Package memory is an in-process Online adapter for tests and local
// development, mirroring internal/online's Redis semantics without an
// external dependency.
package memory

import (
	"context"
	"sync"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/google/uuid"
)

// Service implements ports.Online over an in-memory map.
type Service struct {
	mu       sync.Mutex
	sessions map[string]map[string]ports.Session // userID -> deviceID -> Session
	byID     map[string]struct{ user, device string }
}

// New returns a ready in-memory Service.
func New() *Service {
	return &Service{
		sessions: make(map[string]map[string]ports.Session),
		byID:     make(map[string]struct{ user, device string }),
	}
}

func (s *Service) Login(ctx context.Context, sess ports.Session) (string, ports.ConflictPolicy, []ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := s.sessions[sess.UserID]
	var evicted []ports.Session
	switch sess.ConflictPolicy {
	case ports.PolicyExclusive, ports.PolicyForceLogout:
		for _, e := range devices {
			evicted = append(evicted, e)
		}
		devices = make(map[string]ports.Session)
	case ports.PolicyPlatformExclusive:
		for d, e := range devices {
			if e.Platform == sess.Platform {
				evicted = append(evicted, e)
				delete(devices, d)
			}
		}
	case ports.PolicyCoexist:
		// no eviction
	}
	if devices == nil {
		devices = make(map[string]ports.Session)
	}

	sess.SessionID = uuid.New().String()
	devices[sess.DeviceID] = sess
	s.sessions[sess.UserID] = devices
	s.byID[sess.SessionID] = struct{ user, device string }{sess.UserID, sess.DeviceID}

	return sess.SessionID, sess.ConflictPolicy, evicted, nil
}

func (s *Service) Logout(ctx context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if devices, ok := s.sessions[userID]; ok {
		delete(devices, deviceID)
	}
	return nil
}

func (s *Service) Heartbeat(ctx context.Context, sessionID string, quality *ports.Quality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.byID[sessionID]
	if !ok {
		return errors.NotFound("session not found", nil)
	}
	sess, ok := s.sessions[owner.user][owner.device]
	if !ok {
		return errors.NotFound("session not found", nil)
	}
	sess.Quality = quality
	s.sessions[owner.user][owner.device] = sess
	return nil
}

func (s *Service) GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ports.OnlineStatus, len(userIDs))
	for _, uid := range userIDs {
		devices := s.sessions[uid]
		if len(devices) == 0 {
			out[uid] = ports.OnlineStatus{UserID: uid, Online: false}
			continue
		}
		for _, sess := range devices {
			out[uid] = ports.OnlineStatus{
				UserID: uid, Online: true, GatewayID: sess.GatewayID,
				DeviceID: sess.DeviceID, Platform: sess.Platform, LastSeen: sess.LastSeen,
			}
			break
		}
	}
	return out, nil
}

func (s *Service) ListUserDevices(ctx context.Context, userID string) ([]ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Session
	for _, sess := range s.sessions[userID] {
		out = append(out, sess)
	}
	return out, nil
}

func (s *Service) KickDevice(ctx context.Context, userID, deviceID string) error {
	return s.Logout(ctx, userID, deviceID)
}
