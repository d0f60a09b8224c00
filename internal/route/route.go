// Package route implements the stateless Route collaborator (section
// 4.6): target selection against live Online data, plus opaque forwarding
// to external business systems by SVID.
package route

import (
	"context"
	"sort"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// Forwarder dispatches an opaque payload to one external business system.
// Supplied per-SVID; RouteMessage looks the forwarder up by svid.
type Forwarder func(ctx context.Context, payload []byte, options map[string]string) (endpoint string, response []byte, err error)

// Service implements ports.Route. It carries no storage of its own and
// always consults Online live, as section 4.6 requires.
type Service struct {
	online     ports.Online
	forwarders map[string]Forwarder
}

// New builds a Service backed by online, with the given SVID forwarders.
func New(online ports.Online, forwarders map[string]Forwarder) *Service {
	if forwarders == nil {
		forwarders = make(map[string]Forwarder)
	}
	return &Service{online: online, forwarders: forwarders}
}

// qualityScore blends RTT and loss rate per section 4.4 step 4: RTT
// weighs 60%, loss rate 40%. Lower is better; scores are normalized so
// callers can sort ascending.
func qualityScore(q *ports.Quality) float64 {
	if q == nil {
		return 1.0 // unknown quality sorts last among known-quality peers
	}
	rttNorm := q.RTTMillis / 1000.0
	if rttNorm > 1 {
		rttNorm = 1
	}
	return rttNorm*0.6 + q.LossRate*0.4
}

// SelectPushTargets resolves a user's devices against strategy.
func (s *Service) SelectPushTargets(ctx context.Context, userID string, strategy ports.PushStrategy) ([]ports.PushTarget, error) {
	sessions, err := s.online.ListUserDevices(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	switch strategy {
	case ports.StrategyAllDevices:
		return toTargets(sessions), nil

	case ports.StrategyActiveDevices:
		var active []ports.Session
		for _, sess := range sessions {
			if sess.Priority != ports.PriorityLow {
				active = append(active, sess)
			}
		}
		return toTargets(active), nil

	case ports.StrategyBestDevice, ports.StrategyPrimaryDevice:
		best := bestSession(sessions)
		return toTargets([]ports.Session{best}), nil

	default:
		return nil, errors.InvalidArgument("unknown push strategy", nil)
	}
}

func bestSession(sessions []ports.Session) ports.Session {
	sorted := append([]ports.Session(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return qualityScore(sorted[i].Quality) < qualityScore(sorted[j].Quality)
	})
	return sorted[0]
}

func toTargets(sessions []ports.Session) []ports.PushTarget {
	targets := make([]ports.PushTarget, 0, len(sessions))
	for _, sess := range sessions {
		targets = append(targets, ports.PushTarget{
			GatewayID: sess.GatewayID,
			DeviceID:  sess.DeviceID,
			ServerID:  sess.SessionID,
		})
	}
	return targets
}

// RouteMessage tunnels an opaque payload to the business system
// registered under svid.
func (s *Service) RouteMessage(ctx context.Context, svid string, payload []byte, options map[string]string) (string, []byte, error) {
	fwd, ok := s.forwarders[svid]
	if !ok {
		return "", nil, errors.NotFound("no forwarder registered for svid: "+svid, nil)
	}
	return fwd(ctx, payload, options)
}
