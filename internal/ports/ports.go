// Package ports declares the interfaces the core pipeline consumes from
// its collaborating subsystems (Online/Presence, Route, Conversation,
// Hook Engine, Media). Each has a concrete adapter under internal/, but
// callers depend only on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/message"
)

// DevicePriority ranks a session for Best/Primary device selection.
type DevicePriority int

const (
	PriorityLow DevicePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// ConflictPolicy governs what happens to existing sessions on a new login.
type ConflictPolicy int

const (
	PolicyExclusive ConflictPolicy = iota
	PolicyPlatformExclusive
	PolicyCoexist
	PolicyForceLogout
)

// Quality is a point-in-time connection-quality sample.
type Quality struct {
	RTTMillis   float64
	LossRate    float64
	NetworkType string
	Signal      float64
	MeasuredAt  time.Time
}

// Session is the (user, device, gateway, server) tuple Online owns.
type Session struct {
	SessionID     string
	UserID        string
	DeviceID      string
	Platform      string
	GatewayID     string
	Priority      DevicePriority
	TokenVersion  int64
	LastSeen      time.Time
	Quality       *Quality
	ConflictPolicy ConflictPolicy
}

// OnlineStatus describes one user's reachability as known to Online.
type OnlineStatus struct {
	UserID    string
	Online    bool
	GatewayID string
	DeviceID  string
	Platform  string
	LastSeen  time.Time
}

// Online is the presence collaborator interface (section 4.5).
type Online interface {
	Login(ctx context.Context, s Session) (sessionID string, applied ConflictPolicy, evicted []Session, err error)
	Logout(ctx context.Context, userID, deviceID string) error
	Heartbeat(ctx context.Context, sessionID string, quality *Quality) error
	GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]OnlineStatus, error)
	ListUserDevices(ctx context.Context, userID string) ([]Session, error)
	KickDevice(ctx context.Context, userID, deviceID string) error
}

// PushStrategy selects which of a user's devices receive a push.
type PushStrategy int

const (
	StrategyAllDevices PushStrategy = iota
	StrategyBestDevice
	StrategyActiveDevices
	StrategyPrimaryDevice
)

// PushTarget is one (gateway, device) resolved for delivery.
type PushTarget struct {
	GatewayID string
	DeviceID  string
	ServerID  string // session server identity, for cross-region dispatch
}

// Route is the stateless target-selection collaborator (section 4.6).
type Route interface {
	SelectPushTargets(ctx context.Context, userID string, strategy PushStrategy) ([]PushTarget, error)
	RouteMessage(ctx context.Context, svid string, payload []byte, options map[string]string) (endpoint string, response []byte, err error)
}

// ParticipantRole is a conversation participant's role.
type ParticipantRole int

const (
	RoleMember ParticipantRole = iota
	RoleAdmin
	RoleOwner
)

// ConversationType distinguishes single-chat from group/channel.
type ConversationType int

const (
	ConversationSingle ConversationType = iota
	ConversationGroup
	ConversationChannel
)

// Participant is one member of a Conversation.
type Participant struct {
	UserID string
	Role   ParticipantRole
	Muted  bool
	Pinned bool
}

// Conversation is the session-metadata collaborator interface (section 4.7).
type Conversation interface {
	EnsureConversation(ctx context.Context, id string, typ ConversationType, businessType string, participants []Participant, tenant string) error
	UpdateLastMessage(ctx context.Context, conversationID, messageID string, seq int64) error
	BatchUpdateUnreadCount(ctx context.Context, conversationID string, lastSeq int64, excludeUser string) error
	UpdateCursor(ctx context.Context, userID, conversationID string, ts time.Time) error
	ListConversations(ctx context.Context, userID string) ([]string, error)
	SyncMessages(ctx context.Context, conversationID string, sinceSeq int64) ([]string, error)
}

// HookGroup classifies a hook's execution semantics (section 4.2).
type HookGroup int

const (
	HookValidation HookGroup = iota
	HookCritical
	HookBusiness
)

// HookPoint is the lifecycle point a hook is invoked at.
type HookPoint int

const (
	PreSend HookPoint = iota
	PostSend
	Delivery
	Recall
)

// HookEnvelope is the mutable draft passed through a hook chain. Hooks may
// rewrite Message/Headers/Metadata; a non-nil error from any Validation or
// Critical hook aborts the chain.
type HookEnvelope struct {
	Message  *message.Message
	Headers  map[string]string
	Metadata map[string]string
}

// Hook is one pluggable pre/post-send, delivery, or recall handler.
type Hook interface {
	Group() HookGroup
	Invoke(ctx context.Context, point HookPoint, env *HookEnvelope) error
}

// AttachmentRef points at an unresolved media attachment referenced from
// message content.
type AttachmentRef struct {
	AttachmentID string
}

// ResolvedAttachment is the outcome of resolving one AttachmentRef.
type ResolvedAttachment struct {
	AttachmentID string
	MimeType     string
	SizeBytes    int64
	URL          string
}

// Media resolves attachment metadata (section 4.9).
type Media interface {
	ResolveAttachments(ctx context.Context, refs []AttachmentRef) ([]ResolvedAttachment, error)
}
