package push_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/gateway"
	"github.com/chris-alexander-pop/system-design-library/internal/hook"
	"github.com/chris-alexander-pop/system-design-library/internal/message"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/internal/push"
	"github.com/chris-alexander-pop/system-design-library/internal/push/ackstore"
	"github.com/chris-alexander-pop/system-design-library/internal/push/flowcontrol"
	"github.com/chris-alexander-pop/system-design-library/internal/push/gatewayrouter"
	"github.com/chris-alexander-pop/system-design-library/internal/push/onlinecache"
	cachemem "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/memory"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	msgmemory "github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/memory"
	"github.com/stretchr/testify/require"
)

type fakeOnline struct {
	statuses map[string]ports.OnlineStatus
}

func (f *fakeOnline) Login(ctx context.Context, s ports.Session) (string, ports.ConflictPolicy, []ports.Session, error) {
	return "", ports.PolicyExclusive, nil, nil
}
func (f *fakeOnline) Logout(ctx context.Context, userID, deviceID string) error { return nil }
func (f *fakeOnline) Heartbeat(ctx context.Context, sessionID string, q *ports.Quality) error {
	return nil
}
func (f *fakeOnline) GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	out := make(map[string]ports.OnlineStatus, len(userIDs))
	for _, id := range userIDs {
		if st, ok := f.statuses[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}
func (f *fakeOnline) ListUserDevices(ctx context.Context, userID string) ([]ports.Session, error) {
	return nil, nil
}
func (f *fakeOnline) KickDevice(ctx context.Context, userID, deviceID string) error { return nil }

// recordingRoute returns no push targets, so deliverToUser stops right
// after recording which user it was asked to resolve targets for.
type recordingRoute struct {
	mu        sync.Mutex
	calledFor []string
}

func (r *recordingRoute) SelectPushTargets(ctx context.Context, userID string, strategy ports.PushStrategy) ([]ports.PushTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calledFor = append(r.calledFor, userID)
	return nil, nil
}

func (r *recordingRoute) RouteMessage(ctx context.Context, svid string, payload []byte, options map[string]string) (string, []byte, error) {
	return "", nil, nil
}

func (r *recordingRoute) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calledFor))
	copy(out, r.calledFor)
	return out
}

func newTestService(t *testing.T, route *recordingRoute, online *fakeOnline) (*push.Service, *msgmemory.Broker) {
	t.Helper()

	broker := msgmemory.New(msgmemory.Config{})
	gw := gateway.New(gateway.Config{GatewayID: "gw1"}, nil, nil, nil)
	router := gatewayrouter.New(gatewayrouter.Config{LocalGatewayID: "gw1"}, gw.Handle())
	flow := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 1000}, cachemem.New(), nil)
	acks := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	oc := onlinecache.New(online, onlinecache.Config{})

	svc, err := push.New(push.Config{Topic: "push.test", Group: "g1"}, broker, hook.NewChain(), route, oc, router, flow, acks)
	require.NoError(t, err)
	return svc, broker
}

func publish(t *testing.T, broker *msgmemory.Broker, topic string, msg *message.Message) {
	t.Helper()
	producer, err := broker.Producer(topic)
	require.NoError(t, err)
	defer producer.Close()

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{Topic: topic, Payload: body}))
}

func TestHandleSkipsSenderAndOfflineRecipients(t *testing.T) {
	route := &recordingRoute{}
	online := &fakeOnline{statuses: map[string]ports.OnlineStatus{
		"sender":   {UserID: "sender", Online: true},
		"online1":  {UserID: "online1", Online: true},
		"offline1": {UserID: "offline1", Online: false},
	}}
	svc, broker := newTestService(t, route, online)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	msg := &message.Message{
		ServerID:       "m1",
		ConversationID: "c1",
		SenderID:       "sender",
		ReceiverIDs:    []string{"sender", "online1", "offline1"},
		MessageType:    message.ContentText,
	}
	publish(t, broker, "push.test", msg)

	require.Eventually(t, func() bool {
		return len(route.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"online1"}, route.snapshot())
}

func TestAckDeliveryOnUntrackedMessageIsError(t *testing.T) {
	route := &recordingRoute{}
	online := &fakeOnline{}
	svc, _ := newTestService(t, route, online)

	err := svc.AckDelivery(context.Background(), "u1", "missing-message")
	require.Error(t, err)
}
