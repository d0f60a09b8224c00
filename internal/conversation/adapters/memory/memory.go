// Package memory is an in-process Conversation adapter for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

type record struct {
	typ          ports.ConversationType
	lastMessage  string
	lastSeq      int64
	participants map[string]ports.Participant
	unread       map[string]int64
	cursors      map[string]time.Time
}

// Service implements ports.Conversation in memory.
type Service struct {
	mu   sync.Mutex
	data map[string]*record
}

func New() *Service {
	return &Service{data: make(map[string]*record)}
}

func (s *Service) EnsureConversation(ctx context.Context, id string, typ ports.ConversationType, businessType string, participants []ports.Participant, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typ == ports.ConversationSingle && len(participants) != 2 {
		return errors.InvalidArgument("single-chat conversations require exactly two participants", nil)
	}
	r, ok := s.data[id]
	if !ok {
		r = &record{typ: typ, participants: make(map[string]ports.Participant), unread: make(map[string]int64), cursors: make(map[string]time.Time)}
		s.data[id] = r
	}
	for _, p := range participants {
		r.participants[p.UserID] = p
	}
	return nil
}

func (s *Service) UpdateLastMessage(ctx context.Context, conversationID, messageID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[conversationID]
	if !ok {
		return errors.NotFound("conversation not found", nil)
	}
	r.lastMessage = messageID
	r.lastSeq = seq
	return nil
}

func (s *Service) BatchUpdateUnreadCount(ctx context.Context, conversationID string, lastSeq int64, excludeUser string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[conversationID]
	if !ok {
		return errors.NotFound("conversation not found", nil)
	}
	for uid := range r.participants {
		if uid == excludeUser {
			continue
		}
		r.unread[uid]++
	}
	return nil
}

func (s *Service) UpdateCursor(ctx context.Context, userID, conversationID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[conversationID]
	if !ok {
		return errors.NotFound("conversation not found", nil)
	}
	r.cursors[userID] = ts
	return nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, r := range s.data {
		if _, ok := r.participants[userID]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) SyncMessages(ctx context.Context, conversationID string, sinceSeq int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[conversationID]
	if !ok {
		return nil, errors.NotFound("conversation not found", nil)
	}
	if r.lastSeq <= sinceSeq {
		return nil, nil
	}
	return []string{r.lastMessage}, nil
}

// UnreadCount exposes the current unread count for tests.
func (s *Service) UnreadCount(conversationID, userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[conversationID]
	if !ok {
		return 0
	}
	return r.unread[userID]
}
