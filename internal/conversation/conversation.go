// Package conversation implements the Conversation collaborator (section
// 4.7) over a relational store via GORM, the same driver stack the
// teacher's pkg/database/sql/adapters/postgres uses.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config configures the Postgres-backed Conversation adapter.
type Config struct {
	Host     string `env:"CONVERSATION_DB_HOST" env-required:"true"`
	Port     string `env:"CONVERSATION_DB_PORT" env-default:"5432"`
	User     string `env:"CONVERSATION_DB_USER" env-required:"true"`
	Password string `env:"CONVERSATION_DB_PASSWORD"`
	Name     string `env:"CONVERSATION_DB_NAME" env-required:"true"`
	SSLMode  string `env:"CONVERSATION_DB_SSLMODE" env-default:"disable"`
}

// conversationRow is the GORM model backing the conversations table.
type conversationRow struct {
	ID             string `gorm:"primaryKey"`
	Type           int
	BusinessType   string
	Tenant         string
	LifecycleState int
	LastMessageID  string
	LastSeq        int64
	UpdatedAt      time.Time
}

func (conversationRow) TableName() string { return "conversations" }

type participantRow struct {
	ConversationID string `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey"`
	Role           int
	Muted          bool
	Pinned         bool
	UnreadCount    int64
	CursorTS       time.Time
}

func (participantRow) TableName() string { return "conversation_participants" }

// Service implements ports.Conversation.
type Service struct {
	db *gorm.DB
}

// New connects to Postgres and auto-migrates the conversation schema.
func New(cfg Config) (*Service, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to conversation store")
	}
	if err := db.AutoMigrate(&conversationRow{}, &participantRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate conversation schema")
	}
	return &Service{db: db}, nil
}

// SingleChatID derives the deterministic conversation id for a two-party
// chat, so both peers resolve to the same id regardless of who initiates.
func SingleChatID(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("single:%s:%s", userA, userB)
}

func (s *Service) EnsureConversation(ctx context.Context, id string, typ ports.ConversationType, businessType string, participants []ports.Participant, tenant string) error {
	if typ == ports.ConversationSingle && len(participants) != 2 {
		return errors.InvalidArgument("single-chat conversations require exactly two participants", nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversationRow{
			ID: id, Type: int(typ), BusinessType: businessType, Tenant: tenant,
			LifecycleState: 0, UpdatedAt: time.Now(),
		}
		if err := tx.Clauses().Where("id = ?", id).FirstOrCreate(&row).Error; err != nil {
			return errors.Wrap(err, "failed to ensure conversation")
		}
		for _, p := range participants {
			prow := participantRow{ConversationID: id, UserID: p.UserID, Role: int(p.Role), Muted: p.Muted, Pinned: p.Pinned}
			if err := tx.Where(participantRow{ConversationID: id, UserID: p.UserID}).FirstOrCreate(&prow).Error; err != nil {
				return errors.Wrap(err, "failed to ensure participant")
			}
		}
		return nil
	})
}

func (s *Service) UpdateLastMessage(ctx context.Context, conversationID, messageID string, seq int64) error {
	err := s.db.WithContext(ctx).Model(&conversationRow{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{"last_message_id": messageID, "last_seq": seq, "updated_at": time.Now()}).Error
	if err != nil {
		return errors.Wrap(err, "failed to update last message pointer")
	}
	return nil
}

func (s *Service) BatchUpdateUnreadCount(ctx context.Context, conversationID string, lastSeq int64, excludeUser string) error {
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, excludeUser).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	if err != nil {
		return errors.Wrap(err, "failed to batch-update unread counts")
	}
	return nil
}

func (s *Service) UpdateCursor(ctx context.Context, userID, conversationID string, ts time.Time) error {
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("cursor_ts", ts).Error
	if err != nil {
		return errors.Wrap(err, "failed to update cursor")
	}
	return nil
}

func (s *Service) ListConversations(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&participantRow{}).
		Where("user_id = ?", userID).Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return ids, nil
}

func (s *Service) SyncMessages(ctx context.Context, conversationID string, sinceSeq int64) ([]string, error) {
	// The writer's realtime/archive stores own message bodies; this
	// collaborator only tracks the conversation-level pointer the
	// bootstrap read path uses to know how far a peer must page.
	var row conversationRow
	if err := s.db.WithContext(ctx).Where("id = ?", conversationID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("conversation not found", err)
		}
		return nil, errors.Wrap(err, "failed to load conversation")
	}
	if row.LastSeq <= sinceSeq {
		return nil, nil
	}
	return []string{row.LastMessageID}, nil
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}
