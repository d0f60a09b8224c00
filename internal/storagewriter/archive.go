package storagewriter

import (
	"context"
	"encoding/json"

	"github.com/chris-alexander-pop/system-design-library/internal/message"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArchiveConfig configures the Postgres-backed relational archive tier.
type ArchiveConfig struct {
	Host     string `env:"STORAGEWRITER_ARCHIVE_DB_HOST" env-required:"true"`
	Port     string `env:"STORAGEWRITER_ARCHIVE_DB_PORT" env-default:"5432"`
	User     string `env:"STORAGEWRITER_ARCHIVE_DB_USER" env-required:"true"`
	Password string `env:"STORAGEWRITER_ARCHIVE_DB_PASSWORD"`
	Name     string `env:"STORAGEWRITER_ARCHIVE_DB_NAME" env-required:"true"`
	SSLMode  string `env:"STORAGEWRITER_ARCHIVE_DB_SSLMODE" env-default:"disable"`
}

// messageRow is the GORM model backing the messages table: the
// normalized, queryable projection of a Message's FSM state.
type messageRow struct {
	ServerID       string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	SenderID       string
	Seq            int64
	FSMState       int
	EditVersion    int
	Content        string
	Tenant         string
	Timestamp      int64
}

func (messageRow) TableName() string { return "messages" }

// editHistoryRow is the GORM model backing message_edit_history.
type editHistoryRow struct {
	ServerID     string `gorm:"primaryKey"`
	EditVersion  int    `gorm:"primaryKey"`
	PriorContent string
	EditedAt     int64
}

func (editHistoryRow) TableName() string { return "message_edit_history" }

// operationRow is the GORM model backing message_operations. Its
// composite key doubles as the dedup key: a redelivered message replays
// its whole Operations slice, and OnConflict DoNothing on (server_id,
// op_type, at) skips entries already archived rather than duplicating
// them.
type operationRow struct {
	ServerID string `gorm:"primaryKey"`
	OpType   int    `gorm:"primaryKey"`
	At       int64  `gorm:"primaryKey"`
	Actor    string
}

func (operationRow) TableName() string { return "message_operations" }

// Archiver is the Storage Writer's relational archive tier. Unlike
// ackstore's Archiver, this one writes synchronously: the write ordering
// the storage pipeline depends on (hot -> realtime -> archive, with the
// idempotency mark only set once archive commits) requires the caller to
// observe the outcome of this write, not fire-and-forget it.
type Archiver struct {
	db *gorm.DB
}

// NewArchiver connects to Postgres and migrates the archive schema.
func NewArchiver(cfg ArchiveConfig) (*Archiver, error) {
	dsn := "host=" + cfg.Host + " user=" + cfg.User + " password=" + cfg.Password +
		" dbname=" + cfg.Name + " port=" + cfg.Port + " sslmode=" + cfg.SSLMode

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to message archive store")
	}
	if err := db.AutoMigrate(&messageRow{}, &editHistoryRow{}, &operationRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate message archive schema")
	}
	return &Archiver{db: db}, nil
}

// Archive upserts msg's normalized row and appends any edit-history or
// operation entries not yet recorded, all within one transaction.
func (a *Archiver) Archive(ctx context.Context, msg *message.Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return errors.Wrap(err, "failed to encode message content for archive")
	}

	row := messageRow{
		ServerID:       msg.ServerID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Seq:            msg.Seq,
		FSMState:       int(msg.State),
		EditVersion:    msg.EditVersion,
		Content:        string(content),
		Tenant:         msg.Tenant,
		Timestamp:      msg.Timestamp.Unix(),
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fsm_state", "edit_version", "content", "seq"}),
		}).Create(&row).Error; err != nil {
			return errors.Wrap(err, "failed to upsert message archive row")
		}

		for _, h := range msg.EditHistory {
			prior, err := json.Marshal(h.PriorContent)
			if err != nil {
				return errors.Wrap(err, "failed to encode edit history entry")
			}
			histRow := editHistoryRow{ServerID: msg.ServerID, EditVersion: h.EditVersion, PriorContent: string(prior), EditedAt: h.EditedAt.Unix()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&histRow).Error; err != nil {
				return errors.Wrap(err, "failed to archive edit history entry")
			}
		}

		for _, op := range msg.Operations {
			opRow := operationRow{ServerID: msg.ServerID, OpType: int(op.OpType), At: op.At.Unix(), Actor: op.Actor}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&opRow).Error; err != nil {
				return errors.Wrap(err, "failed to archive operation entry")
			}
		}
		return nil
	})
}

// Close releases the archive store's underlying connection pool.
func (a *Archiver) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
