package ackstore

import (
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArchiveConfig configures the Postgres-backed audit archive and its
// batching behavior.
type ArchiveConfig struct {
	Host          string        `env:"PUSH_ACKARCHIVE_DB_HOST" env-required:"true"`
	Port          string        `env:"PUSH_ACKARCHIVE_DB_PORT" env-default:"5432"`
	User          string        `env:"PUSH_ACKARCHIVE_DB_USER" env-required:"true"`
	Password      string        `env:"PUSH_ACKARCHIVE_DB_PASSWORD"`
	Name          string        `env:"PUSH_ACKARCHIVE_DB_NAME" env-required:"true"`
	SSLMode       string        `env:"PUSH_ACKARCHIVE_DB_SSLMODE" env-default:"disable"`
	BufferSize    int           `env:"PUSH_ACKARCHIVE_BUFFER_SIZE" env-default:"1000"`
	BatchSize     int           `env:"PUSH_ACKARCHIVE_BATCH_SIZE" env-default:"100"`
	FlushInterval time.Duration `env:"PUSH_ACKARCHIVE_FLUSH_INTERVAL" env-default:"60s"`
}

// archiveRow is the GORM model backing the ack_archive_records table.
type archiveRow struct {
	MessageID       string `gorm:"primaryKey"`
	UserID          string `gorm:"primaryKey"`
	AckType         string
	AckStatus       string
	Timestamp       int64
	ImportanceLevel int16
	ArchivedAt      int64
}

func (archiveRow) TableName() string { return "ack_archive_records" }

// Archiver batches ack outcomes into Postgres for audit/analysis,
// off the hot ack-processing path: Archive only enqueues, a background
// goroutine flushes on a size or time trigger, whichever comes first.
type Archiver struct {
	batchSize     int
	flushInterval time.Duration
	db            *gorm.DB
	ch            chan archiveRow
	done          chan struct{}
}

// NewArchiver connects to Postgres, migrates the archive schema, and
// starts the background batching loop.
func NewArchiver(cfg ArchiveConfig) (*Archiver, error) {
	dsn := "host=" + cfg.Host + " user=" + cfg.User + " password=" + cfg.Password +
		" dbname=" + cfg.Name + " port=" + cfg.Port + " sslmode=" + cfg.SSLMode

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ack archive store")
	}
	if err := db.AutoMigrate(&archiveRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate ack archive schema")
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 60 * time.Second
	}

	a := &Archiver{
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		db:            db,
		ch:            make(chan archiveRow, cfg.BufferSize),
		done:          make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// Archive enqueues one ack outcome for batch persistence. It never
// blocks the caller on the database: a full buffer drops the record
// with a warning rather than stalling the ack path.
func (a *Archiver) Archive(rec Record, status string) {
	row := toArchiveRow(rec, status)
	select {
	case a.ch <- row:
	default:
		logger.L().Warn("ack archive buffer full, dropping record", "message_id", rec.MessageID, "user_id", rec.UserID)
	}
}

func toArchiveRow(rec Record, status string) archiveRow {
	return archiveRow{
		MessageID:       rec.MessageID,
		UserID:          rec.UserID,
		AckType:         rec.AckType,
		AckStatus:       status,
		Timestamp:       rec.SentAt.Unix(),
		ImportanceLevel: int16(rec.Importance),
		ArchivedAt:      time.Now().Unix(),
	}
}

func (a *Archiver) run() {
	batch := make([]archiveRow, 0, a.batchSize)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case row, ok := <-a.ch:
			if !ok {
				a.flush(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= a.batchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.done:
			a.flush(batch)
			return
		}
	}
}

func (a *Archiver) flush(batch []archiveRow) {
	if len(batch) == 0 {
		return
	}
	err := a.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch).Error
	if err != nil {
		logger.L().Error("failed to flush ack archive batch", "count", len(batch), "error", err)
	}
}

// Close signals the background loop to flush the batch it has already
// taken off the buffer and stop. It returns without waiting for that
// flush, and rows still queued in the buffer are not written.
func (a *Archiver) Close() error {
	close(a.done)
	return nil
}
