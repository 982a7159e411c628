// Package audit persists a provisioning trail for the KNOT gateway: one
// row per register, rollback, schema commit, and unregister event. It is
// an ambient concern, never consulted by the dispatcher's decisions —
// the trust store remains the single source of truth for session state.
package audit

import (
	"context"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventKind enumerates the provisioning events worth a durable record.
type EventKind string

const (
	EventRegistered     EventKind = "registered"
	EventRolledBack     EventKind = "rolled_back"
	EventSchemaCommitted EventKind = "schema_committed"
	EventUnregistered   EventKind = "unregistered"
)

// Event is one audit row.
type Event struct {
	ID        uint `gorm:"primarykey"`
	Handle    uint64
	DeviceID  uint64
	UUID      string
	Kind      EventKind
	CreatedAt time.Time
}

// Log appends provisioning events to a backing store.
type Log struct {
	db *gorm.DB
}

// ConnectorConfig names a PostgreSQL target for the audit log.
type ConnectorConfig struct {
	Host     string
	Username string
	DbName   string
	Password string
	SslMode  string
}

// LoadConfigFromEnv reads the POSTGRES_* variables conventionally used
// across the gateway's storage-backed components.
func LoadConfigFromEnv(ctx context.Context) ConnectorConfig {
	return ConnectorConfig{
		Host:     os.Getenv("POSTGRES_HOST"),
		Username: os.Getenv("POSTGRES_USER"),
		DbName:   os.Getenv("POSTGRES_DBNAME"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SslMode:  env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	}
}

// ConnectorFunc opens a gorm connection. New calls it once; the
// PostgreSQL connector retries internally until it connects, the SQLite
// connector does not retry.
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens an in-memory database, used for tests and for
// single-process deployments that don't need the audit log to survive a
// restart.
func NewSQLiteConnector(ctx context.Context) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger:          logger.Default.LogMode(logger.Silent),
			CreateBatchSize: 1000,
		})
		if err == nil {
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}
		return db, err
	}
}

// NewPostgreSQLConnector opens (and retries against) a PostgreSQL target,
// logging connection attempts through the gorm/slog bridge.
func NewPostgreSQLConnector(ctx context.Context, cfg ConnectorConfig) ConnectorFunc {
	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", cfg.Host, cfg.Username, cfg.DbName, cfg.SslMode, cfg.Password)
	log := logging.GetFromContext(ctx)

	return func() (*gorm.DB, error) {
		sublogger := log.With(slog.String("host", cfg.Host), slog.String("database", cfg.DbName))

		for {
			sublogger.Info("connecting to audit database host")

			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.New(&logadapter{logger: sublogger}, logger.Config{
					SlowThreshold:             time.Second,
					LogLevel:                  logger.Info,
					IgnoreRecordNotFoundError: false,
					Colorful:                  false,
				}),
			})
			if err != nil {
				sublogger.Error("failed to connect to audit database", "err", err.Error())
				time.Sleep(3 * time.Second)
				continue
			}
			return db, nil
		}
	}
}

type logadapter struct {
	logger *slog.Logger
}

func (a *logadapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

// New opens connector and runs the audit schema migration.
func New(connect ConnectorFunc) (*Log, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Record appends one event. Failures are logged by the caller, never
// surfaced to the dispatcher — a missed audit row must not fail a
// protocol exchange.
func (l *Log) Record(ctx context.Context, handle, deviceID uint64, uuid string, kind EventKind) error {
	return l.db.WithContext(ctx).Create(&Event{
		Handle:   handle,
		DeviceID: deviceID,
		UUID:     uuid,
		Kind:     kind,
	}).Error
}

// Recent returns the most recent n events, newest first, for the admin
// API's provisioning history view.
func (l *Log) Recent(ctx context.Context, n int) ([]Event, error) {
	var events []Event
	err := l.db.WithContext(ctx).Order("id desc").Limit(n).Find(&events).Error
	return events, err
}
