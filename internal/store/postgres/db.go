package postgres

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
)

// Store implements chat.Store on Postgres through gorm.
type Store struct {
	db             *gorm.DB
	probeTimeout   time.Duration
	migrateTimeout time.Duration
}

// New opens a connection pool. No connection is attempted until first use, so the
// service starts while Postgres is still down and recovers once it comes up.
func New(cfg config.DatabaseConfig) (*Store, error) {
	return open(postgres.Open(cfg.URL), cfg)
}

func open(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	var level LogLevel
	if err := level.Set(cfg.LogLevel); err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.Default.LogMode(logger.LogLevel(level)),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{
		db:             db,
		probeTimeout:   cfg.ProbeTimeout,
		migrateTimeout: cfg.MigrateTimeout,
	}, nil
}

// Ping runs a trivial query bounded by the probe timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Debug("closing database pool")
	return sqlDB.Close()
}

// LogLevel is the gorm logger verbosity, usable as a pflag value.
type LogLevel logger.LogLevel

const (
	LogLevelInfo   = "info"
	LogLevelWarn   = "warn"
	LogLevelError  = "error"
	LogLevelSilent = "silent"
)

func (l *LogLevel) String() string {
	switch *l {
	case LogLevel(logger.Warn):
		return LogLevelWarn
	case LogLevel(logger.Error):
		return LogLevelError
	case LogLevel(logger.Silent):
		return LogLevelSilent
	}
	return LogLevelInfo
}

func (l *LogLevel) Set(v string) error {
	switch v {
	case LogLevelInfo:
		*l = LogLevel(logger.Info)
	case LogLevelWarn, "":
		*l = LogLevel(logger.Warn)
	case LogLevelError:
		*l = LogLevel(logger.Error)
	case LogLevelSilent:
		*l = LogLevel(logger.Silent)
	default:
		return fmt.Errorf("unknown gorm log level: %s", v)
	}
	return nil
}

func (l *LogLevel) Type() string {
	return "logLevel"
}
