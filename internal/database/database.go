package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLitePrefix selects the SQLite driver, e.g. "sqlite:threads.db"
const SQLitePrefix = "sqlite:"

// Pool defaults for postgres
const (
	DefaultMaxIdleConns    = 10
	DefaultMaxOpenConns    = 100
	DefaultConnMaxLifetime = time.Hour
	DefaultConnMaxIdleTime = 10 * time.Minute
)

// slowQuery is the threshold above which gorm logs a statement
const slowQuery = 500 * time.Millisecond

type options struct {
	maxIdle, maxOpen      int
	maxLifetime, maxIdleT time.Duration
	logger                *slog.Logger
}

// Option tunes Connect
type Option func(*options)

// WithPool overrides the postgres pool limits. SQLite ignores it.
func WithPool(maxIdle, maxOpen int, maxLifetime, maxIdleTime time.Duration) Option {
	return func(o *options) {
		o.maxIdle, o.maxOpen = maxIdle, maxOpen
		o.maxLifetime, o.maxIdleT = maxLifetime, maxIdleTime
	}
}

// WithLogger sends connection and gorm warnings to logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// dialector picks the gorm driver for databaseURL
func dialector(databaseURL string) (gorm.Dialector, bool) {
	if path, ok := strings.CutPrefix(databaseURL, SQLitePrefix); ok {
		return sqlite.Open(path), true
	}
	return postgres.Open(databaseURL), false
}

// Connect opens the database named by databaseURL: a postgres URL, or
// SQLitePrefix followed by a path or ":memory:". SQLite gets exactly one
// connection that never expires; an in-memory database lives only as long
// as its connection.
func Connect(databaseURL string, opts ...Option) (*gorm.DB, error) {
	o := options{
		maxIdle:     DefaultMaxIdleConns,
		maxOpen:     DefaultMaxOpenConns,
		maxLifetime: DefaultConnMaxLifetime,
		maxIdleT:    DefaultConnMaxIdleTime,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dial, isSQLite := dialector(databaseURL)
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.NewSlogLogger(o.logger, gormlogger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if isSQLite {
		o.maxIdle, o.maxOpen = 1, 1
		o.maxLifetime, o.maxIdleT = 0, 0
	}
	sqlDB.SetMaxIdleConns(o.maxIdle)
	sqlDB.SetMaxOpenConns(o.maxOpen)
	sqlDB.SetConnMaxLifetime(o.maxLifetime)
	sqlDB.SetConnMaxIdleTime(o.maxIdleT)

	o.logger.Info("connected to database",
		slog.String("driver", db.Dialector.Name()),
		slog.Int("max_open_conns", o.maxOpen))
	return db, nil
}

// Migrate creates or updates the threading schema
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Domain{},
		&models.Message{},
		&models.Thread{},
		&models.ThreadAssignment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Ping checks that the database answers
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
