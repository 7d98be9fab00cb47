package db

import (
	"strings"
	"time"

	"github.com/habiliai/agentmarket/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type (
	Options struct {
		NowFunc func() time.Time
		Silent  bool
	}
	Option func(*Options)
)

func WithNowFunc(now func() time.Time) Option {
	return func(o *Options) {
		o.NowFunc = now
	}
}

func WithSilentLogger() Option {
	return func(o *Options) {
		o.Silent = true
	}
}

// OpenDB opens the database named by databaseUrl. postgres:// and
// postgresql:// URLs select PostgreSQL; anything else is a SQLite path
// (":memory:" and "file:" URIs included).
func OpenDB(databaseUrl string, opts ...Option) (*gorm.DB, error) {
	o := Options{
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}

	gormConfig := &gorm.Config{
		NowFunc: func() time.Time { return o.NowFunc().UTC() },
	}
	if o.Silent {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}

	if strings.HasPrefix(databaseUrl, "postgres://") || strings.HasPrefix(databaseUrl, "postgresql://") {
		db, err := gorm.Open(postgres.Open(databaseUrl), gormConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open postgres database")
		}
		return db, nil
	}

	dsn := databaseUrl
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database")
	}

	// SQLite has a single writer. One connection serializes every unit of
	// work, which is what the ledger's read-modify-write steps rely on.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get db")
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func CloseDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrapf(err, "failed to get db")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrapf(err, "failed to close db")
	}

	return nil
}
