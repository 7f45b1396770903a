/*
Package gormstore provides the transactional store behind the reservation
engine, built on gorm.

PURPOSE:
  Implements sales.TxStore for SQLite, PostgreSQL and MySQL. The engine's
  only coordination mechanism is this store's locking, so the same code
  is safe with several server instances sharing one database.

DIALECTS:
  postgres: LockUnit is SELECT ... FOR UPDATE on the unit row; units
            never block each other.
  mysql:    same row lock (InnoDB).
  sqlite:   gorm drops FOR UPDATE. Transactions are opened with
            BEGIN IMMEDIATE (_txlock=immediate), which takes the database
            write lock up front, so two transactions can never both pass
            the re-validation. Lock scope is the whole database, so
            reservations on different units serialize here; the
            per-unit lock scope holds only on postgres and mysql.
            SQLite is meant for development and tests.

STORAGE CONSTRAINTS:
  See migrate.go: unique unit location, one active reservation per unit,
  non-negative amounts, RESTRICT foreign keys.

USAGE:
  store, err := gormstore.Open(gormstore.Config{Driver: "sqlite", DSN: "./reservations.db"})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - sales/store.go: Interface definitions
  - models.go: Row types
  - migrate.go: Schema
*/
package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"github.com/warp/reservation-engine/sales"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// sqliteParams are appended to SQLite DSNs that don't set them.
var sqliteParams = []string{
	"_busy_timeout=5000",
	"_txlock=immediate",
	"_foreign_keys=on",
	"_journal_mode=WAL",
}

var mysqlParams = []string{
	"parseTime=true",
	"clientFoundRows=true",
}

// Config selects and tunes the database.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          logrus.FieldLogger
	// Tracing installs the otelgorm plugin.
	Tracing bool
}

// Store implements sales.TxStore. A Store returned to a WithTx callback is
// bound to that transaction.
type Store struct {
	db     *gorm.DB
	driver string
	inTx   bool
	log    logrus.FieldLogger
}

var _ sales.TxStore = (*Store)(nil)

// Open connects, tunes the pool and migrates the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger.WithField("component", "store")
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.Tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("install tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{db: db, driver: cfg.Driver, log: log}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.WithField("driver", cfg.Driver).Info("store ready")
	return s, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(sqliteDSN(dsn)), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(mysqlDSN(dsn)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// mysqlDSN makes RowsAffected count matched rows, so an update that
// leaves a row unchanged is not mistaken for a missing row.
func mysqlDSN(dsn string) string {
	for _, p := range mysqlParams {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// sqliteDSN adds the locking and journal parameters the store relies on.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "reservations.db"
	}
	var missing []string
	for _, p := range sqliteParams {
		key := p[:strings.Index(p, "=")+1]
		if !strings.Contains(dsn, key) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(missing, "&")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver reports the configured dialect.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, driver: s.driver, inTx: true, log: s.log})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
