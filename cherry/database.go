package cherry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUnixTime is an embeddable model with Unix timestamps (milliseconds)
// for creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// DBI defines the interface for database writes. Writes go through
// this so SQLite (which allows one writer) can serialize them.
type DBI interface {
	DB() *gorm.DB
	Create(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Save(ctx context.Context, value any, omit ...string) (rowsAffected int64, err error)
	Updates(ctx context.Context, model any, values any) (rowsAffected int64, err error)
	Delete(ctx context.Context, value any, conds ...any) (rowsAffected int64, err error)
	Transaction(
		ctx context.Context,
		fc func(tx *gorm.DB) error,
		opts ...*sql.TxOptions,
	) error
}

// database wraps a gorm connection. When enableConcurrentWrites is
// false, every write holds mu.
type database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

// NewDatabase returns a DBI backed by db. Concurrent writes should only
// be enabled for postgres.
func NewDatabase(db *gorm.DB, log *slog.Logger, enableConcurrentWrites bool) DBI {
	if log == nil {
		log = slog.Default()
	}
	return &database{
		db:                     db,
		logger:                 log.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *database) DB() *gorm.DB {
	return d.db
}

// begin takes the write lock (if needed) and applies the default
// operation timeout when ctx has no deadline
func (d *database) begin(ctx context.Context) (context.Context, func()) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
	}
	cancel := func() {}
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
	}
	return ctx, func() {
		cancel()
		if !d.enableConcurrentWrites {
			d.mu.Unlock()
		}
	}
}

func (d *database) Create(ctx context.Context, value any, omit ...string) (int64, error) {
	ctx, done := d.begin(ctx)
	defer done()

	db := d.db.WithContext(ctx)
	if len(omit) > 0 {
		db = db.Omit(omit...)
	}
	rv := db.Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Save(ctx context.Context, value any, omit ...string) (int64, error) {
	ctx, done := d.begin(ctx)
	defer done()

	db := d.db.WithContext(ctx)
	if len(omit) > 0 {
		db = db.Omit(omit...)
	}
	rv := db.Save(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Updates(ctx context.Context, model, values any) (int64, error) {
	ctx, done := d.begin(ctx)
	defer done()

	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	return rv.RowsAffected, rv.Error
}

func (d *database) Delete(ctx context.Context, value any, conds ...any) (int64, error) {
	ctx, done := d.begin(ctx)
	defer done()

	rv := d.db.WithContext(ctx).Delete(value, conds...)
	return rv.RowsAffected, rv.Error
}

func (d *database) Transaction(
	ctx context.Context,
	fc func(tx *gorm.DB) error,
	opts ...*sql.TxOptions,
) error {
	ctx, done := d.begin(ctx)
	defer done()

	return d.db.WithContext(ctx).Transaction(fc, opts...)
}

// migratedModels are created/updated by CreateDB and on startup
func migratedModels() []any {
	return []any{
		&RuntimeConfig{},
		&InteractionLog{},
		&Ticket{},
		&StoredDocument{},
	}
}

// CreateDB initializes and returns a GORM database connection based on
// the specified database type, migrating all models.
//
// databaseType must be 'sqlite' or 'postgres'. database is a connection
// string, or the SQLite file path.
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		defaultLogWriter,
		&tint.Options{
			Level:     DefaultDatabaseLogLevel,
			AddSource: true,
		},
	)

	dbLogger := slog.New(handler)
	dbLogger.InfoContext(
		ctx,
		"initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, newGORMLogger(handler, DefaultDatabaseSlowThreshold))
	if err != nil {
		return db, err
	}
	if err = migrate(ctx, db); err != nil {
		return db, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			return tx.Migrator().AutoMigrate(migratedModels()...)
		},
	)
}

// configureSQLite applies the connection limits and pragmas used for
// SQLite databases
func configureSQLite(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error getting database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
	sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
	sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)

	pragmaErrors := make([]error, 0, len(sqliteExecPragma))
	for _, p := range sqliteExecPragma {
		pragmaErrors = append(pragmaErrors, db.WithContext(ctx).Exec(p).Error)
	}
	return errors.Join(pragmaErrors...)
}

// getDB opens a GORM connection for databaseType ('sqlite' or 'postgres').
// For SQLite, the parent directory of the database file is created if
// it doesn't exist.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		if parentDir := filepath.Dir(database); parentDir != "" {
			if err := os.MkdirAll(parentDir, 0o755); err != nil {
				return nil, err
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
