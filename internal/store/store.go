// Package store provides relational persistence for users, conversations,
// messages and attachments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const migrateLockID int64 = 61126112

// Config holds database connection settings.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements persistence on top of GORM. It owns its connection pool;
// construct it once at startup and Close it on shutdown.
type Store struct {
	db     *gorm.DB
	driver string
	logger *logger.Logger
}

// Open connects to the database. It does not touch the schema; call Migrate.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSN)
		cfg.Driver = DriverPostgres
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Store{db: db, driver: cfg.Driver, logger: log}, nil
}

// Migrate creates or upgrades the schema. It is safe to run on every start
// and against a partially migrated database: missing tables, columns,
// indexes and foreign keys are added, existing ones are left alone.
func (s *Store) Migrate(ctx context.Context) error {
	run := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ConversationModel{},
			&MessageModel{},
			&AttachmentModel{},
			&AttachmentLinkModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_conversations_active
			ON conversations (user_id, updated_at DESC)
			WHERE archived_at IS NULL`).Error; err != nil {
			return fmt.Errorf("create active conversations index: %w", err)
		}
		return nil
	}

	db := s.db.WithContext(ctx)
	if s.driver != DriverPostgres {
		return run(db)
	}
	return withMigrationLock(ctx, db, run)
}

// withMigrationLock serializes concurrent migrations from several replicas.
func withMigrationLock(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(context.Background(), conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("database closed", zap.String("driver", s.driver))
	}
	return nil
}

// now returns the store clock at the precision Postgres keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// translateError maps driver constraint failures to model.ConstraintError.
// uniqueConstraint names the constraint reported for unique violations.
func translateError(err error, uniqueConstraint string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &model.ConstraintError{Constraint: uniqueConstraint, Err: err}
		case "23503":
			return &model.ConstraintError{Constraint: model.ConstraintForeignKey, Err: err}
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &model.ConstraintError{Constraint: uniqueConstraint, Err: err}
		case sqlite3.ErrConstraintForeignKey:
			return &model.ConstraintError{Constraint: model.ConstraintForeignKey, Err: err}
		}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &model.ConstraintError{Constraint: uniqueConstraint, Err: err}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &model.ConstraintError{Constraint: model.ConstraintForeignKey, Err: err}
	}
	return err
}
