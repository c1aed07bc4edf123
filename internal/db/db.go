// internal/db/db.go
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rovshanmuradov/tipstark/pkg/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	connectAttempts = 30
	connectDelay    = 2 * time.Second
)

// Store is the postgres-backed RemoteStore.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to databaseURL, retrying while the database starts up,
// and applies pending migrations.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var gdb *gorm.DB
	err := utils.Retry(ctx, connectAttempts, connectDelay, logger, func() error {
		var err error
		gdb, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database after %d attempts: %w", connectAttempts, err)
	}

	if err := runMigrations(databaseURL, logger); err != nil {
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &Store{db: gdb, logger: logger}, nil
}

// New wraps an existing connection without running migrations.
func New(gdb *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: gdb, logger: logger}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func runMigrations(databaseURL string, logger *zap.Logger) error {
	logger.Info("Starting migrations")

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error reading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("error initializing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations completed successfully", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
