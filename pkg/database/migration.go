package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

var migrationFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// MigrationLogger adapts zap to migrate.Logger
type MigrationLogger struct {
	log *zap.Logger
}

func (l MigrationLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.log.Sugar().Debugf(format, v...)
}

// Migrate applies the embedded schema migrations to a Postgres database
func Migrate(db *sql.DB, log *zap.Logger) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = MigrationLogger{log: log}

	start := time.Now()
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		version, dirty, _ := m.Version()
		log.Error("Failed to apply migrations", zap.Uint("version", version), zap.Bool("dirty", dirty), zap.Error(err))
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, _, _ := m.Version()
	log.Info("Successfully applied migrations", zap.Uint("version", version), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// LatestVersion returns the highest embedded migration version
func LatestVersion() (uint, error) {
	return latestVersion(migrations, "migrations")
}

func latestVersion(fsys fs.FS, dir string) (uint, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}

	var latest uint64
	found := false
	for _, entry := range entries {
		matches := migrationFile.FindStringSubmatch(entry.Name())
		if entry.IsDir() || len(matches) < 2 {
			continue
		}
		version, err := strconv.ParseUint(matches[1], 10, 64)
		if err != nil {
			return 0, err
		}
		if version > latest {
			latest = version
		}
		found = true
	}
	if !found {
		return 0, errors.New("no migration files found")
	}
	return uint(latest), nil
}
