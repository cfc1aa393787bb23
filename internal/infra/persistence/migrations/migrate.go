// Package migrations wires golang-migrate execution for the pricestage schema.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	dbmigrations "github.com/coachpo/pricestage/db/migrations"
)

var errNotDirectory = errors.New("migrations path must be a directory")

// Observer is notified after every migration run.
type Observer interface {
	Observe(ctx context.Context, direction string, err error)
}

// Option configures a migration run.
type Option func(*runSettings)

type runSettings struct {
	logger   *log.Logger
	observer Observer
}

// WithLogger enables informational logging.
func WithLogger(logger *log.Logger) Option {
	return func(s *runSettings) {
		s.logger = logger
	}
}

// WithObserver reports run outcomes, typically to a metrics counter.
func WithObserver(observer Observer) Option {
	return func(s *runSettings) {
		s.observer = observer
	}
}

// Apply runs every pending migration found in migrationsDir. An empty
// migrationsDir uses the migrations embedded in the binary.
func Apply(ctx context.Context, dsn, migrationsDir string, opts ...Option) error {
	src, label, err := openSource(migrationsDir)
	if err != nil {
		return err
	}
	return run(ctx, dsn, src, label, "up", opts, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// Rollback reverts the given number of migration steps.
func Rollback(ctx context.Context, dsn, migrationsDir string, steps int, opts ...Option) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be >0")
	}
	src, label, err := openSource(migrationsDir)
	if err != nil {
		return err
	}
	return run(ctx, dsn, src, label, "down", opts, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

func run(ctx context.Context, dsn string, src source.Driver, label, direction string, opts []Option, step func(*migrate.Migrate) error) (err error) {
	var cfg runSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	logger := cfg.logger
	defer func() {
		if cfg.observer != nil {
			cfg.observer.Observe(ctx, direction, err)
		}
	}()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && logger != nil {
			logger.Printf("database migrations close: %v", cerr)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		_ = src.Close()
		return fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("pricestage", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if logger == nil {
			return
		}
		if sourceErr != nil {
			logger.Printf("database migrations source close: %v", sourceErr)
		}
		if dbErr != nil {
			logger.Printf("database migrations db close: %v", dbErr)
		}
	}()

	if logger != nil {
		logger.Printf("running database migrations: direction=%s source=%s", direction, label)
	}

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Printf("database migrations up-to-date")
			}
			return nil
		}
		return fmt.Errorf("%s migrations: %w", direction, err)
	}

	if logger != nil {
		logger.Printf("database migrations %s completed", direction)
	}
	return nil
}

func openSource(dir string) (source.Driver, string, error) {
	if strings.TrimSpace(dir) == "" {
		src, err := iofs.New(dbmigrations.Files, ".")
		if err != nil {
			return nil, "", fmt.Errorf("open embedded migrations: %w", err)
		}
		return src, "embedded", nil
	}

	resolved, err := resolveDir(dir)
	if err != nil {
		return nil, "", err
	}
	sourceURL := fileURL(resolved)
	src, err := source.Open(sourceURL)
	if err != nil {
		return nil, "", fmt.Errorf("open migrations source: %w", err)
	}
	return src, resolved, nil
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}
