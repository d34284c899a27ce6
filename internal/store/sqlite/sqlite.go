package sqlite

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/publicai/gateway/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository is the sqlite-backed telemetry store.
type Repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New opens the database, runs pending migrations, and returns the store.
func New(dsn string, logger *zap.Logger) (*Repository, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// sqlite serializes writes; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db, logger: logger}, nil
}

func runMigrations(db *sqlx.DB, logger *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

func (r *Repository) InsertRequestLogs(ctx context.Context, logs []store.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO request_logs (
			id, inference_id, consumer_name, model, provider, status_code, streamed,
			prompt_tokens, completion_tokens, cost_nano_usd, latency_ms, created_at
		) VALUES (
			:id, :inference_id, :consumer_name, :model, :provider, :status_code, :streamed,
			:prompt_tokens, :completion_tokens, :cost_nano_usd, :latency_ms, :created_at
		)`, logs)
	if err != nil {
		return fmt.Errorf("failed to insert request logs: %w", err)
	}
	return nil
}

func (r *Repository) SpendByInferenceIDs(ctx context.Context, ids []string) (map[string]int64, error) {
	spend := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return spend, nil
	}

	query, args, err := sqlx.In(`
		SELECT inference_id, SUM(cost_nano_usd) AS total
		FROM request_logs
		WHERE inference_id IN (?)
		GROUP BY inference_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build spend query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spend: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan spend row: %w", err)
		}
		spend[id] = total
	}
	return spend, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// InMemoryDSN builds a DSN for an isolated in-memory database, used by tests.
func InMemoryDSN(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}
