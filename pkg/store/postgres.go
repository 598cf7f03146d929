package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/sasya-arogya/engine/pkg/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresStore persists session state as JSONB rows. The durable backend
// for deployments that need sessions to survive restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the database and applies embedded migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Load returns the stored state for the session id, or ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("corrupt session state for %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save upserts the session row.
func (s *PostgresStore) Save(ctx context.Context, state *models.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET state = $2, updated_at = now()`,
		state.SessionID, raw)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Close closes the database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
