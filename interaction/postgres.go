package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorflow/tutorflow/core"
)

// PostgresLog persists interaction entries in PostgreSQL. The primary key on
// turn_id enforces exactly-once append at the database level.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog connects, initializes the schema and returns the log.
func NewPostgresLog(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresLog{pool: pool}, nil
}

// NewPostgresLogFromPool wraps an existing pool (shared with the mastery
// store).
func NewPostgresLogFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresLog, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresLog{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS interaction_log (
		turn_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		type TEXT NOT NULL,
		concept_focus TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init interaction schema: %w", err)
	}
	return nil
}

// Append implements core.InteractionLog. A duplicate turn ID reports
// core.ErrDuplicateTurn without writing.
func (l *PostgresLog) Append(ctx context.Context, entry core.InteractionLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO interaction_log (turn_id, student_id, type, concept_focus, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (turn_id) DO NOTHING`,
		entry.TurnID, entry.StudentID, string(entry.Type), entry.ConceptFocus, string(entry.Outcome), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append interaction entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrDuplicateTurn
	}
	return nil
}

// Seen implements core.InteractionLog.
func (l *PostgresLog) Seen(ctx context.Context, turnID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM interaction_log WHERE turn_id=$1)`, turnID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check interaction entry: %w", err)
	}
	return exists, nil
}

// Close releases the underlying pool.
func (l *PostgresLog) Close() { l.pool.Close() }
