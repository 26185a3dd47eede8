package mastery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorflow/tutorflow/core"
)

// PostgresStore persists mastery rows in PostgreSQL. Writes are single-row
// upserts; no multi-row transactions are used.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, initializes the schema and returns the store.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool (shared with the
// interaction log) without re-running schema setup.
func NewPostgresStoreFromPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS concept_mastery (
			student_id TEXT NOT NULL,
			concept TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			decay_factor DOUBLE PRECISION NOT NULL,
			last_assessed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (student_id, concept)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_concept_mastery_student_score ON concept_mastery (student_id, score);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init mastery schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Get implements core.MasteryStore.
func (s *PostgresStore) Get(ctx context.Context, studentID, concept string) (core.ConceptMastery, error) {
	var row core.ConceptMastery
	err := s.pool.QueryRow(ctx,
		`SELECT student_id, concept, score, decay_factor, last_assessed_at
		 FROM concept_mastery WHERE student_id=$1 AND concept=$2`,
		studentID, concept,
	).Scan(&row.StudentID, &row.Concept, &row.Score, &row.DecayFactor, &row.LastAssessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ConceptMastery{}, core.ErrMasteryNotFound
	}
	if err != nil {
		return core.ConceptMastery{}, fmt.Errorf("get mastery row: %w", err)
	}
	return row, nil
}

// Put implements core.MasteryStore as an atomic single-row upsert.
func (s *PostgresStore) Put(ctx context.Context, row core.ConceptMastery) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO concept_mastery (student_id, concept, score, decay_factor, last_assessed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (student_id, concept) DO UPDATE
		 SET score=EXCLUDED.score, decay_factor=EXCLUDED.decay_factor, last_assessed_at=EXCLUDED.last_assessed_at`,
		row.StudentID, row.Concept, row.Score, row.DecayFactor, row.LastAssessedAt,
	)
	if err != nil {
		return fmt.Errorf("put mastery row: %w", err)
	}
	return nil
}

// List implements core.MasteryStore (ascending by score, weakest first).
func (s *PostgresStore) List(ctx context.Context, studentID string) ([]core.ConceptMastery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT student_id, concept, score, decay_factor, last_assessed_at
		 FROM concept_mastery WHERE student_id=$1 ORDER BY score ASC, concept ASC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list mastery rows: %w", err)
	}
	defer rows.Close()

	var result []core.ConceptMastery
	for rows.Next() {
		var row core.ConceptMastery
		if err := rows.Scan(&row.StudentID, &row.Concept, &row.Score, &row.DecayFactor, &row.LastAssessedAt); err != nil {
			return nil, fmt.Errorf("scan mastery row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery rows: %w", err)
	}
	return result, nil
}

// Pool exposes the underlying connection pool so other Postgres-backed
// stores can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }
