package store

import (
	"context"
	"fmt"
	"time"

	"github.com/driftkv/driftkv/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresHintStore implements HintStore on PostgreSQL, for deployments
// that need hints to survive coordinator restarts. The seq column keeps
// FIFO order stable even when enqueue timestamps collide.
type PostgresHintStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHintStore connects to PostgreSQL and ensures the hints
// table exists.
func NewPostgresHintStore(ctx context.Context, host string, port int, database, user, password string, maxConns int) (*PostgresHintStore, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d",
		user, password, host, port, database, maxConns)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresHintStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresHintStore) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS hints (
			seq            BIGSERIAL PRIMARY KEY,
			hint_id        TEXT NOT NULL UNIQUE,
			target_node_id TEXT NOT NULL,
			key            TEXT NOT NULL,
			value          BYTEA NOT NULL,
			enqueued_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS hints_target_idx ON hints (target_node_id, seq);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create hints schema: %w", err)
	}
	return nil
}

// StoreHint stores a hint for a failed write.
func (s *PostgresHintStore) StoreHint(ctx context.Context, hint *model.Hint) error {
	query := `
		INSERT INTO hints (hint_id, target_node_id, key, value, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		hint.HintID,
		hint.TargetNodeID,
		hint.Key,
		hint.Value,
		hint.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store hint: %w", err)
	}
	return nil
}

// HintsForNode retrieves up to limit hints for a target in FIFO order.
func (s *PostgresHintStore) HintsForNode(ctx context.Context, targetNodeID string, limit int) ([]*model.Hint, error) {
	query := `
		SELECT hint_id, target_node_id, key, value, enqueued_at
		FROM hints
		WHERE target_node_id = $1
		ORDER BY seq ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, targetNodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get hints: %w", err)
	}
	defer rows.Close()

	hints := make([]*model.Hint, 0)
	for rows.Next() {
		var hint model.Hint
		if err := rows.Scan(
			&hint.HintID,
			&hint.TargetNodeID,
			&hint.Key,
			&hint.Value,
			&hint.EnqueuedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hint: %w", err)
		}
		hints = append(hints, &hint)
	}
	return hints, rows.Err()
}

// DeleteHint deletes a specific hint.
func (s *PostgresHintStore) DeleteHint(ctx context.Context, hintID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM hints WHERE hint_id = $1`, hintID)
	if err != nil {
		return fmt.Errorf("failed to delete hint: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("hint %s not found", hintID)
	}
	return nil
}

// DeleteHintsForNode deletes all hints for a target.
func (s *PostgresHintStore) DeleteHintsForNode(ctx context.Context, targetNodeID string) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM hints WHERE target_node_id = $1`, targetNodeID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete hints for node: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// HintCount returns the number of pending hints for a target.
func (s *PostgresHintStore) HintCount(ctx context.Context, targetNodeID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hints WHERE target_node_id = $1`, targetNodeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count hints: %w", err)
	}
	return count, nil
}

// Targets returns the node IDs with pending hints.
func (s *PostgresHintStore) Targets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT target_node_id FROM hints`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hint targets: %w", err)
	}
	defer rows.Close()

	targets := make([]string, 0)
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan hint target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresHintStore) Close() error {
	s.pool.Close()
	return nil
}
