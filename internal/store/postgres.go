package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/claimcheck/internal/model"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore persists batches and claims in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresStore wraps pool and ensures the schema exists
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// ExistingClaimIDs implements Store
func (s *PostgresStore) ExistingClaimIDs(ctx context.Context, tenantID string, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT claim_id FROM claims WHERE tenant_id = $1 AND claim_id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claim id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return out, nil
}

// BeginBatch implements Store
func (s *PostgresStore) BeginBatch(ctx context.Context, batch *model.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO claim_batches (batch_id, tenant_id, source_file, stage, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		batch.BatchID, batch.TenantID, batch.SourceFile, batch.Stage.String(), batch.StartedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	for _, c := range batch.Claims {
		record, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode claim %s: %w", c.ClaimID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO claims (id, tenant_id, claim_id, batch_id, row_index, status, paid_amount_aed, record)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), c.TenantID, c.ClaimID, c.BatchID, c.RowIndex, string(c.Status), c.PaidAmount, record)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return &model.IdentityCollisionError{Key: c.ClaimID, RowIndex: c.RowIndex}
			}
			return fmt.Errorf("insert claim %s: %w", c.ClaimID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// CompleteBatch implements Store. Claims and metrics commit in one transaction.
func (s *PostgresStore) CompleteBatch(ctx context.Context, batch *model.Batch) error {
	metrics, err := json.Marshal(batch.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range batch.Claims {
		record, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode claim %s: %w", c.ClaimID, err)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE claims
			    SET status = $3, error_type = $4, error_explanation = $5,
			        recommended_action = $6, record = $7, updated_at = NOW()
			  WHERE tenant_id = $1 AND claim_id = $2`,
			c.TenantID, c.ClaimID, string(c.Status), string(c.ErrorType),
			c.ErrorExplanation, c.RecommendedAction, record)
		if err != nil {
			return fmt.Errorf("update claim %s: %w", c.ClaimID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("claim %s: %w", c.ClaimID, model.ErrNotFound)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE claim_batches SET stage = $2, metrics = $3, completed_at = $4 WHERE batch_id = $1`,
		batch.BatchID, batch.Stage.String(), metrics, batch.CompletedAt)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batch.BatchID, model.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Batch implements Store
func (s *PostgresStore) Batch(ctx context.Context, batchID string) (*model.Batch, error) {
	var (
		b       model.Batch
		stage   string
		metrics []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT batch_id, tenant_id, source_file, stage, metrics, started_at, completed_at
		   FROM claim_batches WHERE batch_id = $1`, batchID).
		Scan(&b.BatchID, &b.TenantID, &b.SourceFile, &stage, &metrics, &b.StartedAt, &b.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	b.StageName = stage
	b.Stage = parseStage(stage)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &b.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT record FROM claims WHERE batch_id = $1 ORDER BY row_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		var c model.Claim
		if err := json.Unmarshal(record, &c); err != nil {
			return nil, fmt.Errorf("decode claim: %w", err)
		}
		b.Claims = append(b.Claims, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return &b, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func parseStage(name string) model.Stage {
	for st := model.StageIngested; st <= model.StagePersisted; st++ {
		if st.String() == name {
			return st
		}
	}
	return model.StageNone
}
