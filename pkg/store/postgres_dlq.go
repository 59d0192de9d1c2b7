package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresDLQ persists failed deliveries.
type PostgresDLQ struct {
	pool *pgxpool.Pool
}

const dlqColumns = `id, trace_id, execution_log_id, integration_id, tenant_id, direction,
	message_id, payload, error, retry_strategy, retry_count, max_retries, next_retry_at,
	resume_action_index, status, resolution, created_at, last_attempt_at, claimed_at`

func (s *PostgresDLQ) Insert(ctx context.Context, e *models.DLQEntry) error {
	errDetail, resolution, err := encodeDLQ(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO failed_deliveries (`+dlqColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		e.ID, e.TraceID, e.ExecutionLogID, e.IntegrationID, e.TenantID, string(e.Direction),
		e.MessageID, e.Payload.JSON(), errDetail, string(e.RetryStrategy), e.RetryCount, e.MaxRetries, e.NextRetryAt,
		e.ResumeActionIndex, string(e.Status), resolution, e.CreatedAt, e.LastAttemptAt, e.ClaimedAt,
	)
	return err
}

func (s *PostgresDLQ) Update(ctx context.Context, e *models.DLQEntry) error {
	errDetail, resolution, err := encodeDLQ(e)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE failed_deliveries SET
			error = $2, retry_strategy = $3, retry_count = $4, max_retries = $5,
			next_retry_at = $6, resume_action_index = $7, status = $8, resolution = $9,
			last_attempt_at = $10, claimed_at = $11
		WHERE id = $1`,
		e.ID, errDetail, string(e.RetryStrategy), e.RetryCount, e.MaxRetries,
		e.NextRetryAt, e.ResumeActionIndex, string(e.Status), resolution,
		e.LastAttemptAt, e.ClaimedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDLQ) Get(ctx context.Context, id string) (*models.DLQEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dlqColumns+` FROM failed_deliveries WHERE id = $1`, id)
	e, err := scanDLQ(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresDLQ) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM failed_deliveries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDLQ) List(ctx context.Context, f DLQFilter) ([]*models.DLQEntry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+dlqColumns+`
		FROM failed_deliveries
		WHERE ($1 = 0 OR tenant_id = $1)
		  AND ($2 = '' OR integration_id = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR error ->> 'category' = $4)
		ORDER BY created_at DESC
		LIMIT $5`,
		f.TenantID, f.IntegrationID, string(f.Status), string(f.Category), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresDLQ) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM failed_deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ClaimDue CASes due pending entries to retrying. SKIP LOCKED keeps
// concurrent DLQ workers from claiming the same entry.
func (s *PostgresDLQ) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DLQEntry, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE failed_deliveries fd
		SET status = 'retrying', claimed_at = $1
		FROM (
			SELECT id FROM failed_deliveries
			WHERE status = 'pending' AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE fd.id = due.id
		RETURNING `+qualified("fd", dlqColumns),
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresDLQ) Claim(ctx context.Context, id string, now time.Time) (*models.DLQEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE failed_deliveries
		SET status = 'retrying', claimed_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+dlqColumns,
		id, now,
	)
	e, err := scanDLQ(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish missing from non-pending for the API surface.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return e, err
}

func encodeDLQ(e *models.DLQEntry) (errDetail, resolution []byte, err error) {
	if errDetail, err = json.Marshal(e.Error); err != nil {
		return nil, nil, fmt.Errorf("encoding DLQ error detail: %w", err)
	}
	if e.Resolution != nil {
		if resolution, err = json.Marshal(e.Resolution); err != nil {
			return nil, nil, fmt.Errorf("encoding DLQ resolution: %w", err)
		}
	}
	return errDetail, resolution, nil
}

func scanDLQ(row pgx.Row) (*models.DLQEntry, error) {
	var e models.DLQEntry
	var direction, strategy, status string
	var payload, errDetail, resolution []byte
	if err := row.Scan(
		&e.ID, &e.TraceID, &e.ExecutionLogID, &e.IntegrationID, &e.TenantID, &direction,
		&e.MessageID, &payload, &errDetail, &strategy, &e.RetryCount, &e.MaxRetries, &e.NextRetryAt,
		&e.ResumeActionIndex, &status, &resolution, &e.CreatedAt, &e.LastAttemptAt, &e.ClaimedAt,
	); err != nil {
		return nil, err
	}
	e.Direction = models.Direction(direction)
	e.RetryStrategy = models.RetryStrategy(strategy)
	e.Status = models.DLQStatus(status)
	var err error
	if e.Payload, err = models.ParsePayload(payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errDetail, &e.Error); err != nil {
		return nil, fmt.Errorf("decoding DLQ error detail: %w", err)
	}
	if len(resolution) > 0 {
		if err := json.Unmarshal(resolution, &e.Resolution); err != nil {
			return nil, fmt.Errorf("decoding DLQ resolution: %w", err)
		}
	}
	return &e, nil
}
