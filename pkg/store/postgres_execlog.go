package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresExecLogs persists execution logs. Steps and snapshots are JSONB;
// each trace has a single writer so Save is a full upsert.
type PostgresExecLogs struct {
	pool *pgxpool.Pool
}

func (s *PostgresExecLogs) Save(ctx context.Context, l *models.ExecutionLog) error {
	steps, err := json.Marshal(l.Steps)
	if err != nil {
		return fmt.Errorf("encoding steps for trace %s: %w", l.TraceID, err)
	}
	var request, response []byte
	if l.Request != nil {
		if request, err = json.Marshal(l.Request); err != nil {
			return fmt.Errorf("encoding request snapshot: %w", err)
		}
	}
	if l.Response != nil {
		if response, err = json.Marshal(l.Response); err != nil {
			return fmt.Errorf("encoding response snapshot: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_logs (trace_id, message_id, direction, trigger_type, integration_id,
			tenant_id, status, started_at, finished_at, duration_ms, request, response, steps, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		ON CONFLICT (trace_id) DO UPDATE SET
			status      = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms,
			request     = EXCLUDED.request,
			response    = EXCLUDED.response,
			steps       = EXCLUDED.steps,
			error       = EXCLUDED.error`,
		l.TraceID, l.MessageID, string(l.Direction), string(l.TriggerType), l.IntegrationID,
		l.TenantID, string(l.Status), l.StartedAt, l.FinishedAt, l.DurationMs,
		request, response, steps, l.Error,
	)
	return err
}

const execLogColumns = `trace_id, message_id, direction, trigger_type, integration_id,
	tenant_id, status, started_at, finished_at, duration_ms, request, response, steps, error`

func (s *PostgresExecLogs) Get(ctx context.Context, traceID string) (*models.ExecutionLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+execLogColumns+` FROM execution_logs WHERE trace_id = $1`, traceID)
	l, err := scanExecLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (s *PostgresExecLogs) List(ctx context.Context, f ExecLogFilter) ([]*models.ExecutionLog, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+execLogColumns+`
		FROM execution_logs
		WHERE ($1 = 0 OR tenant_id = $1)
		  AND ($2 = '' OR integration_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY started_at DESC
		LIMIT $4`,
		f.TenantID, f.IntegrationID, string(f.Status), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ExecutionLog
	for rows.Next() {
		l, err := scanExecLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanExecLog(row pgx.Row) (*models.ExecutionLog, error) {
	var l models.ExecutionLog
	var direction, trigger, status string
	var request, response, steps []byte
	var errMsg *string
	if err := row.Scan(
		&l.TraceID, &l.MessageID, &direction, &trigger, &l.IntegrationID,
		&l.TenantID, &status, &l.StartedAt, &l.FinishedAt, &l.DurationMs,
		&request, &response, &steps, &errMsg,
	); err != nil {
		return nil, err
	}
	l.Direction = models.Direction(direction)
	l.TriggerType = models.TriggerType(trigger)
	l.Status = models.ExecStatus(status)
	if errMsg != nil {
		l.Error = *errMsg
	}
	if len(request) > 0 {
		if err := json.Unmarshal(request, &l.Request); err != nil {
			return nil, fmt.Errorf("decoding request snapshot: %w", err)
		}
	}
	if len(response) > 0 {
		if err := json.Unmarshal(response, &l.Response); err != nil {
			return nil, fmt.Errorf("decoding response snapshot: %w", err)
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &l.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps: %w", err)
		}
	}
	return &l, nil
}
