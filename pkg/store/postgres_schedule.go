package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresSchedules persists scheduled deliveries.
type PostgresSchedules struct {
	pool *pgxpool.Pool
}

const scheduleColumns = `id, integration_id, tenant_id, trace_id, message_id, payload, mode,
	fire_at, first_occurrence, interval_ms, max_occurrences, end_at,
	occurrences_fired, status, created_at, claimed_at`

func (s *PostgresSchedules) Insert(ctx context.Context, sd *models.ScheduledDelivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_deliveries (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sd.ID, sd.IntegrationID, sd.TenantID, sd.TraceID, sd.MessageID, sd.Payload.JSON(), string(sd.Mode),
		sd.FireAt, sd.FirstOccurrence, sd.IntervalMs, sd.MaxOccurrences, sd.EndAt,
		sd.OccurrencesFired, string(sd.Status), sd.CreatedAt, sd.ClaimedAt,
	)
	return err
}

func (s *PostgresSchedules) Update(ctx context.Context, sd *models.ScheduledDelivery) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_deliveries SET
			fire_at = $2, occurrences_fired = $3, status = $4, claimed_at = $5
		WHERE id = $1`,
		sd.ID, sd.FireAt, sd.OccurrencesFired, string(sd.Status), sd.ClaimedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresSchedules) Get(ctx context.Context, id string) (*models.ScheduledDelivery, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_deliveries WHERE id = $1`, id)
	sd, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sd, err
}

// ClaimDue claims entries whose fireAt has passed. The fire_at guard in the
// inner select plus SKIP LOCKED keeps concurrent scheduler workers from
// double-firing an entry.
func (s *PostgresSchedules) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledDelivery, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE scheduled_deliveries sd
		SET claimed_at = $1
		FROM (
			SELECT id FROM scheduled_deliveries
			WHERE status IN ('PENDING', 'OVERDUE') AND fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE sd.id = due.id
		RETURNING `+qualified("sd", scheduleColumns),
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ScheduledDelivery
	for rows.Next() {
		sd, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

func (s *PostgresSchedules) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_deliveries
		SET status = 'CANCELLED'
		WHERE id = $1 AND status IN ('PENDING', 'OVERDUE')`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

func scanSchedule(row pgx.Row) (*models.ScheduledDelivery, error) {
	var sd models.ScheduledDelivery
	var mode, status string
	var payload []byte
	if err := row.Scan(
		&sd.ID, &sd.IntegrationID, &sd.TenantID, &sd.TraceID, &sd.MessageID, &payload, &mode,
		&sd.FireAt, &sd.FirstOccurrence, &sd.IntervalMs, &sd.MaxOccurrences, &sd.EndAt,
		&sd.OccurrencesFired, &status, &sd.CreatedAt, &sd.ClaimedAt,
	); err != nil {
		return nil, err
	}
	sd.Mode = models.ScheduleMode(mode)
	sd.Status = models.ScheduleStatus(status)
	var err error
	if sd.Payload, err = models.ParsePayload(payload); err != nil {
		return nil, err
	}
	return &sd, nil
}
