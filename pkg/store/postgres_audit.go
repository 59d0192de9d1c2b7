package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresAudit persists the event audit ledger.
type PostgresAudit struct {
	pool *pgxpool.Pool
}

const auditColumns = `source, source_offset, event_id, tenant_id, event_type, trace_id,
	received_at, status, started_at, finished_at, skip_category,
	payload_summary, payload_full, claimed_by, checkpoint_offset`

func (s *PostgresAudit) Ingest(ctx context.Context, a *models.EventAudit) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO event_audit (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source, source_offset) DO NOTHING`,
		a.Source, a.SourceOffset, a.EventID, a.TenantID, a.EventType, a.TraceID,
		a.ReceivedAt, string(a.Status), a.StartedAt, a.FinishedAt, nullable(a.SkipCategory),
		a.PayloadSummary.JSON(), payloadOrNil(a.PayloadFull), nullable(a.ClaimedBy), a.CheckpointOffset,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNext claims up to limit PENDING rows in received order using
// FOR UPDATE SKIP LOCKED so concurrent workers never block or double-claim.
func (s *PostgresAudit) ClaimNext(ctx context.Context, claimedBy string, limit int) ([]*models.EventAudit, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE event_audit ea
		SET status = 'PROCESSING', started_at = NOW(), claimed_by = $1
		FROM (
			SELECT source, source_offset
			FROM event_audit
			WHERE status = 'PENDING'
			ORDER BY received_at, source_offset
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE ea.source = due.source AND ea.source_offset = due.source_offset
		RETURNING `+qualified("ea", auditColumns),
		claimedBy, limit,
	)
	if err != nil {
		return nil, err
	}
	claimed, err := scanAudits(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *PostgresAudit) Finalize(ctx context.Context, source string, offset int64, status models.AuditStatus, skipCategory string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_audit
		SET status = $3, finished_at = NOW(), skip_category = NULLIF($4, '')
		WHERE source = $1 AND source_offset = $2 AND status = 'PROCESSING'`,
		source, offset, string(status), skipCategory,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresAudit) MarkStuck(ctx context.Context, olderThan time.Time) ([]*models.EventAudit, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE event_audit
		SET status = 'STUCK'
		WHERE status = 'PROCESSING' AND started_at < $1
		RETURNING `+auditColumns,
		olderThan,
	)
	if err != nil {
		return nil, err
	}
	return scanAudits(rows)
}

func (s *PostgresAudit) ReleaseStuck(ctx context.Context, source string, offset int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_audit
		SET status = 'PENDING', started_at = NULL, claimed_by = NULL
		WHERE source = $1 AND source_offset = $2 AND status = 'STUCK'`,
		source, offset,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresAudit) MarkStuckByOwner(ctx context.Context, claimedBy string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_audit
		SET status = 'STUCK'
		WHERE status = 'PROCESSING' AND claimed_by LIKE $1 || '%'`,
		claimedBy,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresAudit) Get(ctx context.Context, source string, offset int64) (*models.EventAudit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM event_audit WHERE source = $1 AND source_offset = $2`,
		source, offset,
	)
	a, err := scanAudit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAudits(rows pgx.Rows) ([]*models.EventAudit, error) {
	defer rows.Close()
	var out []*models.EventAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAudit(row pgx.Row) (*models.EventAudit, error) {
	var a models.EventAudit
	var status string
	var skipCategory, claimedBy *string
	var summary, full []byte
	if err := row.Scan(
		&a.Source, &a.SourceOffset, &a.EventID, &a.TenantID, &a.EventType, &a.TraceID,
		&a.ReceivedAt, &status, &a.StartedAt, &a.FinishedAt, &skipCategory,
		&summary, &full, &claimedBy, &a.CheckpointOffset,
	); err != nil {
		return nil, err
	}
	a.Status = models.AuditStatus(status)
	if skipCategory != nil {
		a.SkipCategory = *skipCategory
	}
	if claimedBy != nil {
		a.ClaimedBy = *claimedBy
	}
	var err error
	if a.PayloadSummary, err = models.ParsePayload(summary); err != nil {
		return nil, err
	}
	// payload_full is NULL for oversized rows; keep that nil so the worker
	// can tell "no payload stored" from "empty payload".
	if full != nil {
		if a.PayloadFull, err = models.ParsePayload(full); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// qualified prefixes every column in a comma-separated list with an alias,
// for RETURNING clauses on aliased updates.
func qualified(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func payloadOrNil(p models.Payload) []byte {
	if p == nil {
		return nil
	}
	return p.JSON()
}
