package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// Stores bundles the PostgreSQL repositories over one shared pool.
type Stores struct {
	Integrations IntegrationStore
	Tenants      TenantStore
	Audit        AuditStore
	ExecLogs     ExecLogStore
	DLQ          DLQStore
	Schedules    ScheduleStore
	Lookups      LookupStore
	Checkpoints  CheckpointStore
	SystemConfig SystemConfigStore
}

// NewPostgresStores builds all repositories over the pool. The integration
// store is wrapped in the TTL read cache.
func NewPostgresStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Integrations: NewCachedIntegrationStore(&PostgresIntegrations{pool: pool}, DefaultCacheTTL),
		Tenants:      &PostgresTenants{pool: pool},
		Audit:        &PostgresAudit{pool: pool},
		ExecLogs:     &PostgresExecLogs{pool: pool},
		DLQ:          &PostgresDLQ{pool: pool},
		Schedules:    &PostgresSchedules{pool: pool},
		Lookups:      &PostgresLookups{pool: pool},
		Checkpoints:  &PostgresCheckpoints{pool: pool},
		SystemConfig: &PostgresSystemConfig{pool: pool},
	}
}

// PostgresTenants reads the tenant hierarchy.
type PostgresTenants struct {
	pool *pgxpool.Pool
}

func (s *PostgresTenants) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(parent_id, 0), COALESCE(org_id, 0), name FROM tenants WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.ParentID, &t.OrgID, &t.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PostgresCheckpoints persists per-source ingest checkpoints.
type PostgresCheckpoints struct {
	pool *pgxpool.Pool
}

func (s *PostgresCheckpoints) Get(ctx context.Context, source string) (int64, error) {
	var cp int64
	err := s.pool.QueryRow(ctx,
		`SELECT checkpoint FROM source_checkpoints WHERE source = $1`, source,
	).Scan(&cp)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return cp, err
}

// Set advances the checkpoint. GREATEST keeps it non-decreasing even if a
// slow writer lands after a faster one.
func (s *PostgresCheckpoints) Set(ctx context.Context, source string, checkpoint int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_checkpoints (source, checkpoint, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source) DO UPDATE
		SET checkpoint = GREATEST(source_checkpoints.checkpoint, EXCLUDED.checkpoint),
		    updated_at = NOW()`,
		source, checkpoint,
	)
	return err
}

// PostgresLookups reads per-tenant code-translation tables.
type PostgresLookups struct {
	pool *pgxpool.Pool
}

func (s *PostgresLookups) Get(ctx context.Context, tenantID int64, lookupType, key string) (*models.LookupEntry, error) {
	var e models.LookupEntry
	var behavior, defaultValue *string
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, type, key, value, unmapped_behavior, default_value
		FROM lookup_tables
		WHERE tenant_id = $1 AND type = $2 AND key = $3`,
		tenantID, lookupType, key,
	).Scan(&e.TenantID, &e.Type, &e.Key, &e.Value, &behavior, &defaultValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if behavior != nil {
		e.UnmappedBehavior = models.UnmappedBehavior(*behavior)
	}
	if defaultValue != nil {
		e.DefaultValue = *defaultValue
	}
	return &e, nil
}

func (s *PostgresLookups) Behavior(ctx context.Context, tenantID int64, lookupType string) (models.UnmappedBehavior, string, error) {
	var behavior string
	var defaultValue *string
	err := s.pool.QueryRow(ctx, `
		SELECT unmapped_behavior, default_value
		FROM lookup_tables
		WHERE tenant_id = $1 AND type = $2
		LIMIT 1`,
		tenantID, lookupType,
	).Scan(&behavior, &defaultValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UnmappedPassthrough, "", nil
	}
	if err != nil {
		return "", "", err
	}
	dv := ""
	if defaultValue != nil {
		dv = *defaultValue
	}
	return models.UnmappedBehavior(behavior), dv, nil
}

// PostgresSystemConfig persists deployment-wide settings.
type PostgresSystemConfig struct {
	pool *pgxpool.Pool
}

func (s *PostgresSystemConfig) Get(ctx context.Context, key string) (*models.SystemConfig, error) {
	var sc models.SystemConfig
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, updated_at FROM system_config WHERE key = $1`, key,
	).Scan(&sc.Key, &raw, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sc.Value, err = models.ParsePayload(raw); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *PostgresSystemConfig) Set(ctx context.Context, key string, value models.Payload) (*models.SystemConfig, error) {
	var sc models.SystemConfig
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING key, value, updated_at`,
		key, value.JSON(),
	).Scan(&sc.Key, &raw, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sc.Value, err = models.ParsePayload(raw); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *PostgresSystemConfig) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM system_config WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresSystemConfig) List(ctx context.Context) ([]*models.SystemConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value, updated_at FROM system_config ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SystemConfig
	for rows.Next() {
		var sc models.SystemConfig
		var raw []byte
		if err := rows.Scan(&sc.Key, &raw, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		if sc.Value, err = models.ParsePayload(raw); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}
