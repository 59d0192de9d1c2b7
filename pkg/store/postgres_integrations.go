package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresIntegrations persists integration configs as a JSONB document with
// extracted match columns (tenant, event type, direction, active).
type PostgresIntegrations struct {
	pool *pgxpool.Pool
}

func (s *PostgresIntegrations) GetByID(ctx context.Context, id string) (*models.IntegrationConfig, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT config FROM integration_configs WHERE id = $1`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeConfig(raw)
}

func (s *PostgresIntegrations) ListForTenantsAndEvent(ctx context.Context, tenantIDs []int64, eventType string) ([]*models.IntegrationConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT config
		FROM integration_configs
		WHERE tenant_id = ANY($1)
		  AND is_active
		  AND (event_type = $2 OR event_type = '*')
		ORDER BY created_at, id`,
		tenantIDs, eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.IntegrationConfig
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ic, err := decodeConfig(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}

func (s *PostgresIntegrations) ListScheduled(ctx context.Context) ([]*models.IntegrationConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT config
		FROM integration_configs
		WHERE direction = 'SCHEDULED' AND is_active
		ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.IntegrationConfig
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ic, err := decodeConfig(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ic)
	}
	return out, rows.Err()
}

func (s *PostgresIntegrations) Save(ctx context.Context, ic *models.IntegrationConfig) error {
	if err := ic.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if ic.CreatedAt.IsZero() {
		ic.CreatedAt = now
	}
	ic.UpdatedAt = now

	raw, err := json.Marshal(ic)
	if err != nil {
		return fmt.Errorf("encoding integration %s: %w", ic.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO integration_configs (id, tenant_id, config, event_type, direction, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id  = EXCLUDED.tenant_id,
			config     = EXCLUDED.config,
			event_type = EXCLUDED.event_type,
			direction  = EXCLUDED.direction,
			is_active  = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		ic.ID, ic.TenantID, raw, ic.EventType, string(ic.Direction), ic.IsActive, ic.CreatedAt, ic.UpdatedAt,
	)
	return err
}

// UpdateTokenCache patches the persisted token cache inside a transaction
// holding the row lock. Readers of the regular config may be up to a cache
// TTL stale; token fields must not be, so they go through this path only.
func (s *PostgresIntegrations) UpdateTokenCache(ctx context.Context, id string, patch TokenCachePatch) error {
	return s.withLockedConfig(ctx, id, func(ic *models.IntegrationConfig) error {
		applyTokenPatch(&ic.Auth, patch)
		return nil
	})
}

func (s *PostgresIntegrations) RotateSigningSecret(ctx context.Context, id string) (*models.SigningSecret, error) {
	newSecret := &models.SigningSecret{
		Secret:    uuid.NewString(),
		Primary:   true,
		CreatedAt: time.Now(),
	}
	err := s.withLockedConfig(ctx, id, func(ic *models.IntegrationConfig) error {
		ic.Signing.Secrets = rotateSecrets(ic.Signing.Secrets, *newSecret)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newSecret, nil
}

func (s *PostgresIntegrations) RemoveSigningSecret(ctx context.Context, id string, secret string) error {
	return s.withLockedConfig(ctx, id, func(ic *models.IntegrationConfig) error {
		ic.Signing.Secrets = removeSecret(ic.Signing.Secrets, secret)
		return nil
	})
}

// withLockedConfig runs a read-modify-write of the config document under
// SELECT ... FOR UPDATE.
func (s *PostgresIntegrations) withLockedConfig(ctx context.Context, id string, mutate func(*models.IntegrationConfig) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT config FROM integration_configs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	ic, err := decodeConfig(raw)
	if err != nil {
		return err
	}
	if err := mutate(ic); err != nil {
		return err
	}
	ic.UpdatedAt = time.Now()

	updated, err := json.Marshal(ic)
	if err != nil {
		return fmt.Errorf("encoding integration %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE integration_configs SET config = $2, updated_at = NOW() WHERE id = $1`,
		id, updated,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func decodeConfig(raw []byte) (*models.IntegrationConfig, error) {
	var ic models.IntegrationConfig
	if err := json.Unmarshal(raw, &ic); err != nil {
		return nil, fmt.Errorf("decoding integration config: %w", err)
	}
	return &ic, nil
}

// applyTokenPatch mutates the auth spec's persisted token-cache fields.
func applyTokenPatch(auth *models.AuthSpec, patch TokenCachePatch) {
	if patch.Clear {
		auth.CachedToken = ""
		auth.TokenExpiresAt = nil
		auth.TokenLastFetched = nil
		return
	}
	if patch.Token != "" {
		auth.CachedToken = patch.Token
	}
	if patch.ExpiresAt != nil {
		auth.TokenExpiresAt = patch.ExpiresAt
	}
	if patch.LastFetched != nil {
		auth.TokenLastFetched = patch.LastFetched
	}
}

// rotateSecrets prepends the new primary secret, demotes the rest, and trims
// the oldest beyond the rotation limit.
func rotateSecrets(secrets []models.SigningSecret, next models.SigningSecret) []models.SigningSecret {
	out := make([]models.SigningSecret, 0, len(secrets)+1)
	out = append(out, next)
	for _, s := range secrets {
		s.Primary = false
		out = append(out, s)
	}
	if len(out) > models.MaxSigningSecrets {
		// Secrets are newest-first; drop the tail.
		out = out[:models.MaxSigningSecrets]
	}
	return out
}

func removeSecret(secrets []models.SigningSecret, secret string) []models.SigningSecret {
	out := secrets[:0]
	for _, s := range secrets {
		if s.Secret != secret {
			out = append(out, s)
		}
	}
	return out
}
