// Package store defines the repositories over the gateway's persisted state
// and provides PostgreSQL and in-memory implementations. All mutation
// discipline (CAS claims, token-cache bypass, signing rotation) lives here so
// callers never race on shared rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a CAS guard fails (row already claimed or in
// a state that forbids the transition).
var ErrConflict = errors.New("store: conflict")

// TokenCachePatch is a partial update of the persisted token cache. Applied
// under a per-integration row lock, bypassing the read cache.
type TokenCachePatch struct {
	Token       string
	ExpiresAt   *time.Time
	LastFetched *time.Time

	// Clear drops the cached token regardless of the other fields.
	Clear bool
}

// IntegrationStore persists integration configurations.
type IntegrationStore interface {
	GetByID(ctx context.Context, id string) (*models.IntegrationConfig, error)

	// ListForTenantsAndEvent returns active integrations owned by any of the
	// given tenants whose event type is the literal type or "*", in stable
	// (createdAt, id) order. Scope and exclusion filtering is the matcher's
	// job.
	ListForTenantsAndEvent(ctx context.Context, tenantIDs []int64, eventType string) ([]*models.IntegrationConfig, error)

	// ListScheduled returns active SCHEDULED-direction integrations in
	// stable (createdAt, id) order. The job runner's scan.
	ListScheduled(ctx context.Context) ([]*models.IntegrationConfig, error)

	Save(ctx context.Context, ic *models.IntegrationConfig) error

	// UpdateTokenCache patches the persisted token cache under a row lock.
	UpdateTokenCache(ctx context.Context, id string, patch TokenCachePatch) error

	// RotateSigningSecret adds a new primary secret, evicting the oldest
	// when the set is full. Returns the new secret.
	RotateSigningSecret(ctx context.Context, id string) (*models.SigningSecret, error)

	// RemoveSigningSecret drops one secret by value.
	RemoveSigningSecret(ctx context.Context, id string, secret string) error
}

// TenantStore reads the tenant hierarchy.
type TenantStore interface {
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
}

// AuditStore persists the event audit ledger.
type AuditStore interface {
	// Ingest inserts a PENDING row. Returns false when the (source, offset)
	// row already exists, the at-least-once duplicate case.
	Ingest(ctx context.Context, audit *models.EventAudit) (bool, error)

	// ClaimNext atomically claims up to limit PENDING rows in received
	// order, moving them to PROCESSING with claimedBy set.
	ClaimNext(ctx context.Context, claimedBy string, limit int) ([]*models.EventAudit, error)

	// Finalize moves a PROCESSING row to a terminal status.
	Finalize(ctx context.Context, source string, offset int64, status models.AuditStatus, skipCategory string) error

	// MarkStuck flips PROCESSING rows started before the threshold to STUCK
	// and returns them for alerting.
	MarkStuck(ctx context.Context, olderThan time.Time) ([]*models.EventAudit, error)

	// ReleaseStuck is the operator action putting a STUCK row back to
	// PENDING for re-claim.
	ReleaseStuck(ctx context.Context, source string, offset int64) error

	// MarkStuckByOwner flips PROCESSING rows whose claimedBy starts with the
	// given pod id to STUCK. Startup crash recovery; worker ids are
	// "<pod>-worker-<n>".
	MarkStuckByOwner(ctx context.Context, claimedBy string) (int, error)

	Get(ctx context.Context, source string, offset int64) (*models.EventAudit, error)
}

// ExecLogStore persists execution logs. Each trace has a single writer, so
// Save replaces the whole row.
type ExecLogStore interface {
	Save(ctx context.Context, log *models.ExecutionLog) error
	Get(ctx context.Context, traceID string) (*models.ExecutionLog, error)
	List(ctx context.Context, f ExecLogFilter) ([]*models.ExecutionLog, error)
}

// ExecLogFilter narrows execution log listings.
type ExecLogFilter struct {
	TenantID      int64
	IntegrationID string
	Status        models.ExecStatus
	Limit         int
}

// DLQStore persists failed deliveries.
type DLQStore interface {
	Insert(ctx context.Context, e *models.DLQEntry) error
	Update(ctx context.Context, e *models.DLQEntry) error
	Get(ctx context.Context, id string) (*models.DLQEntry, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f DLQFilter) ([]*models.DLQEntry, error)
	Stats(ctx context.Context) (map[string]int, error)

	// ClaimDue CASes pending entries whose nextRetryAt has passed to
	// retrying with a monotonic claimedAt, up to limit.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DLQEntry, error)

	// Claim CASes one entry pending→retrying. ErrConflict when it is not
	// pending.
	Claim(ctx context.Context, id string, now time.Time) (*models.DLQEntry, error)
}

// DLQFilter narrows DLQ listings.
type DLQFilter struct {
	TenantID      int64
	IntegrationID string
	Status        models.DLQStatus
	Category      models.ErrorCategory
	Limit         int
}

// ScheduleStore persists scheduled deliveries.
type ScheduleStore interface {
	Insert(ctx context.Context, sd *models.ScheduledDelivery) error
	Update(ctx context.Context, sd *models.ScheduledDelivery) error
	Get(ctx context.Context, id string) (*models.ScheduledDelivery, error)

	// ClaimDue claims entries whose fireAt has passed, guarding on status
	// and fireAt so concurrent workers cannot double-fire.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledDelivery, error)

	// Cancel moves a PENDING or OVERDUE entry to CANCELLED. ErrConflict
	// otherwise.
	Cancel(ctx context.Context, id string) error
}

// LookupStore reads per-tenant code-translation tables.
type LookupStore interface {
	Get(ctx context.Context, tenantID int64, lookupType, key string) (*models.LookupEntry, error)

	// Behavior returns the unmapped behavior configured for a table, walking
	// any row of (tenantID, type). Defaults to PASSTHROUGH.
	Behavior(ctx context.Context, tenantID int64, lookupType string) (models.UnmappedBehavior, string, error)
}

// CheckpointStore persists per-source ingest checkpoints.
type CheckpointStore interface {
	Get(ctx context.Context, source string) (int64, error)
	Set(ctx context.Context, source string, checkpoint int64) error
}

// SystemConfigStore persists deployment-wide key/value settings. The gateway
// treats the values as opaque; operators own them.
type SystemConfigStore interface {
	Get(ctx context.Context, key string) (*models.SystemConfig, error)
	Set(ctx context.Context, key string, value models.Payload) (*models.SystemConfig, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*models.SystemConfig, error)
}
