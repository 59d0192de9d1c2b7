package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// NewMemoryStores builds a full in-memory Stores bundle. Used by tests and
// single-process development runs; semantics mirror the Postgres
// repositories including the CAS guards.
func NewMemoryStores() *Stores {
	return &Stores{
		Integrations: NewMemoryIntegrations(),
		Tenants:      NewMemoryTenants(),
		Audit:        NewMemoryAudit(),
		ExecLogs:     NewMemoryExecLogs(),
		DLQ:          NewMemoryDLQ(),
		Schedules:    NewMemorySchedules(),
		Lookups:      NewMemoryLookups(),
		Checkpoints:  NewMemoryCheckpoints(),
		SystemConfig: NewMemorySystemConfig(),
	}
}

// --- integrations ---

// MemoryIntegrations is the in-memory IntegrationStore.
type MemoryIntegrations struct {
	mu      sync.Mutex
	configs map[string]*models.IntegrationConfig
}

func NewMemoryIntegrations() *MemoryIntegrations {
	return &MemoryIntegrations{configs: make(map[string]*models.IntegrationConfig)}
}

func (s *MemoryIntegrations) GetByID(_ context.Context, id string) (*models.IntegrationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ic, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ic
	return &cp, nil
}

func (s *MemoryIntegrations) ListForTenantsAndEvent(_ context.Context, tenantIDs []int64, eventType string) ([]*models.IntegrationConfig, error) {
	tenants := make(map[int64]bool, len(tenantIDs))
	for _, id := range tenantIDs {
		tenants[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.IntegrationConfig
	for _, ic := range s.configs {
		if !ic.IsActive || !tenants[ic.TenantID] {
			continue
		}
		if ic.EventType != "*" && ic.EventType != eventType {
			continue
		}
		cp := *ic
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryIntegrations) ListScheduled(_ context.Context) ([]*models.IntegrationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.IntegrationConfig
	for _, ic := range s.configs {
		if !ic.IsActive || ic.Direction != models.DirectionScheduled {
			continue
		}
		cp := *ic
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryIntegrations) Save(_ context.Context, ic *models.IntegrationConfig) error {
	if err := ic.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if ic.CreatedAt.IsZero() {
		ic.CreatedAt = now
	}
	ic.UpdatedAt = now
	cp := *ic
	s.configs[ic.ID] = &cp
	return nil
}

func (s *MemoryIntegrations) UpdateTokenCache(_ context.Context, id string, patch TokenCachePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ic, ok := s.configs[id]
	if !ok {
		return ErrNotFound
	}
	applyTokenPatch(&ic.Auth, patch)
	return nil
}

func (s *MemoryIntegrations) RotateSigningSecret(_ context.Context, id string) (*models.SigningSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ic, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := models.SigningSecret{Secret: uuid.NewString(), Primary: true, CreatedAt: time.Now()}
	ic.Signing.Secrets = rotateSecrets(ic.Signing.Secrets, next)
	return &next, nil
}

func (s *MemoryIntegrations) RemoveSigningSecret(_ context.Context, id string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ic, ok := s.configs[id]
	if !ok {
		return ErrNotFound
	}
	ic.Signing.Secrets = removeSecret(ic.Signing.Secrets, secret)
	return nil
}

// --- tenants ---

// MemoryTenants is the in-memory TenantStore.
type MemoryTenants struct {
	mu      sync.RWMutex
	tenants map[int64]*models.Tenant
}

func NewMemoryTenants() *MemoryTenants {
	return &MemoryTenants{tenants: make(map[int64]*models.Tenant)}
}

// Put registers a tenant.
func (s *MemoryTenants) Put(t *models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
}

func (s *MemoryTenants) GetByID(_ context.Context, id int64) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// --- audit ---

type auditKey struct {
	source string
	offset int64
}

// MemoryAudit is the in-memory AuditStore.
type MemoryAudit struct {
	mu   sync.Mutex
	rows map[auditKey]*models.EventAudit
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{rows: make(map[auditKey]*models.EventAudit)}
}

func (s *MemoryAudit) Ingest(_ context.Context, a *models.EventAudit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := auditKey{a.Source, a.SourceOffset}
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	cp := *a
	s.rows[key] = &cp
	return true, nil
}

func (s *MemoryAudit) ClaimNext(_ context.Context, claimedBy string, limit int) ([]*models.EventAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.EventAudit
	for _, a := range s.rows {
		if a.Status == models.AuditPending {
			pending = append(pending, a)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].ReceivedAt.Equal(pending[j].ReceivedAt) {
			return pending[i].ReceivedAt.Before(pending[j].ReceivedAt)
		}
		return pending[i].SourceOffset < pending[j].SourceOffset
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now()
	out := make([]*models.EventAudit, 0, len(pending))
	for _, a := range pending {
		a.Status = models.AuditProcessing
		a.StartedAt = &now
		a.ClaimedBy = claimedBy
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryAudit) Finalize(_ context.Context, source string, offset int64, status models.AuditStatus, skipCategory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[auditKey{source, offset}]
	if !ok {
		return ErrNotFound
	}
	if a.Status != models.AuditProcessing {
		return ErrConflict
	}
	now := time.Now()
	a.Status = status
	a.FinishedAt = &now
	a.SkipCategory = skipCategory
	return nil
}

func (s *MemoryAudit) MarkStuck(_ context.Context, olderThan time.Time) ([]*models.EventAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []*models.EventAudit
	for _, a := range s.rows {
		if a.Status == models.AuditProcessing && a.StartedAt != nil && a.StartedAt.Before(olderThan) {
			a.Status = models.AuditStuck
			cp := *a
			stuck = append(stuck, &cp)
		}
	}
	return stuck, nil
}

func (s *MemoryAudit) ReleaseStuck(_ context.Context, source string, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[auditKey{source, offset}]
	if !ok {
		return ErrNotFound
	}
	if a.Status != models.AuditStuck {
		return ErrConflict
	}
	a.Status = models.AuditPending
	a.StartedAt = nil
	a.ClaimedBy = ""
	return nil
}

func (s *MemoryAudit) MarkStuckByOwner(_ context.Context, claimedBy string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.rows {
		if a.Status == models.AuditProcessing && strings.HasPrefix(a.ClaimedBy, claimedBy) {
			a.Status = models.AuditStuck
			n++
		}
	}
	return n, nil
}

func (s *MemoryAudit) Get(_ context.Context, source string, offset int64) (*models.EventAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[auditKey{source, offset}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// --- execution logs ---

// MemoryExecLogs is the in-memory ExecLogStore.
type MemoryExecLogs struct {
	mu   sync.Mutex
	logs map[string]*models.ExecutionLog
}

func NewMemoryExecLogs() *MemoryExecLogs {
	return &MemoryExecLogs{logs: make(map[string]*models.ExecutionLog)}
}

func (s *MemoryExecLogs) Save(_ context.Context, l *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	cp.Steps = append([]models.Step(nil), l.Steps...)
	s.logs[l.TraceID] = &cp
	return nil
}

func (s *MemoryExecLogs) Get(_ context.Context, traceID string) (*models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[traceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	cp.Steps = append([]models.Step(nil), l.Steps...)
	return &cp, nil
}

func (s *MemoryExecLogs) List(_ context.Context, f ExecLogFilter) ([]*models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ExecutionLog
	for _, l := range s.logs {
		if f.TenantID != 0 && l.TenantID != f.TenantID {
			continue
		}
		if f.IntegrationID != "" && l.IntegrationID != f.IntegrationID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		cp := *l
		cp.Steps = append([]models.Step(nil), l.Steps...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- DLQ ---

// MemoryDLQ is the in-memory DLQStore.
type MemoryDLQ struct {
	mu      sync.Mutex
	entries map[string]*models.DLQEntry
}

func NewMemoryDLQ() *MemoryDLQ {
	return &MemoryDLQ{entries: make(map[string]*models.DLQEntry)}
}

func (s *MemoryDLQ) Insert(_ context.Context, e *models.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryDLQ) Update(_ context.Context, e *models.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryDLQ) Get(_ context.Context, id string) (*models.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryDLQ) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryDLQ) List(_ context.Context, f DLQFilter) ([]*models.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DLQEntry
	for _, e := range s.entries {
		if f.TenantID != 0 && e.TenantID != f.TenantID {
			continue
		}
		if f.IntegrationID != "" && e.IntegrationID != f.IntegrationID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Category != "" && e.Error.Category != f.Category {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryDLQ) Stats(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]int{}
	for _, e := range s.entries {
		stats[string(e.Status)]++
	}
	return stats, nil
}

func (s *MemoryDLQ) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.DLQEntry
	for _, e := range s.entries {
		if e.Status == models.DLQPending && !e.NextRetryAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.DLQEntry, 0, len(due))
	for _, e := range due {
		e.Status = models.DLQRetrying
		t := now
		e.ClaimedAt = &t
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryDLQ) Claim(_ context.Context, id string, now time.Time) (*models.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != models.DLQPending {
		return nil, ErrConflict
	}
	e.Status = models.DLQRetrying
	t := now
	e.ClaimedAt = &t
	cp := *e
	return &cp, nil
}

// --- schedules ---

// MemorySchedules is the in-memory ScheduleStore.
type MemorySchedules struct {
	mu      sync.Mutex
	entries map[string]*models.ScheduledDelivery
}

func NewMemorySchedules() *MemorySchedules {
	return &MemorySchedules{entries: make(map[string]*models.ScheduledDelivery)}
}

func (s *MemorySchedules) Insert(_ context.Context, sd *models.ScheduledDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sd
	s.entries[sd.ID] = &cp
	return nil
}

func (s *MemorySchedules) Update(_ context.Context, sd *models.ScheduledDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sd.ID]; !ok {
		return ErrNotFound
	}
	cp := *sd
	s.entries[sd.ID] = &cp
	return nil
}

func (s *MemorySchedules) Get(_ context.Context, id string) (*models.ScheduledDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sd
	return &cp, nil
}

func (s *MemorySchedules) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.ScheduledDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.ScheduledDelivery
	for _, sd := range s.entries {
		if (sd.Status == models.SchedulePending || sd.Status == models.ScheduleOverdue) && !sd.FireAt.After(now) {
			due = append(due, sd)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.ScheduledDelivery, 0, len(due))
	for _, sd := range due {
		t := now
		sd.ClaimedAt = &t
		cp := *sd
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemorySchedules) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if !sd.Status.Cancellable() {
		return ErrConflict
	}
	sd.Status = models.ScheduleCancelled
	return nil
}

// --- lookups ---

type lookupKey struct {
	tenantID   int64
	lookupType string
	key        string
}

// MemoryLookups is the in-memory LookupStore.
type MemoryLookups struct {
	mu      sync.RWMutex
	entries map[lookupKey]*models.LookupEntry
}

func NewMemoryLookups() *MemoryLookups {
	return &MemoryLookups{entries: make(map[lookupKey]*models.LookupEntry)}
}

// Put registers a lookup entry.
func (s *MemoryLookups) Put(e *models.LookupEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[lookupKey{e.TenantID, e.Type, e.Key}] = &cp
}

func (s *MemoryLookups) Get(_ context.Context, tenantID int64, lookupType, key string) (*models.LookupEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[lookupKey{tenantID, lookupType, key}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryLookups) Behavior(_ context.Context, tenantID int64, lookupType string) (models.UnmappedBehavior, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, e := range s.entries {
		if k.tenantID == tenantID && k.lookupType == lookupType {
			behavior := e.UnmappedBehavior
			if behavior == "" {
				behavior = models.UnmappedPassthrough
			}
			return behavior, e.DefaultValue, nil
		}
	}
	return models.UnmappedPassthrough, "", nil
}

// --- checkpoints ---

// MemoryCheckpoints is the in-memory CheckpointStore.
type MemoryCheckpoints struct {
	mu          sync.Mutex
	checkpoints map[string]int64
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{checkpoints: make(map[string]int64)}
}

func (s *MemoryCheckpoints) Get(_ context.Context, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[source], nil
}

func (s *MemoryCheckpoints) Set(_ context.Context, source string, checkpoint int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if checkpoint > s.checkpoints[source] {
		s.checkpoints[source] = checkpoint
	}
	return nil
}

// --- system config ---

// MemorySystemConfig is the in-memory SystemConfigStore.
type MemorySystemConfig struct {
	mu      sync.Mutex
	entries map[string]*models.SystemConfig
}

func NewMemorySystemConfig() *MemorySystemConfig {
	return &MemorySystemConfig{entries: make(map[string]*models.SystemConfig)}
}

func (s *MemorySystemConfig) Get(_ context.Context, key string) (*models.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sc
	cp.Value = sc.Value.Clone()
	return &cp, nil
}

func (s *MemorySystemConfig) Set(_ context.Context, key string, value models.Payload) (*models.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := &models.SystemConfig{Key: key, Value: value.Clone(), UpdatedAt: time.Now()}
	s.entries[key] = sc
	cp := *sc
	cp.Value = sc.Value.Clone()
	return &cp, nil
}

func (s *MemorySystemConfig) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemorySystemConfig) List(_ context.Context) ([]*models.SystemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SystemConfig, 0, len(s.entries))
	for _, sc := range s.entries {
		cp := *sc
		cp.Value = sc.Value.Clone()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
