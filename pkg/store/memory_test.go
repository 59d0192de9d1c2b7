package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

func auditRow(offset int64, receivedAt time.Time) *models.EventAudit {
	return &models.EventAudit{
		EventID:      "evt",
		Source:       "relational",
		SourceOffset: offset,
		TenantID:     1,
		EventType:    "patient.created",
		Status:       models.AuditPending,
		ReceivedAt:   receivedAt,
	}
}

func TestAuditClaimOrderAndExclusivity(t *testing.T) {
	s := NewMemoryAudit()
	base := time.Now()
	for i := int64(1); i <= 3; i++ {
		inserted, err := s.Ingest(context.Background(), auditRow(i, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		require.True(t, inserted)
	}

	claimed, err := s.ClaimNext(context.Background(), "pod-a-worker-0", 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, int64(1), claimed[0].SourceOffset, "oldest first")
	assert.Equal(t, int64(2), claimed[1].SourceOffset)

	// The remaining row goes to the next claimer; claimed rows do not.
	claimed, err = s.ClaimNext(context.Background(), "pod-b-worker-0", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int64(3), claimed[0].SourceOffset)
}

func TestAuditFinalizeStateMachine(t *testing.T) {
	s := NewMemoryAudit()
	_, err := s.Ingest(context.Background(), auditRow(1, time.Now()))
	require.NoError(t, err)

	// PENDING rows cannot be finalized.
	assert.ErrorIs(t, s.Finalize(context.Background(), "relational", 1, models.AuditProcessed, ""), ErrConflict)

	_, err = s.ClaimNext(context.Background(), "pod-a", 1)
	require.NoError(t, err)
	require.NoError(t, s.Finalize(context.Background(), "relational", 1, models.AuditSkipped, "no_matching_integration"))

	row, _ := s.Get(context.Background(), "relational", 1)
	assert.Equal(t, models.AuditSkipped, row.Status)
	assert.Equal(t, "no_matching_integration", row.SkipCategory)
	assert.NotNil(t, row.FinishedAt)

	// Terminal rows cannot be finalized twice.
	assert.ErrorIs(t, s.Finalize(context.Background(), "relational", 1, models.AuditFailed, ""), ErrConflict)
	assert.ErrorIs(t, s.Finalize(context.Background(), "relational", 99, models.AuditFailed, ""), ErrNotFound)
}

func TestAuditMarkStuckAndRelease(t *testing.T) {
	s := NewMemoryAudit()
	_, err := s.Ingest(context.Background(), auditRow(1, time.Now()))
	require.NoError(t, err)
	_, err = s.ClaimNext(context.Background(), "pod-a", 1)
	require.NoError(t, err)

	stuck, err := s.MarkStuck(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	require.NoError(t, s.ReleaseStuck(context.Background(), "relational", 1))
	row, _ := s.Get(context.Background(), "relational", 1)
	assert.Equal(t, models.AuditPending, row.Status)
	assert.Empty(t, row.ClaimedBy)

	assert.ErrorIs(t, s.ReleaseStuck(context.Background(), "relational", 1), ErrConflict,
		"only STUCK rows release")
}

func TestDLQClaimDue(t *testing.T) {
	s := NewMemoryDLQ()
	now := time.Now()
	for _, e := range []*models.DLQEntry{
		{ID: "later", Status: models.DLQPending, NextRetryAt: now.Add(-time.Second)},
		{ID: "sooner", Status: models.DLQPending, NextRetryAt: now.Add(-time.Minute)},
		{ID: "future", Status: models.DLQPending, NextRetryAt: now.Add(time.Hour)},
		{ID: "done", Status: models.DLQResolved, NextRetryAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, s.Insert(context.Background(), e))
	}

	due, err := s.ClaimDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "sooner", due[0].ID, "most overdue first")
	assert.Equal(t, models.DLQRetrying, due[0].Status)

	// Claimed entries are not handed out again.
	due, err = s.ClaimDue(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDLQClaimConflict(t *testing.T) {
	s := NewMemoryDLQ()
	require.NoError(t, s.Insert(context.Background(), &models.DLQEntry{ID: "e", Status: models.DLQResolved}))

	_, err := s.Claim(context.Background(), "e", time.Now())
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.Claim(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSigningSecretRotation(t *testing.T) {
	s := NewMemoryIntegrations()
	ic := &models.IntegrationConfig{
		ID:        "int-1",
		TenantID:  1,
		Direction: models.DirectionOutbound,
		IsActive:  true,
		EventType: "patient.created",
		TargetURL: "https://target.test",
		Signing: models.SigningSpec{Enabled: true, Secrets: []models.SigningSecret{
			{Secret: "s1", Primary: true, CreatedAt: time.Now()},
		}},
	}
	require.NoError(t, s.Save(context.Background(), ic))

	next, err := s.RotateSigningSecret(context.Background(), "int-1")
	require.NoError(t, err)
	assert.True(t, next.Primary)

	stored, _ := s.GetByID(context.Background(), "int-1")
	require.Len(t, stored.Signing.Secrets, 2)
	assert.Equal(t, next.Secret, stored.Signing.Secrets[0].Secret, "new secret leads")
	assert.False(t, stored.Signing.Secrets[1].Primary, "old primary is demoted")

	// Rotating past the cap evicts the oldest secret.
	for i := 0; i < models.MaxSigningSecrets; i++ {
		_, err = s.RotateSigningSecret(context.Background(), "int-1")
		require.NoError(t, err)
	}
	stored, _ = s.GetByID(context.Background(), "int-1")
	assert.Len(t, stored.Signing.Secrets, models.MaxSigningSecrets)
	for _, secret := range stored.Signing.Secrets {
		assert.NotEqual(t, "s1", secret.Secret)
	}
}

func TestRemoveSigningSecret(t *testing.T) {
	s := NewMemoryIntegrations()
	ic := &models.IntegrationConfig{
		ID:        "int-1",
		TenantID:  1,
		Direction: models.DirectionOutbound,
		IsActive:  true,
		EventType: "patient.created",
		TargetURL: "https://target.test",
		Signing: models.SigningSpec{Enabled: true, Secrets: []models.SigningSecret{
			{Secret: "keep", Primary: true},
			{Secret: "drop"},
		}},
	}
	require.NoError(t, s.Save(context.Background(), ic))

	require.NoError(t, s.RemoveSigningSecret(context.Background(), "int-1", "drop"))
	stored, _ := s.GetByID(context.Background(), "int-1")
	require.Len(t, stored.Signing.Secrets, 1)
	assert.Equal(t, "keep", stored.Signing.Secrets[0].Secret)
}

func TestCheckpointsMonotonic(t *testing.T) {
	s := NewMemoryCheckpoints()

	require.NoError(t, s.Set(context.Background(), "relational", 10))
	require.NoError(t, s.Set(context.Background(), "relational", 5))

	got, err := s.Get(context.Background(), "relational")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got, "checkpoints never move backwards")

	got, err = s.Get(context.Background(), "stream")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got, "unknown source starts at zero")
}

func TestExecLogListFilters(t *testing.T) {
	s := NewMemoryExecLogs()
	base := time.Now()
	logs := []*models.ExecutionLog{
		{TraceID: "t1", TenantID: 1, IntegrationID: "a", Status: models.ExecSuccess, StartedAt: base},
		{TraceID: "t2", TenantID: 1, IntegrationID: "b", Status: models.ExecFailed, StartedAt: base.Add(time.Second)},
		{TraceID: "t3", TenantID: 2, IntegrationID: "a", Status: models.ExecSuccess, StartedAt: base.Add(2 * time.Second)},
	}
	for _, l := range logs {
		require.NoError(t, s.Save(context.Background(), l))
	}

	out, err := s.List(context.Background(), ExecLogFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "t3", out[0].TraceID, "newest first")

	out, err = s.List(context.Background(), ExecLogFilter{TenantID: 1, Status: models.ExecFailed})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t2", out[0].TraceID)

	out, err = s.List(context.Background(), ExecLogFilter{IntegrationID: "a", Limit: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t3", out[0].TraceID)
}

func TestSystemConfigRoundTrip(t *testing.T) {
	s := NewMemorySystemConfig()
	ctx := context.Background()

	_, err := s.Get(ctx, "features")
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.Set(ctx, "features", models.Payload{"dlqAutoRetry": true})
	require.NoError(t, err)
	assert.Equal(t, "features", saved.Key)
	assert.False(t, saved.UpdatedAt.IsZero())

	// A caller mutating its copy must not leak into the store.
	saved.Value["dlqAutoRetry"] = false
	got, err := s.Get(ctx, "features")
	require.NoError(t, err)
	assert.Equal(t, true, got.Value["dlqAutoRetry"])

	_, err = s.Set(ctx, "banner", models.Payload{"text": "maintenance tonight"})
	require.NoError(t, err)
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "banner", all[0].Key, "sorted by key")

	require.NoError(t, s.Delete(ctx, "banner"))
	assert.ErrorIs(t, s.Delete(ctx, "banner"), ErrNotFound)
}
