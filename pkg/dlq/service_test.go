package dlq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

type fakeRedeliverer struct {
	err   error
	calls int
}

func (f *fakeRedeliverer) Redeliver(_ context.Context, _ *models.DLQEntry) error {
	f.calls++
	return f.err
}

func testService() (*Service, *store.MemoryDLQ) {
	st := store.NewMemoryDLQ()
	return NewService(st, NewPolicy(config.DefaultRetryConfig()), nil), st
}

func testEntry() *models.DLQEntry {
	return &models.DLQEntry{
		TraceID:       "trace-1",
		IntegrationID: "int-1",
		TenantID:      10,
		Payload:       models.Payload{"id": "evt-1"},
		MessageID:     "msg-1",
		Error: models.ErrorDetail{
			Message:    "upstream returned 503",
			Category:   models.CategoryServerError,
			StatusCode: 503,
		},
	}
}

func TestRecord(t *testing.T) {
	s, st := testService()
	entry := testEntry()

	require.NoError(t, s.Record(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.DLQPending, entry.Status)
	assert.Equal(t, models.RetryExponential, entry.RetryStrategy)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.WithinDuration(t, time.Now().Add(time.Second), entry.NextRetryAt, time.Second)

	stored, err := st.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.TraceID, stored.TraceID)
}

func TestRecordHonorsIntegrationRetryOverride(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	entry.MaxRetries = 10

	require.NoError(t, s.Record(context.Background(), entry))
	assert.Equal(t, 10, entry.MaxRetries)
}

func TestCompleteRetrySuccess(t *testing.T) {
	s, st := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	require.NoError(t, s.CompleteRetry(context.Background(), entry, nil))
	assert.Equal(t, models.DLQResolved, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.Resolution)
	assert.Equal(t, "retry_succeeded", entry.Resolution.Method)

	stored, _ := st.Get(context.Background(), entry.ID)
	assert.Equal(t, models.DLQResolved, stored.Status)
}

func TestCompleteRetryFailureReschedules(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	attemptErr := models.NewCategorizedError(models.CategoryTimeout, errors.New("deadline exceeded"))
	require.NoError(t, s.CompleteRetry(context.Background(), entry, attemptErr))

	assert.Equal(t, models.DLQPending, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, models.CategoryTimeout, entry.Error.Category)
	// Second attempt backs off base*multiplier^1.
	assert.WithinDuration(t, time.Now().Add(2*time.Second), entry.NextRetryAt, time.Second)
}

func TestCompleteRetryExhaustsBudget(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))
	entry.RetryCount = entry.MaxRetries - 1

	attemptErr := models.NewCategorizedError(models.CategoryServerError, errors.New("still 503"))
	require.NoError(t, s.CompleteRetry(context.Background(), entry, attemptErr))

	assert.Equal(t, models.DLQAbandoned, entry.Status)
	require.NotNil(t, entry.Resolution)
	assert.Equal(t, "max_retries_exceeded", entry.Resolution.Method)
}

func TestCompleteRetryNonRetriableAbandons(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	attemptErr := models.NewCategorizedError(models.CategoryValidationError, errors.New("schema mismatch"))
	require.NoError(t, s.CompleteRetry(context.Background(), entry, attemptErr))

	assert.Equal(t, models.DLQAbandoned, entry.Status, "terminal category ends retries immediately")
	assert.Equal(t, 1, entry.RetryCount)
}

func TestManualRetry(t *testing.T) {
	s, st := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	r := &fakeRedeliverer{}
	got, err := s.Retry(context.Background(), entry.ID, r)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, models.DLQResolved, got.Status)

	// A resolved entry cannot be claimed again.
	_, err = s.Retry(context.Background(), entry.ID, r)
	assert.ErrorIs(t, err, store.ErrConflict)

	stored, _ := st.Get(context.Background(), entry.ID)
	assert.Equal(t, models.DLQResolved, stored.Status)
}

func TestAbandon(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	got, err := s.Abandon(context.Background(), entry.ID, "oncall", "target decommissioned")
	require.NoError(t, err)
	assert.Equal(t, models.DLQAbandoned, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "manual_abandon", got.Resolution.Method)
	assert.Equal(t, "oncall", got.Resolution.By)

	_, err = s.Abandon(context.Background(), entry.ID, "oncall", "")
	assert.ErrorIs(t, err, store.ErrConflict, "terminal entries cannot be abandoned again")
}

func TestBulkLimit(t *testing.T) {
	s, _ := testService()
	ids := make([]string, BulkLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	_, err := s.BulkAbandon(context.Background(), ids, "", "")
	assert.ErrorIs(t, err, ErrBulkLimit)
}

func TestBulkRetryPartialFailure(t *testing.T) {
	s, _ := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	resolved := testEntry()
	require.NoError(t, s.Record(context.Background(), resolved))
	_, err := s.Abandon(context.Background(), resolved.ID, "", "")
	require.NoError(t, err)

	out, err := s.BulkRetry(context.Background(), []string{entry.ID, resolved.ID, "missing"}, &fakeRedeliverer{})
	require.NoError(t, err)
	assert.Equal(t, []string{entry.ID}, out.Succeeded)
	assert.Equal(t, map[string]string{
		resolved.ID: "not in a retriable state",
		"missing":   "not found",
	}, out.Failed)
}

func TestBulkDelete(t *testing.T) {
	s, st := testService()
	entry := testEntry()
	require.NoError(t, s.Record(context.Background(), entry))

	out, err := s.BulkDelete(context.Background(), []string{entry.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{entry.ID}, out.Succeeded)

	_, err = st.Get(context.Background(), entry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
