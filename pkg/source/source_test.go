package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// fakeIngestor records ingested events and can be told to fail or report a
// duplicate at a given offset.
type fakeIngestor struct {
	events []*models.Event
	failAt int64
	dupAt  int64
}

func (f *fakeIngestor) Ingest(_ context.Context, e *models.Event) (bool, error) {
	if f.failAt != 0 && e.SourceOffset == f.failAt {
		return false, errors.New("ledger unavailable")
	}
	f.events = append(f.events, e)
	if f.dupAt != 0 && e.SourceOffset == f.dupAt {
		return false, nil
	}
	return true, nil
}

func srcEvent(offset int64) *models.Event {
	return &models.Event{
		EventID:      fmt.Sprintf("relational-%d", offset),
		SourceOffset: offset,
		Source:       SourceRelational,
		TenantID:     10,
		EventType:    "patient.created",
		Payload:      models.Payload{"id": offset},
	}
}

func pollerFixture(ingestor Ingestor) (*Poller, *store.MemoryCheckpoints) {
	checkpoints := store.NewMemoryCheckpoints()
	p := NewPoller(nil, ingestor, checkpoints, "", config.DefaultWorkersConfig(), nil)
	return p, checkpoints
}

func TestIngestBatchAdvancesCheckpoint(t *testing.T) {
	ing := &fakeIngestor{}
	p, checkpoints := pollerFixture(ing)
	ctx := context.Background()

	err := p.ingestBatch(ctx, 0, []*models.Event{srcEvent(1), srcEvent(2), srcEvent(3)})
	require.NoError(t, err)
	assert.Len(t, ing.events, 3)

	cp, err := checkpoints.Get(ctx, SourceRelational)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cp)
}

func TestIngestBatchPartialFailureKeepsPrefix(t *testing.T) {
	ing := &fakeIngestor{failAt: 5}
	p, checkpoints := pollerFixture(ing)
	ctx := context.Background()
	require.NoError(t, checkpoints.Set(ctx, SourceRelational, 3))

	err := p.ingestBatch(ctx, 3, []*models.Event{srcEvent(4), srcEvent(5), srcEvent(6)})
	require.Error(t, err)
	require.Len(t, ing.events, 1, "the batch stops at the failing row")
	assert.Equal(t, int64(4), ing.events[0].SourceOffset)

	// The checkpoint covers only the ingested prefix; the next tick retries
	// from row 5.
	cp, err := checkpoints.Get(ctx, SourceRelational)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cp)
}

func TestIngestBatchDuplicateIsSuccess(t *testing.T) {
	ing := &fakeIngestor{dupAt: 2}
	p, checkpoints := pollerFixture(ing)
	ctx := context.Background()

	err := p.ingestBatch(ctx, 1, []*models.Event{srcEvent(2), srcEvent(3)})
	require.NoError(t, err, "a replayed row the ledger already has is not a failure")

	cp, _ := checkpoints.Get(ctx, SourceRelational)
	assert.Equal(t, int64(3), cp)
}

func TestIngestBatchGapStillAdvances(t *testing.T) {
	ing := &fakeIngestor{}
	p, checkpoints := pollerFixture(ing)
	ctx := context.Background()
	require.NoError(t, checkpoints.Set(ctx, SourceRelational, 5))

	// Rows 7 and 8 are missing. The gap is surfaced, not blocked on.
	err := p.ingestBatch(ctx, 5, []*models.Event{srcEvent(6), srcEvent(9)})
	require.NoError(t, err)
	assert.Len(t, ing.events, 2)

	cp, _ := checkpoints.Get(ctx, SourceRelational)
	assert.Equal(t, int64(9), cp)
}

func TestIngestBatchEmpty(t *testing.T) {
	p, checkpoints := pollerFixture(&fakeIngestor{})
	ctx := context.Background()
	require.NoError(t, checkpoints.Set(ctx, SourceRelational, 7))

	require.NoError(t, p.ingestBatch(ctx, 7, nil))
	cp, _ := checkpoints.Get(ctx, SourceRelational)
	assert.Equal(t, int64(7), cp)
}

// fakeMsg implements the jetstream.Msg surface handle touches; the embedded
// interface panics on anything else.
type fakeMsg struct {
	jetstream.Msg
	data   []byte
	seq    uint64
	acked  bool
	naked  bool
	termed bool
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{Sequence: jetstream.SequencePair{Stream: m.seq}}, nil
}

func (m *fakeMsg) Ack() error  { m.acked = true; return nil }
func (m *fakeMsg) Nak() error  { m.naked = true; return nil }
func (m *fakeMsg) Term() error { m.termed = true; return nil }

func streamFixture(ingestor Ingestor) *StreamConsumer {
	return NewStreamConsumer(nil, DefaultStreamConfig(), ingestor, nil)
}

func TestStreamHandleAcksAfterIngest(t *testing.T) {
	ing := &fakeIngestor{}
	c := streamFixture(ing)

	msg := &fakeMsg{
		data: []byte(`{"eventId":"evt-9","tenantId":10,"eventType":"patient.created","payload":{"id":"p-1"}}`),
		seq:  42,
	}
	c.handle(context.Background(), msg)

	assert.True(t, msg.acked)
	require.Len(t, ing.events, 1)
	got := ing.events[0]
	assert.Equal(t, "evt-9", got.EventID)
	assert.Equal(t, SourceStream, got.Source)
	assert.Equal(t, int64(42), got.SourceOffset)
	assert.Equal(t, "patient.created", got.EventType)
}

func TestStreamHandleGeneratesEventID(t *testing.T) {
	ing := &fakeIngestor{}
	c := streamFixture(ing)

	msg := &fakeMsg{data: []byte(`{"tenantId":10,"eventType":"bill.created","payload":{}}`), seq: 7}
	c.handle(context.Background(), msg)

	require.Len(t, ing.events, 1)
	assert.Equal(t, "stream-7", ing.events[0].EventID)
}

func TestStreamHandleNaksOnIngestFailure(t *testing.T) {
	ing := &fakeIngestor{failAt: 42}
	c := streamFixture(ing)

	msg := &fakeMsg{
		data: []byte(`{"eventId":"evt-9","tenantId":10,"eventType":"patient.created","payload":{}}`),
		seq:  42,
	}
	c.handle(context.Background(), msg)

	assert.True(t, msg.naked, "failed ingest leaves the message for redelivery")
	assert.False(t, msg.acked)
}

func TestStreamHandleTermsMalformed(t *testing.T) {
	ing := &fakeIngestor{}
	c := streamFixture(ing)

	msg := &fakeMsg{data: []byte(`{not json`), seq: 42}
	c.handle(context.Background(), msg)

	assert.True(t, msg.termed, "redelivery cannot fix a malformed payload")
	assert.False(t, msg.acked)
	assert.Empty(t, ing.events)
}

func TestStreamHandleAcksDuplicate(t *testing.T) {
	ing := &fakeIngestor{dupAt: 42}
	c := streamFixture(ing)

	msg := &fakeMsg{
		data: []byte(`{"eventId":"evt-9","tenantId":10,"eventType":"patient.created","payload":{}}`),
		seq:  42,
	}
	c.handle(context.Background(), msg)

	assert.True(t, msg.acked, "the ledger already has the sequence")
}
