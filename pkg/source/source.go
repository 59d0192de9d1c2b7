// Package source pulls events out of the upstream systems and pushes them
// through the audit ledger: a relational poller over the source database's
// notification queue and a JetStream consumer for the event stream. Both
// commit their position (checkpoint, ack) only after the ledger has the
// event, so a crash re-delivers rather than drops.
package source

import (
	"context"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// Source names.
const (
	SourceRelational = "relational"
	SourceStream     = "stream"
)

// Ingestor accepts events into the audit ledger. False means duplicate, which
// sources treat as success.
type Ingestor interface {
	Ingest(ctx context.Context, event *models.Event) (bool, error)
}
