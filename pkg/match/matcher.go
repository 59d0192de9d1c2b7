// Package match resolves which integrations an event fans out to.
package match

import (
	"context"
	"log/slog"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/tenant"
)

// Matcher selects the integrations a given event should be delivered to.
type Matcher struct {
	integrations store.IntegrationStore
	hierarchy    *tenant.Hierarchy
	sandbox      *sandbox.Engine
	logger       *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(integrations store.IntegrationStore, hierarchy *tenant.Hierarchy, sb *sandbox.Engine, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{integrations: integrations, hierarchy: hierarchy, sandbox: sb, logger: logger}
}

// Match returns the integrations the event fans out to, in stable
// (createdAt, id) order. An integration owned by an ancestor tenant matches
// only with INCLUDE_CHILDREN scope and only when the event tenant is not
// excluded. Condition scripts are fail-closed: an erroring or timed-out
// condition drops the integration from the fan-out.
func (m *Matcher) Match(ctx context.Context, event *models.Event) ([]*models.IntegrationConfig, error) {
	chain, err := m.hierarchy.SelfAndAncestors(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}

	candidates, err := m.integrations.ListForTenantsAndEvent(ctx, chain, event.EventType)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.IntegrationConfig, 0, len(candidates))
	for _, ic := range candidates {
		if !m.inScope(ic, event.TenantID) {
			continue
		}
		if ic.Condition != "" && !m.conditionPasses(ctx, ic, event) {
			continue
		}
		matched = append(matched, ic)
	}
	return matched, nil
}

// inScope applies tenant scoping. An integration owned by the event tenant
// always matches; one owned by an ancestor needs INCLUDE_CHILDREN and the
// event tenant absent from the exclusion list.
func (m *Matcher) inScope(ic *models.IntegrationConfig, eventTenantID int64) bool {
	if ic.TenantID == eventTenantID {
		return true
	}
	if ic.Scope != models.ScopeIncludeChildren {
		return false
	}
	return !ic.ExcludedChildren[eventTenantID]
}

func (m *Matcher) conditionPasses(ctx context.Context, ic *models.IntegrationConfig, event *models.Event) bool {
	pass, err := m.sandbox.RunCondition(ctx, ic.Condition, event.Payload, sandbox.ScriptContext{
		EventType: event.EventType,
		TenantID:  event.TenantID,
		OrgID:     event.OrgID,
	}, nil)
	if err != nil {
		// Fail closed: a broken condition must not fan out.
		m.logger.Warn("condition script failed, skipping integration",
			"integrationId", ic.ID, "eventId", event.EventID, "error", err)
		return false
	}
	return pass
}
