package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/tenant"
)

// Resolver resolves lookup codes against per-tenant tables with hierarchical
// fallback: the event tenant's table first, then each ancestor in order.
type Resolver struct {
	lookups   store.LookupStore
	hierarchy *tenant.Hierarchy
}

// NewResolver creates a Resolver.
func NewResolver(lookups store.LookupStore, hierarchy *tenant.Hierarchy) *Resolver {
	return &Resolver{lookups: lookups, hierarchy: hierarchy}
}

// Resolve translates code through the named table. On a miss across the
// whole chain the event tenant's configured unmapped behavior applies:
// PASSTHROUGH returns the code, DEFAULT returns the configured default, and
// FAIL raises a DATA_ERROR.
func (r *Resolver) Resolve(ctx context.Context, tenantID int64, lookupType, code string) (string, error) {
	chain, err := r.hierarchy.SelfAndAncestors(ctx, tenantID)
	if err != nil {
		return "", err
	}

	for _, tid := range chain {
		entry, err := r.lookups.Get(ctx, tid, lookupType, code)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return entry.Value, nil
	}

	behavior, defaultValue, err := r.lookups.Behavior(ctx, tenantID, lookupType)
	if err != nil {
		return "", err
	}
	switch behavior {
	case models.UnmappedFail:
		return "", models.NewCategorizedError(models.CategoryDataError,
			fmt.Errorf("lookup %s: no mapping for %q", lookupType, code))
	case models.UnmappedDefault:
		return defaultValue, nil
	default:
		return code, nil
	}
}

// Func adapts the resolver to the sandbox lookup helper for one tenant.
func (r *Resolver) Func(ctx context.Context, tenantID int64) func(code, lookupType string) (string, error) {
	return func(code, lookupType string) (string, error) {
		return r.Resolve(ctx, tenantID, lookupType, code)
	}
}
