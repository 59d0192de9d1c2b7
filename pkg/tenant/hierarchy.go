// Package tenant resolves the hierarchical ownership tree. Traversals are
// explicit by-id walks against the tenant store with a cycle guard; the data
// model never holds parent pointers.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// maxDepth bounds ancestor walks; hierarchies deeper than this indicate
// corrupt data.
const maxDepth = 32

// ErrCycle is returned when the parent chain loops.
var ErrCycle = errors.New("tenant: hierarchy cycle detected")

// Hierarchy answers ancestry questions over the tenant store.
type Hierarchy struct {
	tenants store.TenantStore
}

// NewHierarchy creates a Hierarchy over the given store.
func NewHierarchy(tenants store.TenantStore) *Hierarchy {
	return &Hierarchy{tenants: tenants}
}

// SelfAndAncestors returns the tenant id followed by its ancestors from
// nearest to root. Unknown tenants return just themselves: events may arrive
// for tenants not yet mirrored into the hierarchy table.
func (h *Hierarchy) SelfAndAncestors(ctx context.Context, id int64) ([]int64, error) {
	chain := []int64{id}
	seen := map[int64]bool{id: true}

	current := id
	for depth := 0; depth < maxDepth; depth++ {
		t, err := h.tenants.GetByID(ctx, current)
		if errors.Is(err, store.ErrNotFound) {
			return chain, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving tenant %d: %w", current, err)
		}
		if t.ParentID == 0 {
			return chain, nil
		}
		if seen[t.ParentID] {
			return nil, fmt.Errorf("%w: tenant %d", ErrCycle, t.ParentID)
		}
		seen[t.ParentID] = true
		chain = append(chain, t.ParentID)
		current = t.ParentID
	}
	return nil, fmt.Errorf("%w: depth limit at tenant %d", ErrCycle, current)
}

// IsAncestor reports whether ancestor is a strict ancestor of id.
func (h *Hierarchy) IsAncestor(ctx context.Context, ancestor, id int64) (bool, error) {
	if ancestor == id {
		return false, nil
	}
	chain, err := h.SelfAndAncestors(ctx, id)
	if err != nil {
		return false, err
	}
	for _, t := range chain[1:] {
		if t == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the tenant row.
func (h *Hierarchy) Get(ctx context.Context, id int64) (*models.Tenant, error) {
	return h.tenants.GetByID(ctx, id)
}
