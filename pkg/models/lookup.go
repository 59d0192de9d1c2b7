package models

import "time"

// UnmappedBehavior selects what a lookup returns when the key is missing
// after walking the tenant fallback chain.
type UnmappedBehavior string

// Unmapped behaviors.
const (
	UnmappedPassthrough UnmappedBehavior = "PASSTHROUGH"
	UnmappedFail        UnmappedBehavior = "FAIL"
	UnmappedDefault     UnmappedBehavior = "DEFAULT"
)

// LookupEntry is one row of a per-tenant code-translation table.
type LookupEntry struct {
	TenantID int64  `json:"tenantId"`
	Type     string `json:"type"`
	Key      string `json:"key"`
	Value    string `json:"value"`

	UnmappedBehavior UnmappedBehavior `json:"unmappedBehavior,omitempty"`
	DefaultValue     string           `json:"defaultValue,omitempty"`
}

// Tenant is one node of the hierarchical ownership tree. ParentID is zero
// for roots; traversals are explicit by-id walks, never pointers.
type Tenant struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parentId,omitempty"`
	Name     string `json:"name"`
	OrgID    int64  `json:"orgId,omitempty"`
}

// SystemConfig is one deployment-wide setting. Keys are flat; values are
// JSON documents the gateway stores but does not interpret.
type SystemConfig struct {
	Key       string    `json:"key"`
	Value     Payload   `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}
