package models

import (
	"fmt"
	"time"
)

// Direction indicates which way an integration moves data.
type Direction string

// Integration directions.
const (
	DirectionOutbound  Direction = "OUTBOUND"
	DirectionInbound   Direction = "INBOUND"
	DirectionScheduled Direction = "SCHEDULED"
)

// Scope controls whether an integration covers child tenants.
type Scope string

// Tenant scopes.
const (
	ScopeEntityOnly      Scope = "ENTITY_ONLY"
	ScopeIncludeChildren Scope = "INCLUDE_CHILDREN"
)

// DeliveryMode selects when a matched event is delivered.
type DeliveryMode string

// Delivery modes.
const (
	DeliveryImmediate DeliveryMode = "IMMEDIATE"
	DeliveryDelayed   DeliveryMode = "DELAYED"
	DeliveryRecurring DeliveryMode = "RECURRING"
)

// TransformMode selects how the outbound body is produced.
type TransformMode string

// Transformation modes.
const (
	TransformPassthrough TransformMode = "PASSTHROUGH"
	TransformSimple      TransformMode = "SIMPLE"
	TransformScript      TransformMode = "SCRIPT"
)

// MappingTransform is the unary transform applied by a declarative mapping.
type MappingTransform string

// Mapping transforms.
const (
	MapNone    MappingTransform = "NONE"
	MapTrim    MappingTransform = "TRIM"
	MapUpper   MappingTransform = "UPPER"
	MapLower   MappingTransform = "LOWER"
	MapDateISO MappingTransform = "DATE_ISO"
	MapDefault MappingTransform = "DEFAULT"
	MapLookup  MappingTransform = "LOOKUP"
)

// AuthType enumerates the supported credential schemes. JWT applies to
// inbound verification only; the rest decorate outbound requests.
type AuthType string

// Auth types.
const (
	AuthNone   AuthType = "NONE"
	AuthAPIKey AuthType = "API_KEY"
	AuthBearer AuthType = "BEARER"
	AuthBasic  AuthType = "BASIC"
	AuthOAuth2 AuthType = "OAUTH2"
	AuthCustom AuthType = "CUSTOM"
	AuthHMAC   AuthType = "HMAC"
	AuthJWT    AuthType = "JWT"
)

// Mapping is one declarative field mapping applied in SIMPLE transform mode.
type Mapping struct {
	TargetPath   string           `json:"targetPath"`
	SourcePath   string           `json:"sourcePath"`
	Transform    MappingTransform `json:"transform,omitempty"`
	DefaultValue any              `json:"defaultValue,omitempty"` // for DEFAULT
	LookupType   string           `json:"lookupType,omitempty"`   // for LOOKUP
}

// StaticField is a constant key/value written into the transformed output.
type StaticField struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// TransformSpec describes how the outbound body is derived from the event.
type TransformSpec struct {
	Mode         TransformMode `json:"mode"`
	Mappings     []Mapping     `json:"mappings,omitempty"`
	StaticFields []StaticField `json:"staticFields,omitempty"`
	Script       string        `json:"script,omitempty"`
}

// LookupSpec is a post-transform lookup pass entry: read sourceField,
// resolve against the named lookup table, write targetField.
type LookupSpec struct {
	Type        string `json:"type"`
	SourceField string `json:"sourceField"`
	TargetField string `json:"targetField"`
}

// TokenExpirationDetection configures response-body token expiry sniffing.
// When the value at Path contains any of Values (case-insensitive), the
// cached token is cleared and the attempt is retried as AUTH_ERROR.
type TokenExpirationDetection struct {
	Enabled bool     `json:"enabled"`
	Path    string   `json:"path"`
	Values  []string `json:"values"`
}

// AuthSpec holds the credential configuration for one direction of an
// integration. Fields are populated per Type; unused fields stay zero.
type AuthSpec struct {
	Type AuthType `json:"type"`

	// API_KEY
	HeaderName string `json:"headerName,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`

	// BEARER
	Token string `json:"token,omitempty"`

	// BASIC
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// OAUTH2
	GrantType    string `json:"grantType,omitempty"` // client_credentials | password
	TokenURL     string `json:"tokenUrl,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// CUSTOM token request
	CustomMethod string `json:"customMethod,omitempty"`
	CustomBody   string `json:"customBody,omitempty"`
	CustomHeader string `json:"customHeader,omitempty"` // default Authorization

	// Token extraction (OAUTH2 and CUSTOM)
	TokenResponsePath  string `json:"tokenResponsePath,omitempty"`  // default access_token
	TokenExpiresInPath string `json:"tokenExpiresInPath,omitempty"` // default expires_in

	TokenExpirationDetection *TokenExpirationDetection `json:"tokenExpirationDetection,omitempty"`

	// Persisted token cache. Written only through the store's token-cache
	// bypass path, never through the regular config save.
	CachedToken      string     `json:"_cachedToken,omitempty"`
	TokenExpiresAt   *time.Time `json:"_tokenExpiresAt,omitempty"`
	TokenLastFetched *time.Time `json:"_tokenLastFetched,omitempty"`
}

// SigningSecret is one active HMAC signing secret.
type SigningSecret struct {
	Secret    string    `json:"secret"`
	Primary   bool      `json:"primary"`
	CreatedAt time.Time `json:"createdAt"`
}

// SigningSpec configures outbound HMAC signing.
type SigningSpec struct {
	Enabled bool            `json:"enabled"`
	Secrets []SigningSecret `json:"secrets,omitempty"`
}

// MaxSigningSecrets bounds the active secret set for rotation.
const MaxSigningSecrets = 3

// RateLimitSpec configures the per-(integration, tenant) sliding window.
type RateLimitSpec struct {
	Enabled       bool `json:"enabled"`
	MaxRequests   int  `json:"maxRequests"`
	WindowSeconds int  `json:"windowSeconds"`
}

// Action is one hop of a multi-action chain. Each action has its own target,
// transform and auth; Condition, when set, is evaluated against the prior
// action's output and skips the action when falsy.
type Action struct {
	Name           string            `json:"name"`
	TargetURL      string            `json:"targetUrl"`
	HTTPMethod     string            `json:"httpMethod"`
	Headers        map[string]string `json:"headers,omitempty"`
	Auth           *AuthSpec         `json:"auth,omitempty"`
	Transformation *TransformSpec    `json:"transformation,omitempty"`
	Condition      string            `json:"condition,omitempty"`
	TimeoutMs      int               `json:"timeoutMs,omitempty"`
}

// DataSourceSpec drives SCHEDULED integrations: where and how to fetch the
// batch that feeds the pipeline. Query supports {{config.*}}, {{env.*}} and
// {{date.today()}} template variables.
type DataSourceSpec struct {
	Kind       string `json:"kind"` // sql | api
	Query      string `json:"query,omitempty"`
	URL        string `json:"url,omitempty"`
	HTTPMethod string `json:"httpMethod,omitempty"`
	IntervalMs int64  `json:"intervalMs,omitempty"`
}

// IntegrationConfig is the persisted definition of one integration.
type IntegrationConfig struct {
	ID       string `json:"id"`
	TenantID int64  `json:"tenantId"`
	Name     string `json:"name"`

	Direction Direction `json:"direction"`
	IsActive  bool      `json:"isActive"`

	// EventType is a literal event type or "*" for all.
	EventType        string          `json:"eventType"`
	Scope            Scope           `json:"scope"`
	ExcludedChildren map[int64]bool  `json:"excludedChildren,omitempty"`

	TargetURL  string            `json:"targetUrl"`
	HTTPMethod string            `json:"httpMethod"`
	TimeoutMs  int               `json:"timeoutMs"`
	RetryCount int               `json:"retryCount"`
	Headers    map[string]string `json:"headers,omitempty"`

	Auth        AuthSpec  `json:"auth"`
	InboundAuth *AuthSpec `json:"inboundAuth,omitempty"`

	Transformation TransformSpec `json:"transformation"`

	// ResponseTransformation (INBOUND only) reshapes the target's response
	// before it is handed back to the caller.
	ResponseTransformation *TransformSpec `json:"responseTransformation,omitempty"`

	Lookups   []LookupSpec `json:"lookups,omitempty"`
	Condition string       `json:"condition,omitempty"`

	RateLimits RateLimitSpec `json:"rateLimits"`
	Signing    SigningSpec   `json:"signing"`

	DeliveryMode     DeliveryMode `json:"deliveryMode"`
	SchedulingScript string       `json:"schedulingScript,omitempty"`

	// Actions, when non-empty, is authoritative and the legacy single-action
	// fields (TargetURL, HTTPMethod, Auth, Transformation) are ignored.
	Actions            []Action `json:"actions,omitempty"`
	MultiActionDelayMs int64    `json:"multiActionDelayMs,omitempty"`

	// Resumable controls multi-action retry: when true, DLQ retries resume
	// from the first failed action instead of restarting the chain.
	Resumable bool `json:"resumable,omitempty"`

	// StreamMode (INBOUND only) copies the target response through a bounded
	// buffer and skips the response transform.
	StreamMode bool `json:"streamMode,omitempty"`

	DataSource *DataSourceSpec `json:"dataSource,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MultiAction reports whether the multi-action chain is authoritative.
func (ic *IntegrationConfig) MultiAction() bool { return len(ic.Actions) > 0 }

// PrimarySigningSecret returns the primary secret, or the newest one when no
// secret is flagged primary. Returns nil when signing has no secrets.
func (ic *IntegrationConfig) PrimarySigningSecret() *SigningSecret {
	var newest *SigningSecret
	for i := range ic.Signing.Secrets {
		s := &ic.Signing.Secrets[i]
		if s.Primary {
			return s
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	return newest
}

// Validate enforces the structural invariants of a configuration.
func (ic *IntegrationConfig) Validate() error {
	if ic.ID == "" {
		return fmt.Errorf("integration id is required")
	}
	if ic.TenantID == 0 {
		return fmt.Errorf("integration %s: tenantId is required", ic.ID)
	}
	switch ic.Direction {
	case DirectionOutbound, DirectionInbound, DirectionScheduled:
	default:
		return fmt.Errorf("integration %s: invalid direction %q", ic.ID, ic.Direction)
	}
	if ic.Direction == DirectionInbound && ic.InboundAuth == nil {
		return fmt.Errorf("integration %s: INBOUND requires inboundAuth", ic.ID)
	}
	if ic.DeliveryMode == "" {
		ic.DeliveryMode = DeliveryImmediate
	}
	if ic.DeliveryMode != DeliveryImmediate && ic.SchedulingScript == "" {
		return fmt.Errorf("integration %s: deliveryMode %s requires schedulingScript", ic.ID, ic.DeliveryMode)
	}
	if n := len(ic.Signing.Secrets); n > MaxSigningSecrets {
		return fmt.Errorf("integration %s: %d signing secrets exceeds limit of %d", ic.ID, n, MaxSigningSecrets)
	}
	primaries := 0
	for _, s := range ic.Signing.Secrets {
		if s.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("integration %s: at most one signing secret may be primary", ic.ID)
	}
	if ic.RateLimits.Enabled && (ic.RateLimits.MaxRequests <= 0 || ic.RateLimits.WindowSeconds <= 0) {
		return fmt.Errorf("integration %s: rate limits require positive maxRequests and windowSeconds", ic.ID)
	}
	return nil
}
