// Package auth resolves outbound credentials into request mutations and
// verifies inbound credentials for the proxy. OAuth2 and custom tokens are
// cached on the integration row (surviving restarts and shared across
// workers) and fetched under a per-integration singleflight so concurrent
// deliveries never stampede a token endpoint.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"golang.org/x/sync/singleflight"
)

// Provider resolves credentials for deliveries.
type Provider struct {
	integrations store.IntegrationStore
	httpClient   *http.Client
	jwtSecret    string
	group        singleflight.Group
}

// NewProvider creates a Provider. httpClient is used for token endpoints
// only; nil falls back to http.DefaultClient. jwtSecret is the deployment
// secret verifying JWT inbound auth; empty disables that mode.
func NewProvider(integrations store.IntegrationStore, httpClient *http.Client, jwtSecret string) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{integrations: integrations, httpClient: httpClient, jwtSecret: jwtSecret}
}

// Resolve returns the header mutations for one outbound request. HMAC is
// body-dependent and handled separately via SignatureHeaders at dispatch
// time. Failures are categorized AUTH_ERROR.
func (p *Provider) Resolve(ctx context.Context, integrationID string, spec *models.AuthSpec) (map[string]string, error) {
	switch spec.Type {
	case models.AuthNone, models.AuthHMAC, "":
		return map[string]string{}, nil

	case models.AuthAPIKey:
		header := spec.HeaderName
		if header == "" {
			header = "X-Api-Key"
		}
		return map[string]string{header: spec.APIKey}, nil

	case models.AuthBearer:
		return map[string]string{"Authorization": "Bearer " + spec.Token}, nil

	case models.AuthBasic:
		credentials := base64.StdEncoding.EncodeToString([]byte(spec.Username + ":" + spec.Password))
		return map[string]string{"Authorization": "Basic " + credentials}, nil

	case models.AuthOAuth2:
		token, err := p.token(ctx, integrationID, spec)
		if err != nil {
			return nil, err
		}
		return map[string]string{"Authorization": "Bearer " + token}, nil

	case models.AuthCustom:
		token, err := p.token(ctx, integrationID, spec)
		if err != nil {
			return nil, err
		}
		header := spec.CustomHeader
		if header == "" {
			header = "Authorization"
		}
		return map[string]string{header: token}, nil

	default:
		return nil, models.NewCategorizedError(models.CategoryAuthError,
			fmt.Errorf("unknown auth type %q", spec.Type))
	}
}

// ClearToken drops the persisted token cache for an integration, typically
// after expiration detection.
func (p *Provider) ClearToken(ctx context.Context, integrationID string) error {
	return p.integrations.UpdateTokenCache(ctx, integrationID, store.TokenCachePatch{Clear: true})
}

// extractPath walks a dotted path through decoded JSON.
func extractPath(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, seg := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return current, true
}
