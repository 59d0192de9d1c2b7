package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// TokenSafetyMargin is subtracted from the token expiry when deciding
// whether a cached token is still usable.
const TokenSafetyMargin = 5 * time.Minute

// defaultTokenLifetime applies when the token response carries no expiry.
const defaultTokenLifetime = 1 * time.Hour

// token returns a usable bearer token for the integration, from the
// persisted cache when fresh, otherwise fetched under singleflight.
func (p *Provider) token(ctx context.Context, integrationID string, spec *models.AuthSpec) (string, error) {
	if tok, ok := cachedToken(spec, time.Now()); ok {
		return tok, nil
	}

	// Single-flight per integration: one fetch, result broadcast to
	// waiters. The cached row is re-read inside the flight because another
	// pod may have refreshed it while we queued.
	v, err, _ := p.group.Do("token:"+integrationID, func() (any, error) {
		fresh, err := p.integrations.GetByID(ctx, integrationID)
		if err == nil {
			if tok, ok := cachedToken(&fresh.Auth, time.Now()); ok {
				return tok, nil
			}
		}

		token, expiresIn, err := p.fetchToken(ctx, spec)
		if err != nil {
			observability.TokenFetches.WithLabelValues(integrationID, "error").Inc()
			return nil, models.NewCategorizedError(models.CategoryAuthError, err)
		}
		observability.TokenFetches.WithLabelValues(integrationID, "ok").Inc()

		now := time.Now()
		expiresAt := now.Add(expiresIn)
		if err := p.integrations.UpdateTokenCache(ctx, integrationID, store.TokenCachePatch{
			Token:       token,
			ExpiresAt:   &expiresAt,
			LastFetched: &now,
		}); err != nil {
			return nil, fmt.Errorf("persisting token cache: %w", err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cachedToken returns the cached token iff now < expiresAt − safetyMargin.
func cachedToken(spec *models.AuthSpec, now time.Time) (string, bool) {
	if spec.CachedToken == "" || spec.TokenExpiresAt == nil {
		return "", false
	}
	if now.Before(spec.TokenExpiresAt.Add(-TokenSafetyMargin)) {
		return spec.CachedToken, true
	}
	return "", false
}

// fetchToken POSTs the configured grant to the token endpoint and extracts
// the token and lifetime from the response body.
func (p *Provider) fetchToken(ctx context.Context, spec *models.AuthSpec) (string, time.Duration, error) {
	var req *http.Request
	var err error

	switch spec.Type {
	case models.AuthOAuth2:
		form := url.Values{}
		switch spec.GrantType {
		case "password":
			form.Set("grant_type", "password")
			form.Set("username", spec.Username)
			form.Set("password", spec.Password)
		default:
			form.Set("grant_type", "client_credentials")
		}
		form.Set("client_id", spec.ClientID)
		form.Set("client_secret", spec.ClientSecret)
		if spec.Scope != "" {
			form.Set("scope", spec.Scope)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, spec.TokenURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

	case models.AuthCustom:
		method := spec.CustomMethod
		if method == "" {
			method = http.MethodPost
		}
		req, err = http.NewRequestWithContext(ctx, method, spec.TokenURL, strings.NewReader(spec.CustomBody))
		if err == nil && spec.CustomBody != "" {
			req.Header.Set("Content-Type", "application/json")
		}

	default:
		return "", 0, fmt.Errorf("auth type %q has no token endpoint", spec.Type)
	}
	if err != nil {
		return "", 0, fmt.Errorf("building token request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token endpoint %s: %w", spec.TokenURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("token endpoint %s returned %d", spec.TokenURL, resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}

	tokenPath := spec.TokenResponsePath
	if tokenPath == "" {
		tokenPath = "access_token"
	}
	raw, ok := extractPath(decoded, tokenPath)
	if !ok {
		return "", 0, fmt.Errorf("token response missing %q", tokenPath)
	}
	token := fmt.Sprint(raw)
	if token == "" {
		return "", 0, fmt.Errorf("token response has empty token at %q", tokenPath)
	}

	expiresPath := spec.TokenExpiresInPath
	if expiresPath == "" {
		expiresPath = "expires_in"
	}
	lifetime := defaultTokenLifetime
	if raw, ok := extractPath(decoded, expiresPath); ok {
		if secs, ok := raw.(float64); ok && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
	}
	return token, lifetime, nil
}
