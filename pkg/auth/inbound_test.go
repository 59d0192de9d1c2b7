package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

func inboundVerifier(jwtSecret string) *Provider {
	return NewProvider(nil, nil, jwtSecret)
}

func TestVerifyInboundNone(t *testing.T) {
	p := inboundVerifier("")
	r := httptest.NewRequest("POST", "/", nil)
	assert.NoError(t, p.VerifyInbound(nil, r))
	assert.NoError(t, p.VerifyInbound(&models.AuthSpec{Type: models.AuthNone}, r))
	assert.NoError(t, p.VerifyInbound(&models.AuthSpec{}, r))
}

func TestVerifyInboundAPIKey(t *testing.T) {
	p := inboundVerifier("")
	spec := &models.AuthSpec{Type: models.AuthAPIKey, APIKey: "key-123"}

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("X-Api-Key", "key-123")
	assert.NoError(t, p.VerifyInbound(spec, r), "default header name")

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("X-Api-Key", "wrong")
	err := p.VerifyInbound(spec, r)
	assert.Error(t, err)
	assert.Equal(t, models.CategoryAuthError, models.CategoryOf(err))

	custom := &models.AuthSpec{Type: models.AuthAPIKey, APIKey: "key-123", HeaderName: "X-Custom-Key"}
	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("X-Custom-Key", "key-123")
	assert.NoError(t, p.VerifyInbound(custom, r))
}

func TestVerifyInboundBearer(t *testing.T) {
	p := inboundVerifier("")
	spec := &models.AuthSpec{Type: models.AuthBearer, Token: "tok-abc"}

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer tok-abc")
	assert.NoError(t, p.VerifyInbound(spec, r))

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "tok-abc")
	assert.Error(t, p.VerifyInbound(spec, r), "scheme prefix required")

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	assert.Error(t, p.VerifyInbound(spec, r))
}

func TestVerifyInboundBasic(t *testing.T) {
	p := inboundVerifier("")
	spec := &models.AuthSpec{Type: models.AuthBasic, Username: "svc", Password: "pw"}

	r := httptest.NewRequest("POST", "/", nil)
	r.SetBasicAuth("svc", "pw")
	assert.NoError(t, p.VerifyInbound(spec, r))

	r = httptest.NewRequest("POST", "/", nil)
	r.SetBasicAuth("svc", "nope")
	assert.Error(t, p.VerifyInbound(spec, r))

	r = httptest.NewRequest("POST", "/", nil)
	assert.Error(t, p.VerifyInbound(spec, r), "missing header")
}

func signedJWT(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "caller",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyInboundJWT(t *testing.T) {
	p := inboundVerifier("deployment-secret")
	spec := &models.AuthSpec{Type: models.AuthJWT}

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedJWT(t, "deployment-secret", time.Now().Add(time.Hour)))
	assert.NoError(t, p.VerifyInbound(spec, r))

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedJWT(t, "other-secret", time.Now().Add(time.Hour)))
	err := p.VerifyInbound(spec, r)
	assert.Error(t, err, "wrong signing secret")
	assert.Equal(t, models.CategoryAuthError, models.CategoryOf(err))

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedJWT(t, "deployment-secret", time.Now().Add(-time.Hour)))
	assert.Error(t, p.VerifyInbound(spec, r), "expired token")

	r = httptest.NewRequest("POST", "/", nil)
	assert.Error(t, p.VerifyInbound(spec, r), "missing token")
}

func TestVerifyInboundJWTNotConfigured(t *testing.T) {
	p := inboundVerifier("")
	spec := &models.AuthSpec{Type: models.AuthJWT}

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedJWT(t, "any", time.Now().Add(time.Hour)))
	err := p.VerifyInbound(spec, r)
	assert.Error(t, err, "no deployment secret, no JWT mode")
	assert.Equal(t, models.CategoryAuthError, models.CategoryOf(err))
}

func TestVerifyInboundEmptyConfiguredSecret(t *testing.T) {
	// An empty configured secret never matches, even an empty presented one.
	p := inboundVerifier("")
	spec := &models.AuthSpec{Type: models.AuthAPIKey}
	r := httptest.NewRequest("POST", "/", nil)
	assert.Error(t, p.VerifyInbound(spec, r))
}

func TestVerifyInboundUnsupportedType(t *testing.T) {
	p := inboundVerifier("")
	r := httptest.NewRequest("POST", "/", nil)
	err := p.VerifyInbound(&models.AuthSpec{Type: "KERBEROS"}, r)
	assert.Error(t, err)
	assert.Equal(t, models.CategoryAuthError, models.CategoryOf(err))
}
