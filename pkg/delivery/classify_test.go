package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		statusCode int
		category   models.ErrorCategory
	}{
		{429, models.CategoryRateLimit},
		{408, models.CategoryTimeout},
		{500, models.CategoryServerError},
		{503, models.CategoryServerError},
		{401, models.CategoryAuthError},
		{403, models.CategoryAuthError},
		{400, models.CategoryClientError},
		{404, models.CategoryClientError},
		{422, models.CategoryClientError},
		{302, models.CategoryUnknown},
	}
	for _, tt := range tests {
		err := classify(tt.statusCode, nil, nil, nil)
		require.Error(t, err, "status %d", tt.statusCode)
		assert.Equal(t, tt.category, models.CategoryOf(err), "status %d", tt.statusCode)
		assert.Equal(t, tt.statusCode, models.StatusCodeOf(err), "status %d", tt.statusCode)
	}
}

func TestClassifySuccess(t *testing.T) {
	for _, statusCode := range []int{200, 201, 204, 299} {
		assert.NoError(t, classify(statusCode, nil, nil, nil), "status %d", statusCode)
	}
}

func TestClassifyRequestErrors(t *testing.T) {
	err := classify(0, nil, context.DeadlineExceeded, nil)
	assert.Equal(t, models.CategoryTimeout, models.CategoryOf(err))

	err = classify(0, nil, context.Canceled, nil)
	assert.Equal(t, models.CategoryTimeout, models.CategoryOf(err))

	err = classify(0, nil, timeoutErr{}, nil)
	assert.Equal(t, models.CategoryTimeout, models.CategoryOf(err), "net.Error timeouts classify as TIMEOUT")

	err = classify(0, nil, errors.New("connection refused"), nil)
	assert.Equal(t, models.CategoryNetwork, models.CategoryOf(err))
}

func TestClassifyTokenExpiryInSuccessBody(t *testing.T) {
	detection := &models.TokenExpirationDetection{
		Enabled: true,
		Path:    "error.code",
		Values:  []string{"token_expired"},
	}

	err := classify(200, []byte(`{"error":{"code":"token_expired"}}`), nil, detection)
	require.Error(t, err)
	assert.Equal(t, models.CategoryAuthError, models.CategoryOf(err))
	assert.Equal(t, 200, models.StatusCodeOf(err))

	assert.NoError(t, classify(200, []byte(`{"status":"ok"}`), nil, detection))
	assert.NoError(t, classify(200, []byte(`{"error":{"code":"token_expired"}}`), nil, nil),
		"detection disabled by default")
}
