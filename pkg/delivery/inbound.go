package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/auth"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/execlog"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
)

// maxInboundBody bounds how much of a caller's request body is read.
const maxInboundBody = 10 << 20

// ProxyResult is what the inbound handler returns to the caller.
type ProxyResult struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Proxy runs the inbound leg: verify the caller, transform the request,
// relay it to the target and transform the response back. Stream mode copies
// the target response through a bounded buffer and skips the response
// transform. The returned error is categorized; the handler maps RATE_LIMIT
// to 429, AUTH_ERROR to 401 and everything else to 502.
func (e *Engine) Proxy(r *http.Request, ic *models.IntegrationConfig, traceID string) (*ProxyResult, error) {
	ctx := r.Context()
	trace := e.recorder.Begin(models.ExecutionLog{
		TraceID:       traceID,
		MessageID:     traceID,
		Direction:     models.DirectionInbound,
		TriggerType:   models.TriggerAPI,
		IntegrationID: ic.ID,
		TenantID:      ic.TenantID,
	})

	result, err := e.proxy(ctx, r, ic, traceID, trace)
	if err != nil {
		observability.DeliveryOutcomes.WithLabelValues(string(models.CategoryOf(err))).Inc()
		trace.Finish(ctx, models.ExecFailed, err)
		return nil, err
	}
	observability.DeliveryOutcomes.WithLabelValues("success").Inc()
	trace.Finish(ctx, models.ExecSuccess, nil)
	return result, nil
}

func (e *Engine) proxy(ctx context.Context, r *http.Request, ic *models.IntegrationConfig, traceID string, trace *execlog.Trace) (*ProxyResult, error) {
	if err := trace.Step(models.StepInboundAuth, func() (map[string]any, error) {
		if !ic.IsActive {
			return nil, models.NewCategorizedError(models.CategoryValidationError,
				fmt.Errorf("integration %s is inactive", ic.ID))
		}
		return nil, e.authProvider.VerifyInbound(ic.InboundAuth, r)
	}); err != nil {
		return nil, err
	}

	rawIn, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryNetwork,
			fmt.Errorf("reading request body: %w", err))
	}

	decision, err := e.limiter.CheckAndIncrement(ctx, ic.ID, ic.TenantID, ic.RateLimits)
	if err == nil && !decision.Allowed {
		return nil, &models.CategorizedError{
			Category:   models.CategoryRateLimit,
			StatusCode: http.StatusTooManyRequests,
			Err:        fmt.Errorf("rate limit exceeded, retry after %s", decision.RetryAfter),
		}
	}

	sctx := sandbox.ScriptContext{TenantID: ic.TenantID}
	payload := models.Payload{}
	if len(rawIn) > 0 {
		if payload, err = models.ParsePayload(rawIn); err != nil {
			return nil, models.NewCategorizedError(models.CategoryValidationError,
				fmt.Errorf("request body is not JSON: %w", err))
		}
	}

	var outBody models.Payload
	if err := trace.Step(models.StepRequestTransform, func() (map[string]any, error) {
		out, err := e.transformer.Apply(ctx, &ic.Transformation, ic.Lookups, payload, sctx)
		if err != nil {
			return nil, err
		}
		outBody = out
		return map[string]any{"mode": string(ic.Transformation.Mode)}, nil
	}); err != nil {
		return nil, err
	}

	authHeaders, err := e.authProvider.Resolve(ctx, ic.ID, &ic.Auth)
	if err != nil {
		return nil, err
	}

	raw := outBody.JSON()
	method := ic.HTTPMethod
	if method == "" {
		method = r.Method
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range ic.Headers {
		headers[k] = v
	}
	for k, v := range authHeaders {
		headers[k] = v
	}
	for k, v := range auth.SignatureHeaders(ic.Signing, traceID, time.Now(), raw) {
		headers[k] = v
	}

	timeout := defaultTimeout
	if ic.TimeoutMs > 0 {
		timeout = time.Duration(ic.TimeoutMs) * time.Millisecond
	}
	trace.SetRequest(ic.TargetURL, method, headers, raw)

	var statusCode int
	var respBody []byte
	var respHeaders map[string]string
	var reqErr error
	_ = trace.Step(models.StepHTTPRequest, func() (map[string]any, error) {
		statusCode, respHeaders, respBody, reqErr = e.dispatch(ctx, method, ic.TargetURL, headers, raw, timeout)
		if reqErr != nil {
			return nil, reqErr
		}
		return map[string]any{"statusCode": statusCode, "stream": ic.StreamMode}, nil
	})
	if reqErr != nil {
		return nil, classify(0, nil, reqErr, nil)
	}
	trace.SetResponse(statusCode, respHeaders, respBody)

	result := &ProxyResult{StatusCode: statusCode, Headers: respHeaders, Body: respBody}
	if ic.StreamMode {
		return result, nil
	}

	if ic.ResponseTransformation == nil {
		return result, nil
	}
	if err := trace.Step(models.StepResponseTransform, func() (map[string]any, error) {
		// The caller gets the target's status either way; only a JSON body
		// is reshaped.
		parsed, parseErr := models.ParsePayload(respBody)
		if parseErr != nil {
			return map[string]any{"passthrough": true}, nil
		}
		reshaped, err := e.transformer.Apply(ctx, ic.ResponseTransformation, nil, parsed, sctx)
		if err != nil {
			return nil, err
		}
		result.Body = reshaped.JSON()
		return map[string]any{"mode": string(ic.ResponseTransformation.Mode)}, nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}
