// Package delivery runs the per-attempt pipeline that moves a matched event
// to its target: validate, rate-limit, transform, auth, HTTP, classify. It
// also hosts the inbound proxy leg, the scheduled-job runner and the workers
// that drain the audit ledger.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/auth"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/dlq"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/execlog"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/ratelimit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/transform"
)

// defaultTimeout applies when neither the integration nor the action sets one.
const defaultTimeout = 30 * time.Second

// maxResponseBytes bounds how much of a target response is read.
const maxResponseBytes = 4 << 20

// Engine executes delivery attempts.
type Engine struct {
	integrations store.IntegrationStore
	transformer  *transform.Engine
	authProvider *auth.Provider
	limiter      ratelimit.Limiter
	recorder     *execlog.Recorder
	dlqService   *dlq.Service
	sandbox      *sandbox.Engine
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewEngine creates an Engine. httpClient nil falls back to a client without
// a global timeout; per-request timeouts come from the integration config.
func NewEngine(
	integrations store.IntegrationStore,
	transformer *transform.Engine,
	authProvider *auth.Provider,
	limiter ratelimit.Limiter,
	recorder *execlog.Recorder,
	dlqService *dlq.Service,
	sb *sandbox.Engine,
	httpClient *http.Client,
	logger *slog.Logger,
) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		integrations: integrations,
		transformer:  transformer,
		authProvider: authProvider,
		limiter:      limiter,
		recorder:     recorder,
		dlqService:   dlqService,
		sandbox:      sb,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// Attempt is one delivery of one payload to one integration.
type Attempt struct {
	Integration *models.IntegrationConfig
	TraceID     string
	MessageID   string
	TenantID    int64
	OrgID       int64
	EventType   string
	Payload     models.Payload
	Trigger     models.TriggerType

	// ResumeActionIndex starts a resumable multi-action chain mid-way.
	ResumeActionIndex int

	// fromDLQ suppresses dead-lettering; the DLQ worker records the outcome
	// on the existing entry instead.
	fromDLQ bool

	// failedAction is set by the pipeline to the index of the action that
	// failed, for resumable chains.
	failedAction int
}

// Deliver runs one outbound attempt end to end: execution log, pipeline,
// outcome metrics and dead-lettering. The returned error carries the
// category.
func (e *Engine) Deliver(ctx context.Context, a *Attempt) error {
	trace := e.recorder.Begin(models.ExecutionLog{
		TraceID:       a.TraceID,
		MessageID:     a.MessageID,
		Direction:     models.DirectionOutbound,
		TriggerType:   a.Trigger,
		IntegrationID: a.Integration.ID,
		TenantID:      a.TenantID,
	})

	err := e.attempt(ctx, a, trace)
	if err == nil {
		observability.DeliveryOutcomes.WithLabelValues("success").Inc()
		trace.Finish(ctx, models.ExecSuccess, nil)
		return nil
	}

	category := models.CategoryOf(err)
	observability.DeliveryOutcomes.WithLabelValues(string(category)).Inc()
	trace.Finish(ctx, models.ExecFailed, err)

	if !a.fromDLQ && category.Retriable() {
		entry := &models.DLQEntry{
			TraceID:        a.TraceID,
			ExecutionLogID: a.TraceID,
			IntegrationID:  a.Integration.ID,
			TenantID:       a.TenantID,
			Direction:      models.DirectionOutbound,
			Payload:        a.Payload,
			MessageID:      a.MessageID,
			MaxRetries:     a.Integration.RetryCount,
			Error: models.ErrorDetail{
				Message:    err.Error(),
				Category:   category,
				StatusCode: models.StatusCodeOf(err),
			},
		}
		if a.Integration.Resumable {
			entry.ResumeActionIndex = a.failedAction
		}
		if recordErr := e.dlqService.Record(ctx, entry); recordErr != nil {
			e.logger.Error("dead-lettering failed",
				"traceId", a.TraceID, "integrationId", a.Integration.ID, "error", recordErr)
		}
	}
	return err
}

// attempt runs the pipeline steps. Panics become UNKNOWN failures recorded on
// the trace rather than killing the worker.
func (e *Engine) attempt(ctx context.Context, a *Attempt, trace *execlog.Trace) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewCategorizedError(models.CategoryUnknown,
				fmt.Errorf("delivery panicked: %v", r))
			e.logger.Error("delivery panicked",
				"traceId", a.TraceID, "integrationId", a.Integration.ID, "panic", r)
		}
	}()

	ic := a.Integration

	if err := trace.Step(models.StepValidation, func() (map[string]any, error) {
		if !ic.IsActive {
			return nil, models.NewCategorizedError(models.CategoryValidationError,
				fmt.Errorf("integration %s is inactive", ic.ID))
		}
		if err := ic.Validate(); err != nil {
			return nil, models.NewCategorizedError(models.CategoryValidationError, err)
		}
		return nil, nil
	}); err != nil {
		return err
	}

	if err := trace.Step(models.StepRateLimit, func() (map[string]any, error) {
		decision, err := e.limiter.CheckAndIncrement(ctx, ic.ID, a.TenantID, ic.RateLimits)
		if err != nil {
			// Limiter outages fail open: delivery matters more than the cap.
			e.logger.Warn("rate limiter unavailable, allowing",
				"integrationId", ic.ID, "error", err)
			return map[string]any{"degraded": true}, nil
		}
		meta := map[string]any{"remaining": decision.Remaining}
		if !decision.Allowed {
			meta["retryAfterMs"] = decision.RetryAfter.Milliseconds()
			return meta, &models.CategorizedError{
				Category:   models.CategoryRateLimit,
				StatusCode: http.StatusTooManyRequests,
				Err:        fmt.Errorf("rate limit exceeded, resets at %s", decision.ResetAt.Format(time.RFC3339)),
			}
		}
		return meta, nil
	}); err != nil {
		return err
	}

	actions := e.actionList(ic)
	priorOutput := a.Payload

	for i := a.ResumeActionIndex; i < len(actions); i++ {
		action := actions[i]
		if i > a.ResumeActionIndex && ic.MultiActionDelayMs > 0 {
			if err := sleepCtx(ctx, time.Duration(ic.MultiActionDelayMs)*time.Millisecond); err != nil {
				a.failedAction = i
				return models.NewCategorizedError(models.CategoryTimeout, err)
			}
		}

		if action.Condition != "" {
			run, err := e.sandbox.RunCondition(ctx, action.Condition, priorOutput, sandbox.ScriptContext{
				EventType: a.EventType,
				TenantID:  a.TenantID,
				OrgID:     a.OrgID,
			}, nil)
			if err != nil {
				e.logger.Warn("action condition failed, skipping action",
					"integrationId", ic.ID, "action", action.Name, "error", err)
				continue
			}
			if !run {
				continue
			}
		}

		output, err := e.runAction(ctx, a, ic, action, i, len(actions) > 1, trace)
		if err != nil {
			a.failedAction = i
			return err
		}
		priorOutput = output
	}
	return nil
}

// actionList returns the multi-action chain, or a single action synthesized
// from the legacy top-level fields.
func (e *Engine) actionList(ic *models.IntegrationConfig) []models.Action {
	if ic.MultiAction() {
		return ic.Actions
	}
	return []models.Action{{
		Name:           "default",
		TargetURL:      ic.TargetURL,
		HTTPMethod:     ic.HTTPMethod,
		Headers:        ic.Headers,
		Auth:           &ic.Auth,
		Transformation: &ic.Transformation,
		TimeoutMs:      ic.TimeoutMs,
	}}
}

// runAction executes transform, auth, http_request and classify for one
// action, returning the parsed response body for the next action's condition.
func (e *Engine) runAction(ctx context.Context, a *Attempt, ic *models.IntegrationConfig, action models.Action, index int, multi bool, trace *execlog.Trace) (models.Payload, error) {
	meta := func(extra map[string]any) map[string]any {
		if !multi {
			return extra
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra["action"] = action.Name
		extra["actionIndex"] = index
		return extra
	}

	transformSpec := action.Transformation
	if transformSpec == nil {
		transformSpec = &models.TransformSpec{Mode: models.TransformPassthrough}
	}
	authSpec := action.Auth
	if authSpec == nil {
		authSpec = &models.AuthSpec{Type: models.AuthNone}
	}

	var body models.Payload
	if err := trace.Step(models.StepTransform, func() (map[string]any, error) {
		out, err := e.transformer.Apply(ctx, transformSpec, ic.Lookups, a.Payload, sandbox.ScriptContext{
			EventType: a.EventType,
			TenantID:  a.TenantID,
			OrgID:     a.OrgID,
		})
		if err != nil {
			return meta(nil), err
		}
		body = out
		return meta(map[string]any{"mode": string(transformSpec.Mode)}), nil
	}); err != nil {
		return nil, err
	}

	var authHeaders map[string]string
	if err := trace.Step(models.StepAuth, func() (map[string]any, error) {
		headers, err := e.authProvider.Resolve(ctx, ic.ID, authSpec)
		if err != nil {
			return meta(nil), err
		}
		authHeaders = headers
		return meta(map[string]any{"type": string(authSpec.Type)}), nil
	}); err != nil {
		return nil, err
	}

	raw := body.JSON()
	method := action.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range ic.Headers {
		headers[k] = v
	}
	for k, v := range action.Headers {
		headers[k] = v
	}
	for k, v := range authHeaders {
		headers[k] = v
	}
	for k, v := range auth.SignatureHeaders(ic.Signing, a.MessageID, time.Now(), raw) {
		headers[k] = v
	}

	timeout := defaultTimeout
	if action.TimeoutMs > 0 {
		timeout = time.Duration(action.TimeoutMs) * time.Millisecond
	} else if ic.TimeoutMs > 0 {
		timeout = time.Duration(ic.TimeoutMs) * time.Millisecond
	}

	trace.SetRequest(action.TargetURL, method, headers, raw)

	var statusCode int
	var respBody []byte
	var respHeaders map[string]string
	var reqErr error
	_ = trace.Step(models.StepHTTPRequest, func() (map[string]any, error) {
		statusCode, respHeaders, respBody, reqErr = e.dispatch(ctx, method, action.TargetURL, headers, raw, timeout)
		if reqErr != nil {
			return meta(nil), reqErr
		}
		return meta(map[string]any{"statusCode": statusCode}), nil
	})
	if reqErr == nil {
		trace.SetResponse(statusCode, respHeaders, respBody)
	}

	var output models.Payload
	if err := trace.Step(models.StepClassify, func() (map[string]any, error) {
		if err := classify(statusCode, respBody, reqErr, authSpec.TokenExpirationDetection); err != nil {
			if models.CategoryOf(err) == models.CategoryAuthError && tokenBearing(authSpec.Type) {
				// Next attempt must fetch a fresh token.
				if clearErr := e.authProvider.ClearToken(ctx, ic.ID); clearErr != nil {
					e.logger.Error("clearing cached token failed",
						"integrationId", ic.ID, "error", clearErr)
				}
			}
			return meta(nil), err
		}
		if parsed, parseErr := models.ParsePayload(respBody); parseErr == nil {
			output = parsed
		}
		return meta(map[string]any{"category": "success"}), nil
	}); err != nil {
		return nil, err
	}

	if output == nil {
		output = body
	}
	return output, nil
}

// dispatch performs the HTTP call with a per-request timeout.
func (e *Engine) dispatch(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (int, map[string]string, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, execlog.FlattenHeaders(resp.Header), respBody, nil
}

func tokenBearing(t models.AuthType) bool {
	return t == models.AuthOAuth2 || t == models.AuthCustom
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
