package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

func testEngine() *Engine {
	return NewEngine(config.DefaultSandboxConfig())
}

func TestRunTransform(t *testing.T) {
	e := testEngine()
	payload := models.Payload{"name": "  Ada ", "visits": float64(3)}

	out, err := e.RunTransform(context.Background(),
		`({fullName: payload.name.trim(), count: payload.visits + 1, tenant: context.tenantId})`,
		payload, ScriptContext{TenantID: 42}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", out["fullName"])
	assert.Equal(t, int64(4), out["count"])
	assert.Equal(t, int64(42), out["tenant"])
}

func TestRunTransformReturnStyle(t *testing.T) {
	e := testEngine()
	out, err := e.RunTransform(context.Background(),
		"var x = payload.a * 2;\nreturn {doubled: x};",
		models.Payload{"a": float64(5)}, ScriptContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out["doubled"])
}

func TestRunTransformMustReturnObject(t *testing.T) {
	e := testEngine()
	_, err := e.RunTransform(context.Background(), `"just a string"`, models.Payload{}, ScriptContext{}, nil)
	assert.ErrorContains(t, err, "must return an object")
}

func TestRunTransformCannotMutateCallerPayload(t *testing.T) {
	e := testEngine()
	payload := models.Payload{"a": "original"}
	_, err := e.RunTransform(context.Background(),
		`payload.a = "mutated"; ({out: payload.a})`, payload, ScriptContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "original", payload["a"], "scripts see a clone")
}

func TestRunCondition(t *testing.T) {
	e := testEngine()
	tests := []struct {
		script string
		want   bool
	}{
		{`payload.amount > 100`, true},
		{`payload.amount > 1000`, false},
		{`context.eventType === "bill.created"`, true},
		{`payload.missing`, false},
	}
	for _, tt := range tests {
		got, err := e.RunCondition(context.Background(), tt.script,
			models.Payload{"amount": float64(500)},
			ScriptContext{EventType: "bill.created"}, nil)
		require.NoError(t, err, tt.script)
		assert.Equal(t, tt.want, got, tt.script)
	}
}

func TestRunConditionLookupHelper(t *testing.T) {
	e := testEngine()
	lookup := func(code, lookupType string) (string, error) {
		if code == "ICD-10" && lookupType == "codeSystem" {
			return "external-1", nil
		}
		return "", errors.New("unmapped")
	}
	got, err := e.RunCondition(context.Background(),
		`lookup("ICD-10", "codeSystem") === "external-1"`,
		models.Payload{}, ScriptContext{}, lookup)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = e.RunCondition(context.Background(),
		`lookup("nope", "codeSystem")`, models.Payload{}, ScriptContext{}, lookup)
	assert.Error(t, err, "lookup errors are thrown into the script")
}

func TestScriptTimeout(t *testing.T) {
	cfg := config.DefaultSandboxConfig()
	cfg.ConditionTimeout = 50 * time.Millisecond
	e := NewEngine(cfg)

	_, err := e.RunCondition(context.Background(), `while (true) {}`, models.Payload{}, ScriptContext{}, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestContextCancellation(t *testing.T) {
	e := testEngine()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.RunCondition(ctx, `while (true) {}`, models.Payload{}, ScriptContext{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDynamicEvaluationForbidden(t *testing.T) {
	e := testEngine()
	for _, script := range []string{
		`eval("1+1")`,
		`new Function("return 1")()`,
	} {
		_, err := e.RunCondition(context.Background(), script, models.Payload{}, ScriptContext{}, nil)
		assert.Error(t, err, script)
	}
}

func TestRunSchedulingDelayed(t *testing.T) {
	e := testEngine()
	res, err := e.RunScheduling(context.Background(),
		`addMinutes(toTimestamp(payload.visitDate), 30)`,
		models.Payload{"visitDate": "2026-03-01T10:00:00Z"}, ScriptContext{})
	require.NoError(t, err)
	require.Nil(t, res.Recurring)

	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, res.FireAtMillis)
}

func TestRunSchedulingRecurring(t *testing.T) {
	e := testEngine()
	res, err := e.RunScheduling(context.Background(),
		`({firstOccurrence: 1000, intervalMs: 60000, maxOccurrences: 5})`,
		models.Payload{}, ScriptContext{})
	require.NoError(t, err)
	require.NotNil(t, res.Recurring)
	assert.Equal(t, int64(1000), res.Recurring.FirstOccurrenceMillis)
	assert.Equal(t, int64(60000), res.Recurring.IntervalMs)
	assert.Equal(t, 5, res.Recurring.MaxOccurrences)
}

func TestRunSchedulingRejectsUnboundedRecurrence(t *testing.T) {
	e := testEngine()
	_, err := e.RunScheduling(context.Background(),
		`({firstOccurrence: 1000, intervalMs: 60000})`, models.Payload{}, ScriptContext{})
	assert.ErrorContains(t, err, "maxOccurrences or endAt")
}

func TestDateHelpers(t *testing.T) {
	e := testEngine()
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		script string
		want   int64
	}{
		{`addMinutes(payload.base, 10)`, base + 10*60*1000},
		{`subtractHours(payload.base, 2)`, base - 2*60*60*1000},
		{`addDays(payload.base, 1)`, base + 24*60*60*1000},
	}
	for _, tt := range tests {
		res, err := e.RunScheduling(context.Background(), tt.script,
			models.Payload{"base": base}, ScriptContext{})
		require.NoError(t, err, tt.script)
		assert.Equal(t, tt.want, res.FireAtMillis, tt.script)
	}
}
