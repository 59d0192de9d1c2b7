// Package sandbox executes user-authored scripts (transforms, conditions,
// scheduling) in an isolated goja runtime with a fixed helper surface and
// wall-clock limits. Scripts get read-only views of the payload and event
// context; filesystem, network, module loading and dynamic evaluation are
// unavailable.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// ErrTimeout marks a script interrupted at its wall-clock limit. The
// enclosing step records code SCRIPT_TIMEOUT.
var ErrTimeout = errors.New("sandbox: script timeout")

// ScriptContext is the read-only `context` binding visible to scripts.
type ScriptContext struct {
	EventType string `json:"eventType"`
	TenantID  int64  `json:"tenantId"`
	OrgID     int64  `json:"orgId"`
}

// LookupFunc backs the `lookup(code, type)` helper. A returned error is
// thrown into the script.
type LookupFunc func(code, lookupType string) (string, error)

// ScheduleResult is the value returned by a scheduling script: either a
// one-shot fire time or a recurrence.
type ScheduleResult struct {
	// FireAtMillis is set for DELAYED schedules.
	FireAtMillis int64

	// Recurring is set when the script returned an object.
	Recurring *RecurringSpec
}

// RecurringSpec mirrors the object contract of recurring scheduling scripts.
type RecurringSpec struct {
	FirstOccurrenceMillis int64
	IntervalMs            int64
	MaxOccurrences        int
	EndAtMillis           int64
}

// Engine runs scripts under the configured limits. Safe for concurrent use;
// every run gets a fresh runtime.
type Engine struct {
	cfg config.SandboxConfig
}

// NewEngine creates an Engine with the given limits.
func NewEngine(cfg config.SandboxConfig) *Engine {
	return &Engine{cfg: cfg}
}

// RunTransform executes a transform script. The result must be an object.
func (e *Engine) RunTransform(ctx context.Context, script string, payload models.Payload, sctx ScriptContext, lookup LookupFunc) (models.Payload, error) {
	v, err := e.run(ctx, script, payload, sctx, lookup, e.cfg.TransformTimeout)
	if err != nil {
		return nil, err
	}
	exported := v.Export()
	obj, ok := exported.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("transform script must return an object, got %T", exported)
	}
	return models.Payload(obj), nil
}

// RunCondition executes a condition script and coerces the result to bool.
func (e *Engine) RunCondition(ctx context.Context, script string, payload models.Payload, sctx ScriptContext, lookup LookupFunc) (bool, error) {
	v, err := e.run(ctx, script, payload, sctx, lookup, e.cfg.ConditionTimeout)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// RunScheduling executes a scheduling script. A numeric result is a Unix
// millis fire time (DELAYED); an object result is a recurrence spec.
func (e *Engine) RunScheduling(ctx context.Context, script string, payload models.Payload, sctx ScriptContext) (*ScheduleResult, error) {
	v, err := e.run(ctx, script, payload, sctx, nil, e.cfg.SchedulingTimeout)
	if err != nil {
		return nil, err
	}
	switch exported := v.Export().(type) {
	case int64:
		return &ScheduleResult{FireAtMillis: exported}, nil
	case float64:
		return &ScheduleResult{FireAtMillis: int64(exported)}, nil
	case map[string]any:
		spec, err := parseRecurring(exported)
		if err != nil {
			return nil, err
		}
		return &ScheduleResult{Recurring: spec}, nil
	default:
		return nil, fmt.Errorf("scheduling script must return a timestamp or recurrence object, got %T", exported)
	}
}

// run executes one script in a fresh runtime under a wall-clock interrupt.
func (e *Engine) run(ctx context.Context, script string, payload models.Payload, sctx ScriptContext, lookup LookupFunc, timeout time.Duration) (goja.Value, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(e.cfg.MaxStackDepth)

	if err := e.bind(vm, payload, sctx, lookup); err != nil {
		return nil, err
	}

	// Interrupt on timeout or caller cancellation. The watcher goroutine is
	// always released via done.
	done := make(chan struct{})
	defer close(done)
	timer := time.AfterFunc(timeout, func() { vm.Interrupt(ErrTimeout) })
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := vm.RunString(wrapScript(script))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("script error: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("script returned no value")
	}
	return v, nil
}

// bind installs the fixed helper surface and strips dynamic evaluation.
func (e *Engine) bind(vm *goja.Runtime, payload models.Payload, sctx ScriptContext, lookup LookupFunc) error {
	// goja has no ambient process/require/import; eval and the Function
	// constructor are the remaining dynamic-evaluation paths.
	if err := vm.Set("eval", goja.Undefined()); err != nil {
		return err
	}
	if err := vm.Set("Function", goja.Undefined()); err != nil {
		return err
	}

	if err := vm.Set("payload", map[string]any(payload.Clone())); err != nil {
		return err
	}
	if err := vm.Set("context", map[string]any{
		"eventType": sctx.EventType,
		"tenantId":  sctx.TenantID,
		"orgId":     sctx.OrgID,
	}); err != nil {
		return err
	}

	if lookup != nil {
		if err := vm.Set("lookup", func(call goja.FunctionCall) goja.Value {
			code := call.Argument(0).String()
			lookupType := call.Argument(1).String()
			value, err := lookup(code, lookupType)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(value)
		}); err != nil {
			return err
		}
	}

	return bindDateHelpers(vm)
}

// wrapScript makes `return`-style scripts runnable while keeping the
// last-expression contract for expression scripts.
func wrapScript(script string) string {
	if strings.Contains(script, "return") {
		return "(function() {\n" + script + "\n})()"
	}
	return script
}

func parseRecurring(obj map[string]any) (*RecurringSpec, error) {
	spec := &RecurringSpec{
		FirstOccurrenceMillis: toMillis(obj["firstOccurrence"]),
		IntervalMs:            toMillis(obj["intervalMs"]),
		MaxOccurrences:        int(toMillis(obj["maxOccurrences"])),
		EndAtMillis:           toMillis(obj["endAt"]),
	}
	if spec.FirstOccurrenceMillis == 0 {
		return nil, fmt.Errorf("recurrence requires firstOccurrence")
	}
	if spec.IntervalMs <= 0 {
		return nil, fmt.Errorf("recurrence requires positive intervalMs")
	}
	if spec.MaxOccurrences == 0 && spec.EndAtMillis == 0 {
		return nil, fmt.Errorf("recurrence requires maxOccurrences or endAt")
	}
	return spec, nil
}

func toMillis(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
