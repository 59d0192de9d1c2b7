package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/tenant"
)

func testTransformEngine(lookups *store.MemoryLookups, tenants *store.MemoryTenants) *Engine {
	if lookups == nil {
		lookups = store.NewMemoryLookups()
	}
	if tenants == nil {
		tenants = store.NewMemoryTenants()
	}
	sb := sandbox.NewEngine(config.DefaultSandboxConfig())
	return NewEngine(sb, NewResolver(lookups, tenant.NewHierarchy(tenants)))
}

func TestApplyPassthrough(t *testing.T) {
	e := testTransformEngine(nil, nil)
	payload := models.Payload{"a": "b", "nested": map[string]any{"x": float64(1)}}

	out, err := e.Apply(context.Background(), &models.TransformSpec{Mode: models.TransformPassthrough},
		nil, payload, sandbox.ScriptContext{})
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	// Passthrough clones: mutating the output leaves the event untouched.
	out["a"] = "changed"
	assert.Equal(t, "b", payload["a"])
}

func TestApplySimpleMappings(t *testing.T) {
	e := testTransformEngine(nil, nil)
	payload := models.Payload{
		"patient": map[string]any{
			"firstName": "  ada ",
			"lastName":  "lovelace",
			"dob":       "1990-05-01",
		},
	}
	spec := &models.TransformSpec{
		Mode: models.TransformSimple,
		Mappings: []models.Mapping{
			{SourcePath: "patient.firstName", TargetPath: "name.first", Transform: models.MapTrim},
			{SourcePath: "patient.lastName", TargetPath: "name.last", Transform: models.MapUpper},
			{SourcePath: "patient.dob", TargetPath: "birthDate", Transform: models.MapDateISO},
			{SourcePath: "patient.middleName", TargetPath: "name.middle"},
			{SourcePath: "patient.gender", TargetPath: "gender", Transform: models.MapDefault, DefaultValue: "unknown"},
		},
		StaticFields: []models.StaticField{{Key: "source", Value: "gateway"}},
	}

	out, err := e.Apply(context.Background(), spec, nil, payload, sandbox.ScriptContext{TenantID: 1})
	require.NoError(t, err)

	name := out["name"].(map[string]any)
	assert.Equal(t, "ada", name["first"])
	assert.Equal(t, "LOVELACE", name["last"])
	assert.Equal(t, "1990-05-01T00:00:00Z", out["birthDate"])
	assert.NotContains(t, name, "middle", "missing sources stay absent")
	assert.Equal(t, "unknown", out["gender"])
	assert.Equal(t, "gateway", out["source"])
}

func TestApplySimpleFanOut(t *testing.T) {
	e := testTransformEngine(nil, nil)
	payload := models.Payload{
		"items": []any{
			map[string]any{"code": "a1", "qty": float64(2)},
			map[string]any{"code": "b2", "qty": float64(5)},
		},
	}
	spec := &models.TransformSpec{
		Mode: models.TransformSimple,
		Mappings: []models.Mapping{
			{SourcePath: "items[].code", TargetPath: "lines[].sku", Transform: models.MapUpper},
			{SourcePath: "items[].qty", TargetPath: "lines[].quantity"},
		},
	}

	out, err := e.Apply(context.Background(), spec, nil, payload, sandbox.ScriptContext{TenantID: 1})
	require.NoError(t, err)

	lines := out["lines"].([]any)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	assert.Equal(t, "A1", first["sku"])
	assert.Equal(t, float64(2), first["quantity"])
	second := lines[1].(map[string]any)
	assert.Equal(t, "B2", second["sku"])
}

func TestApplySimpleFanOutMismatch(t *testing.T) {
	e := testTransformEngine(nil, nil)
	spec := &models.TransformSpec{
		Mode:     models.TransformSimple,
		Mappings: []models.Mapping{{SourcePath: "items[].code", TargetPath: "flat"}},
	}
	_, err := e.Apply(context.Background(), spec, nil,
		models.Payload{"items": []any{}}, sandbox.ScriptContext{TenantID: 1})
	require.Error(t, err)
	assert.Equal(t, models.CategoryValidationError, models.CategoryOf(err))
}

func TestApplyScript(t *testing.T) {
	e := testTransformEngine(nil, nil)
	spec := &models.TransformSpec{
		Mode:   models.TransformScript,
		Script: `({id: payload.visitId, type: context.eventType})`,
	}
	out, err := e.Apply(context.Background(), spec, nil,
		models.Payload{"visitId": "v-9"},
		sandbox.ScriptContext{EventType: "visit.closed", TenantID: 7})
	require.NoError(t, err)
	assert.Equal(t, "v-9", out["id"])
	assert.Equal(t, "visit.closed", out["type"])
}

func TestApplyScriptErrorIsDataError(t *testing.T) {
	e := testTransformEngine(nil, nil)
	spec := &models.TransformSpec{Mode: models.TransformScript, Script: `payload.no.such.thing`}
	_, err := e.Apply(context.Background(), spec, nil, models.Payload{}, sandbox.ScriptContext{})
	require.Error(t, err)
	assert.Equal(t, models.CategoryDataError, models.CategoryOf(err))
}

func TestApplyUnknownMode(t *testing.T) {
	e := testTransformEngine(nil, nil)
	_, err := e.Apply(context.Background(), &models.TransformSpec{Mode: "XSLT"},
		nil, models.Payload{}, sandbox.ScriptContext{})
	require.Error(t, err)
	assert.Equal(t, models.CategoryValidationError, models.CategoryOf(err))
}

func TestLookupMappingWithHierarchyFallback(t *testing.T) {
	lookups := store.NewMemoryLookups()
	tenants := store.NewMemoryTenants()
	// Child 20 under parent 10; only the parent has the mapping.
	tenants.Put(&models.Tenant{ID: 10, Name: "org"})
	tenants.Put(&models.Tenant{ID: 20, ParentID: 10, Name: "clinic"})
	lookups.Put(&models.LookupEntry{TenantID: 10, Type: "dept", Key: "CARD", Value: "Cardiology"})

	e := testTransformEngine(lookups, tenants)
	spec := &models.TransformSpec{
		Mode: models.TransformSimple,
		Mappings: []models.Mapping{
			{SourcePath: "dept", TargetPath: "department", Transform: models.MapLookup, LookupType: "dept"},
		},
	}
	out, err := e.Apply(context.Background(), spec, nil,
		models.Payload{"dept": "CARD"}, sandbox.ScriptContext{TenantID: 20})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", out["department"])
}

func TestLookupUnmappedBehaviors(t *testing.T) {
	lookups := store.NewMemoryLookups()
	lookups.Put(&models.LookupEntry{
		TenantID: 1, Type: "strict", Key: "known", Value: "mapped",
		UnmappedBehavior: models.UnmappedFail,
	})
	lookups.Put(&models.LookupEntry{
		TenantID: 1, Type: "defaulting", Key: "known", Value: "mapped",
		UnmappedBehavior: models.UnmappedDefault, DefaultValue: "fallback",
	})

	e := testTransformEngine(lookups, nil)
	resolver := e.resolver

	got, err := resolver.Resolve(context.Background(), 1, "defaulting", "unknown-code")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	got, err = resolver.Resolve(context.Background(), 1, "missing-table", "code-x")
	require.NoError(t, err)
	assert.Equal(t, "code-x", got, "passthrough is the default behavior")

	_, err = resolver.Resolve(context.Background(), 1, "strict", "unknown-code")
	require.Error(t, err)
	assert.Equal(t, models.CategoryDataError, models.CategoryOf(err))
}

func TestLookupPass(t *testing.T) {
	lookups := store.NewMemoryLookups()
	lookups.Put(&models.LookupEntry{TenantID: 1, Type: "codeSystem", Key: "I10", Value: "hypertension"})

	e := testTransformEngine(lookups, nil)
	spec := &models.TransformSpec{
		Mode:     models.TransformSimple,
		Mappings: []models.Mapping{{SourcePath: "diagnosis", TargetPath: "diagnosis"}},
	}
	out, err := e.Apply(context.Background(), spec,
		[]models.LookupSpec{{Type: "codeSystem", SourceField: "diagnosis", TargetField: "diagnosisName"}},
		models.Payload{"diagnosis": "I10"}, sandbox.ScriptContext{TenantID: 1})
	require.NoError(t, err)
	assert.Equal(t, "I10", out["diagnosis"])
	assert.Equal(t, "hypertension", out["diagnosisName"])
}
