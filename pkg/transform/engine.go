package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
)

// Engine applies an integration's transformation to an event payload.
type Engine struct {
	sandbox  *sandbox.Engine
	resolver *Resolver
}

// NewEngine creates an Engine.
func NewEngine(sb *sandbox.Engine, resolver *Resolver) *Engine {
	return &Engine{sandbox: sb, resolver: resolver}
}

// Apply produces the outbound body. Failures are categorized: script errors
// as DATA_ERROR, declarative mapping errors as VALIDATION_ERROR.
func (e *Engine) Apply(ctx context.Context, spec *models.TransformSpec, lookups []models.LookupSpec, payload models.Payload, sctx sandbox.ScriptContext) (models.Payload, error) {
	switch spec.Mode {
	case models.TransformPassthrough, "":
		return payload.Clone(), nil

	case models.TransformSimple:
		out, err := e.applyMappings(ctx, spec, payload, sctx.TenantID)
		if err != nil {
			return nil, models.NewCategorizedError(models.CategoryValidationError, err)
		}
		if err := e.applyLookupPass(ctx, lookups, out, sctx.TenantID); err != nil {
			return nil, err
		}
		return out, nil

	case models.TransformScript:
		out, err := e.sandbox.RunTransform(ctx, spec.Script, payload, sctx, e.resolver.Func(ctx, sctx.TenantID))
		if err != nil {
			var ce *models.CategorizedError
			if errors.As(err, &ce) {
				return nil, err
			}
			return nil, models.NewCategorizedError(models.CategoryDataError, err)
		}
		return out, nil

	default:
		return nil, models.NewCategorizedError(models.CategoryValidationError,
			fmt.Errorf("unknown transform mode %q", spec.Mode))
	}
}

// applyMappings runs the ordered mapping list and static fields.
func (e *Engine) applyMappings(ctx context.Context, spec *models.TransformSpec, payload models.Payload, tenantID int64) (models.Payload, error) {
	out := models.Payload{}
	src := map[string]any(payload)

	for _, m := range spec.Mappings {
		if err := e.applyMapping(ctx, m, src, out, tenantID); err != nil {
			return nil, fmt.Errorf("mapping %s -> %s: %w", m.SourcePath, m.TargetPath, err)
		}
	}
	for _, f := range spec.StaticFields {
		if err := setPath(out, f.Key, f.Value); err != nil {
			return nil, fmt.Errorf("static field %s: %w", f.Key, err)
		}
	}
	return out, nil
}

func (e *Engine) applyMapping(ctx context.Context, m models.Mapping, src, dst map[string]any, tenantID int64) error {
	srcPrefix, srcSuffix, fanOut, err := splitEach(m.SourcePath)
	if err != nil {
		return err
	}
	if !fanOut {
		value, found := getPath(src, m.SourcePath)
		value, err := e.transformValue(ctx, m, value, found, tenantID)
		if err != nil {
			return err
		}
		if value == nil && !found && m.Transform != models.MapDefault {
			// Missing sources stay absent rather than writing nulls.
			return nil
		}
		return setPath(dst, m.TargetPath, value)
	}

	dstPrefix, dstSuffix, dstFan, err := splitEach(m.TargetPath)
	if err != nil {
		return err
	}
	if !dstFan {
		return fmt.Errorf("source fans out with [] but target %q does not", m.TargetPath)
	}

	raw, found := getPath(src, srcPrefix)
	if !found {
		return nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("path %q is not an array", srcPrefix)
	}

	existing, _ := getPath(dst, dstPrefix)
	outArr, _ := existing.([]any)
	for len(outArr) < len(arr) {
		outArr = append(outArr, map[string]any{})
	}

	for i, el := range arr {
		var value any
		elFound := false
		if srcSuffix == "" {
			value, elFound = el, true
		} else if obj, ok := el.(map[string]any); ok {
			value, elFound = getPath(obj, srcSuffix)
		}
		value, err := e.transformValue(ctx, m, value, elFound, tenantID)
		if err != nil {
			return err
		}
		if dstSuffix == "" {
			outArr[i] = value
			continue
		}
		elDst, ok := outArr[i].(map[string]any)
		if !ok {
			elDst = map[string]any{}
			outArr[i] = elDst
		}
		if err := setPath(elDst, dstSuffix, value); err != nil {
			return err
		}
	}
	return setPath(dst, dstPrefix, outArr)
}

// transformValue applies the mapping's unary transform.
func (e *Engine) transformValue(ctx context.Context, m models.Mapping, value any, found bool, tenantID int64) (any, error) {
	switch m.Transform {
	case models.MapNone, "":
		return value, nil

	case models.MapTrim:
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return value, nil

	case models.MapUpper:
		if s, ok := value.(string); ok {
			return strings.ToUpper(s), nil
		}
		return value, nil

	case models.MapLower:
		if s, ok := value.(string); ok {
			return strings.ToLower(s), nil
		}
		return value, nil

	case models.MapDateISO:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		t, err := parseAnyDate(s)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil

	case models.MapDefault:
		if !found || value == nil || value == "" {
			return m.DefaultValue, nil
		}
		return value, nil

	case models.MapLookup:
		s := fmt.Sprint(value)
		if !found {
			return nil, nil
		}
		resolved, err := e.resolver.Resolve(ctx, tenantID, m.LookupType, s)
		if err != nil {
			return nil, err
		}
		return resolved, nil

	default:
		return nil, fmt.Errorf("unknown transform %q", m.Transform)
	}
}

// applyLookupPass runs the integration's post-transform lookup configs.
func (e *Engine) applyLookupPass(ctx context.Context, lookups []models.LookupSpec, out models.Payload, tenantID int64) error {
	for _, l := range lookups {
		value, found := getPath(out, l.SourceField)
		if !found {
			continue
		}
		resolved, err := e.resolver.Resolve(ctx, tenantID, l.Type, fmt.Sprint(value))
		if err != nil {
			return err
		}
		if err := setPath(out, l.TargetField, resolved); err != nil {
			return models.NewCategorizedError(models.CategoryValidationError, err)
		}
	}
	return nil
}

var mappingDateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006 15:04:05",
}

func parseAnyDate(s string) (time.Time, error) {
	for _, layout := range mappingDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
