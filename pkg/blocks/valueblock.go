package blocks

import (
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// AsStep converts a raw params value into a model.TestStep when it encodes
// one (a JSON object carrying a "type" key — spec.md §3's "nested step" for
// a value-kind input), and reports whether the conversion applied.
func AsStep(raw any) (model.TestStep, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return model.TestStep{}, false
	}
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return model.TestStep{}, false
	}
	step := model.TestStep{Type: typ}
	if id, ok := m["id"].(string); ok {
		step.ID = id
	}
	if p, ok := m["params"].(map[string]any); ok {
		step.Params = p
	}
	return step, true
}

// EvalValue resolves a value-kind param: if raw encodes a nested TestStep
// (e.g. a `compare` block feeding `if`'s CONDITION), it is dispatched via
// run and its Output is returned; otherwise raw is treated as a literal,
// with strings passed through variable resolution.
func EvalValue(run RunFunc, raw any, ctx *execctx.Context) (any, *model.StepResult) {
	if step, ok := AsStep(raw); ok {
		results := run([]model.TestStep{step}, ctx)
		r := results[0]
		if r.Status != model.StatusPassed {
			return nil, &r
		}
		return r.Output, nil
	}
	if s, ok := raw.(string); ok {
		return varscope.Resolve(s, ctx.Scope), nil
	}
	return raw, nil
}

// Truthy implements §4.5's truthiness rule: non-empty string, non-zero
// number, or literal true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}
