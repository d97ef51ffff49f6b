package blocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// ErrUnknownBlockType is returned (wrapped into a StepResult, never bubbled
// as a Go error to callers of Dispatcher.Run) when step.Type has no
// registered BlockSpec.
var ErrUnknownBlockType = errors.New("unknown block type")

// ErrRequiredInputMissing is the precondition error of §7 ("required field
// missing at dispatch time").
var ErrRequiredInputMissing = errors.New("required input missing")

// Lookuper is satisfied by both *Registry and *ProcedureOverlay.
type Lookuper interface {
	Lookup(typ string) (BlockSpec, bool)
}

// Dispatcher implements §4.1's run(step, ctx) -> StepResult contract.
type Dispatcher struct {
	lookup Lookuper
}

// NewDispatcher binds a Dispatcher to a Lookuper (typically a
// ProcedureOverlay, so procedure calls resolve alongside built-ins).
func NewDispatcher(lookup Lookuper) *Dispatcher {
	return &Dispatcher{lookup: lookup}
}

// Run dispatches one TestStep and returns its StepResult. It never panics:
// an executor panic is recovered and reported as StatusError, matching
// §4.1 step 3's "invoke execute(params, ctx) within a guard that catches
// any thrown failure."
func (d *Dispatcher) Run(step model.TestStep, ctx *execctx.Context) (result model.StepResult) {
	started := time.Now()
	result = model.StepResult{StepID: step.ID, Type: step.Type, StartedAt: started}

	defer func() {
		result.FinishedAt = time.Now()
		result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	}()

	if ctx.Cancelled() {
		result.Status = model.StatusSkipped
		return result
	}

	spec, ok := d.lookup.Lookup(step.Type)
	if !ok {
		result.Status = model.StatusError
		result.Error = &model.StepError{Message: fmt.Sprintf("%s: %q", ErrUnknownBlockType, step.Type)}
		return result
	}

	params, err := resolveParams(spec, step, ctx)
	if err != nil {
		result.Status = model.StatusError
		result.Error = &model.StepError{Message: err.Error(), StepType: step.Type}
		return result
	}

	out, err := d.invoke(spec, params, step, ctx)
	applyOutcome(&result, out, err, step.Type)

	if result.Status == model.StatusFailed || result.Status == model.StatusError {
		ctx.SetHalt(result.Status, result.Error)
	}
	return result
}

// RunAll dispatches a step list in strict sequence: step N begins only
// after step N-1's result is recorded (§4.1 Ordering, §5). The list stops
// early — recording fewer StepResults than len(steps) — once a Failed/
// Error abort is in flight (§7) or skipIf has requested the enclosing test
// be skipped (§4.5); both conditions are consulted after every step so the
// short-circuit propagates through every nesting level that reuses RunAll
// as its RunFunc. Scope frames that a step pushed and left in place (the
// forEach loop frame) are popped when the list returns, restoring the
// scope depth the list started with.
func (d *Dispatcher) RunAll(steps []model.TestStep, ctx *execctx.Context) []model.StepResult {
	depth := ctx.Scope.Depth()
	results := make([]model.StepResult, 0, len(steps))
	for _, s := range steps {
		results = append(results, d.Run(s, ctx))
		if ctx.Halted() || ctx.SkipTestRequested() {
			break
		}
	}
	// lingers until the enclosing step list ends
	for ctx.Scope.Depth() > depth {
		ctx.Scope.Pop()
	}
	return results
}

// invoke calls the block's Execute function behind a panic guard.
func (d *Dispatcher) invoke(spec BlockSpec, params map[string]any, step model.TestStep, ctx *execctx.Context) (out Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("block %q panicked: %v", step.Type, r)
		}
	}()
	return spec.Execute(params, step, ctx, d.RunAll)
}

// applyOutcome classifies an executor's return value per §4.1 step 4-5.
func applyOutcome(result *model.StepResult, out Result, err error, stepType string) {
	result.Children = out.Children

	if err == nil {
		result.Status = model.StatusPassed
		result.Summary = out.Summary
		result.Output = out.Output
		return
	}

	var sk *execctx.SkipSignal
	if errors.As(err, &sk) {
		result.Status = model.StatusSkipped
		result.Summary = sk.Reason
		return
	}

	var hp *execctx.HaltPropagation
	if errors.As(err, &hp) {
		result.Status = hp.Status
		result.Error = hp.Err
		return
	}

	var af *execctx.AssertionFailure
	if errors.As(err, &af) {
		result.Status = model.StatusFailed
		result.Error = &model.StepError{
			Message:  af.Details.Message,
			Expected: af.Details.Expected,
			Actual:   af.Details.Actual,
			StepType: firstNonEmpty(af.Details.StepType, stepType),
		}
		return
	}

	if errors.Is(err, context.Canceled) {
		result.Status = model.StatusSkipped
		return
	}

	result.Status = model.StatusError
	result.Error = &model.StepError{Message: err.Error(), StepType: stepType}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// resolveParams applies defaults, checks required-ness, and type-coerces
// every declared input against step.Params (§4.1 step 2). String-kind
// inputs are variable-resolved against ctx.Scope here so every block
// executor receives already-interpolated values (§4.7 "All string fields
// are variable-resolved before use").
func resolveParams(spec BlockSpec, step model.TestStep, ctx *execctx.Context) (map[string]any, error) {
	out := make(map[string]any, len(spec.Inputs))
	for _, in := range spec.Inputs {
		raw, present := step.Params[in.Name]
		if !present {
			if in.Required {
				return nil, fmt.Errorf("%w: %q", ErrRequiredInputMissing, in.Name)
			}
			raw = in.Default
		}
		coerced, err := coerce(in, raw, ctx)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		out[in.Name] = coerced
	}
	// Pass through any params not declared in Inputs (e.g. a value-block
	// slot only checked by the executor itself, like control-flow bodies).
	for k, v := range step.Params {
		if _, declared := out[k]; !declared {
			out[k] = v
		}
	}
	return out, nil
}

func coerce(in InputSpec, raw any, ctx *execctx.Context) (any, error) {
	switch in.Kind {
	case KindText, KindMultiline, KindDropdown:
		s, ok := raw.(string)
		if !ok {
			s = varscope.Stringify(raw)
		}
		return varscope.Resolve(s, ctx.Scope), nil
	case KindNumber:
		return coerceNumber(raw)
	case KindCheckbox:
		return coerceBool(raw)
	case KindStatement, KindValue:
		return raw, nil
	default:
		return raw, nil
	}
}

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", v)
		}
		return f, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to number", raw)
	}
}

func coerceBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true" || v == "1", nil
	case float64:
		return v != 0, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("cannot coerce %T to boolean", raw)
	}
}
