// Package coreblocks implements the spec's non-web, non-HTTP leaf blocks:
// log, setVariable, assert_equals/assert_truthy, and wait — generalized
// from the teacher's shared variable/timing tools (pkg/core/tools/
// variables.go's VariableStore.Set, pkg/core/tools/timing.go's delay
// handling) into blocks.Executor functions over varscope.Chain/execctx.
package coreblocks

import (
	"fmt"
	"time"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// Register installs every core BlockSpec into reg.
func Register(reg *blocks.Registry) {
	reg.Register(logSpec())
	reg.Register(setVariableSpec())
	reg.Register(assertEqualsSpec())
	reg.Register(assertTruthySpec())
	reg.Register(waitSpec())
}

func logSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "log",
		Category: blocks.CategoryCore,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "LEVEL", Kind: blocks.KindDropdown, Default: "info", Options: []string{"debug", "info", "warn", "error"}},
			{Name: "MESSAGE", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			level, _ := params["LEVEL"].(string)
			msg, _ := params["MESSAGE"].(string)
			switch level {
			case "debug":
				ctx.Logger.Debug(step.ID, step.Type, msg)
			case "warn":
				ctx.Logger.Warn(step.ID, step.Type, msg)
			case "error":
				ctx.Logger.Error(step.ID, step.Type, msg)
			default:
				ctx.Logger.Info(step.ID, step.Type, msg)
			}
			return blocks.Result{Summary: msg}, nil
		},
	}
}

func setVariableSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "setVariable",
		Category: blocks.CategoryCore,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "NAME", Kind: blocks.KindText, Required: true},
			{Name: "VALUE", Kind: blocks.KindValue},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			name, _ := params["NAME"].(string)
			if name == "" {
				return blocks.Result{}, fmt.Errorf("setVariable: NAME is empty")
			}
			val, errRes := blocks.EvalValue(run, params["VALUE"], ctx)
			if errRes != nil {
				if ctx.Halted() {
					return blocks.Result{Children: []model.StepResult{*errRes}}, ctx.Propagate()
				}
				return blocks.Result{Children: []model.StepResult{*errRes}},
					&execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
			}
			ctx.Scope.Set(name, val)
			return blocks.Result{Summary: fmt.Sprintf("%s = %v", name, val), Output: val}, nil
		},
	}
}

func assertEqualsSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "assert_equals",
		Category: blocks.CategoryCore,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "EXPECTED", Kind: blocks.KindValue, Required: true},
			{Name: "ACTUAL", Kind: blocks.KindValue, Required: true},
			{Name: "MESSAGE", Kind: blocks.KindText},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			expected, errRes := blocks.EvalValue(run, params["EXPECTED"], ctx)
			if errRes != nil {
				return haltedResult(ctx, errRes)
			}
			actual, errRes := blocks.EvalValue(run, params["ACTUAL"], ctx)
			if errRes != nil {
				return haltedResult(ctx, errRes)
			}
			msg, _ := params["MESSAGE"].(string)
			if msg == "" {
				msg = "expected values to be equal"
			}
			cond := varscope.Stringify(expected) == varscope.Stringify(actual)
			err := execctx.Assert(ctx, cond, execctx.AssertionDetails{
				Message: msg, StepType: step.Type, Expected: expected, Actual: actual,
			})
			return blocks.Result{Summary: msg}, err
		},
	}
}

func assertTruthySpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "assert_truthy",
		Category: blocks.CategoryCore,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "VALUE", Kind: blocks.KindValue, Required: true},
			{Name: "MESSAGE", Kind: blocks.KindText},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			val, errRes := blocks.EvalValue(run, params["VALUE"], ctx)
			if errRes != nil {
				return haltedResult(ctx, errRes)
			}
			msg, _ := params["MESSAGE"].(string)
			if msg == "" {
				msg = "expected value to be truthy"
			}
			err := execctx.Assert(ctx, blocks.Truthy(val), execctx.AssertionDetails{
				Message: msg, StepType: step.Type, Expected: true, Actual: val,
			})
			return blocks.Result{Summary: msg}, err
		},
	}
}

func waitSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "wait",
		Category: blocks.CategoryCore,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "MS", Kind: blocks.KindNumber, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			ms, _ := params["MS"].(float64)
			timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Ctx().Done():
				return blocks.Result{}, ctx.Ctx().Err()
			}
			return blocks.Result{Summary: fmt.Sprintf("waited %gms", ms)}, nil
		},
	}
}

// haltedResult mirrors a failed nested value-step's status onto the
// enclosing assertion block, the same way control.propagateFrom does.
func haltedResult(ctx *execctx.Context, errRes *model.StepResult) (blocks.Result, error) {
	res := blocks.Result{Children: []model.StepResult{*errRes}}
	if ctx.Halted() {
		return res, ctx.Propagate()
	}
	return res, &execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
}
