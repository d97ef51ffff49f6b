package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// newTestDispatcher registers every control block plus a handful of leaf
// blocks (record/fail_hard/fail_soft_twice) so step lists can be composed
// without reaching into pkg/blocks/coreblocks.
func newTestDispatcher(t *testing.T) (*blocks.Dispatcher, *[]string) {
	t.Helper()
	var log []string
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "record",
		Inputs: []blocks.InputSpec{
			{Name: "TAG", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			tag, _ := params["TAG"].(string)
			log = append(log, tag)
			return blocks.Result{Summary: tag}, nil
		},
	})
	reg.Register(blocks.BlockSpec{
		Type: "fail_hard",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			err := execctx.Assert(ctx, false, execctx.AssertionDetails{Message: "forced failure"})
			return blocks.Result{}, err
		},
	})
	return blocks.NewDispatcher(reg), &log
}

func newCtx() *execctx.Context {
	return execctx.New(context.Background(), varscope.NewChain(nil, nil))
}

func recordStep(id, tag string) model.TestStep {
	return model.TestStep{ID: id, Type: "record", Params: map[string]any{"TAG": tag}}
}

func literalValue(v any) map[string]any {
	return map[string]any{"type": "__literal__", "value": v}
}

// registerLiteral installs a tiny value-block that EvalValue can dispatch
// through, so CONDITION/A/B/ITEMS params can carry non-string literals
// (bool, slice, map) the same way a nested value-block would.
func registerLiteral(reg *blocks.Registry) {
	reg.Register(blocks.BlockSpec{
		Type: "__literal__",
		Inputs: []blocks.InputSpec{
			{Name: "value", Kind: blocks.KindValue},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			return blocks.Result{Output: step.Params["value"]}, nil
		},
	})
}

func TestIfTakesThenBranchOnTruthyCondition(t *testing.T) {
	d, log := newTestDispatcher(t)
	registerLiteral(d.Registry())
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "if",
		Params: map[string]any{"CONDITION": true},
		Children: map[string][]model.TestStep{
			"THEN": {recordStep("a", "then")},
			"ELSE": {recordStep("b", "else")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, []string{"then"}, *log)
}

func TestIfTakesElseBranchOnFalsyCondition(t *testing.T) {
	d, log := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "if",
		Params: map[string]any{"CONDITION": false},
		Children: map[string][]model.TestStep{
			"THEN": {recordStep("a", "then")},
			"ELSE": {recordStep("b", "else")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, []string{"else"}, *log)
}

func TestIfPropagatesFailureFromThenBranch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "if",
		Params: map[string]any{"CONDITION": true},
		Children: map[string][]model.TestStep{
			"THEN": {{ID: "fh", Type: "fail_hard"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusFailed, r.Status)
	require.Len(t, r.Children, 1)
	assert.Equal(t, model.StatusFailed, r.Children[0].Status)
}

func TestCompareNumericOperators(t *testing.T) {
	cases := []struct {
		op       string
		a, b     any
		expected bool
	}{
		{"=", float64(3), float64(3), true},
		{"!=", float64(3), float64(4), true},
		{"<", float64(1), float64(2), true},
		{">", float64(2), float64(1), true},
		{"<=", float64(2), float64(2), true},
		{">=", float64(2), float64(2), true},
	}
	for _, c := range cases {
		got, err := compareOp(c.op, c.a, c.b)
		require.NoError(t, err)
		assert.Equal(t, c.expected, got, "op %s", c.op)
	}
}

func TestCompareStringFallbackWhenNotBothNumeric(t *testing.T) {
	got, err := compareOp("=", "abc", "abc")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = compareOp("<", "a", "b")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompareContains(t *testing.T) {
	got, err := compareOp("contains", "hello world", "world")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = compareOp("contains", "hello world", "bogus")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCompareBlockDispatch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "compare",
		Params: map[string]any{"OPERATOR": "=", "A": "5", "B": "5"},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, true, r.Output)
}

func TestRepeatRunsBodyCountTimesWithIndex(t *testing.T) {
	var indices []any
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "capture_index",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			v, _ := ctx.Scope.Lookup("index")
			indices = append(indices, v)
			return blocks.Result{}, nil
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "repeat",
		Params: map[string]any{"COUNT": float64(3)},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "c", Type: "capture_index"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, []any{float64(0), float64(1), float64(2)}, indices)
}

func TestRepeatStopsAndPropagatesOnHalt(t *testing.T) {
	d, log := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "repeat",
		Params: map[string]any{"COUNT": float64(5)},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "fh", Type: "fail_hard"}, recordStep("r", "after-fail")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusFailed, r.Status)
	require.Len(t, r.Children, 1, "must halt after the first iteration's failure, never reaching the second step of that iteration or any later iteration")
	assert.Empty(t, *log)
}

func TestForEachIteratesSliceWithItemAndIndex(t *testing.T) {
	var items []any
	var indices []any
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "capture_item",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			item, _ := ctx.Scope.Lookup("item")
			idx, _ := ctx.Scope.Lookup("index")
			items = append(items, item)
			indices = append(indices, idx)
			return blocks.Result{}, nil
		},
	})
	reg.Register(blocks.BlockSpec{
		Type: "literal_items",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			return blocks.Result{Output: []any{"x", "y"}}, nil
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "forEach",
		Params: map[string]any{"ITEMS": map[string]any{"type": "literal_items"}},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "c", Type: "capture_item"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, []any{"x", "y"}, items)
	assert.Equal(t, []any{float64(0), float64(1)}, indices)
}

func TestForEachWrapsScalarAsSingleElementSlice(t *testing.T) {
	assert.Equal(t, []any{"solo"}, toSlice("solo"))
	assert.Nil(t, toSlice(nil))
}

func TestForEachMapYieldsValuesInAnyOrder(t *testing.T) {
	out := toSlice(map[string]any{"a": 1, "b": 2})
	assert.ElementsMatch(t, []any{1, 2}, out)
}

func TestForEachStopsAndPropagatesOnHalt(t *testing.T) {
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "literal_items",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			return blocks.Result{Output: []any{"a", "b", "c"}}, nil
		},
	})
	reg.Register(blocks.BlockSpec{
		Type: "fail_hard",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			err := execctx.Assert(ctx, false, execctx.AssertionDetails{Message: "boom"})
			return blocks.Result{}, err
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "forEach",
		Params: map[string]any{"ITEMS": map[string]any{"type": "literal_items"}},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "fh", Type: "fail_hard"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusFailed, r.Status)
	require.Len(t, r.Children, 1, "must halt on the first item's failure and never reach the remaining items")
}

func TestTryCatchSkipsCatchOnSuccess(t *testing.T) {
	d, log := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "tryCatch",
		Children: map[string][]model.TestStep{
			"TRY":   {recordStep("t", "try-ran")},
			"CATCH": {recordStep("c", "catch-ran")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, []string{"try-ran"}, *log)
	assert.False(t, ctx.Halted())
}

func TestTryCatchRunsCatchAndClearsHaltOnTryFailure(t *testing.T) {
	d, log := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "tryCatch",
		Children: map[string][]model.TestStep{
			"TRY":   {{ID: "fh", Type: "fail_hard"}},
			"CATCH": {recordStep("c", "catch-ran")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status, "CATCH handling the failure clears the halt for the enclosing dispatch")
	assert.Equal(t, []string{"catch-ran"}, *log)
	assert.False(t, ctx.Halted())
}

func TestTryCatchDeclaresErrorInfoForCatchBody(t *testing.T) {
	var captured any
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "fail_hard",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			err := execctx.Assert(ctx, false, execctx.AssertionDetails{Message: "kaboom", StepType: "assert_equals"})
			return blocks.Result{}, err
		},
	})
	reg.Register(blocks.BlockSpec{
		Type: "capture_error_info",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			captured, _ = ctx.Scope.Lookup("errorInfo")
			return blocks.Result{}, nil
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "tryCatch",
		Children: map[string][]model.TestStep{
			"TRY":   {{ID: "fh", Type: "fail_hard"}},
			"CATCH": {{ID: "ce", Type: "capture_error_info"}},
		},
	}
	d.Run(step, ctx)
	info, ok := captured.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kaboom", info["message"])
	assert.Equal(t, string(model.StatusFailed), info["status"])
}

func TestTryCatchRepropagatesWhenCatchAlsoFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "tryCatch",
		Children: map[string][]model.TestStep{
			"TRY":   {{ID: "fh1", Type: "fail_hard"}},
			"CATCH": {{ID: "fh2", Type: "fail_hard"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.True(t, ctx.Halted())
}

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	attempts := 0
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "count_attempt",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			attempts++
			return blocks.Result{}, nil
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "retry",
		Params: map[string]any{"MAX_ATTEMPTS": float64(3), "DELAY_MS": float64(0)},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "c", Type: "count_attempt"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttemptsAndRepropagatesLastFailure(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "retry",
		Params: map[string]any{"MAX_ATTEMPTS": float64(2), "DELAY_MS": float64(0)},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "fh", Type: "fail_hard"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Len(t, r.Children, 2, "must run the body exactly MAX_ATTEMPTS times before giving up")
}

func TestRetryShortCircuitsOnSkipTestRequestWithoutRepropagating(t *testing.T) {
	reg := blocks.NewRegistry()
	Register(reg)
	reg.Register(blocks.BlockSpec{
		Type: "skip_now",
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			ctx.RequestSkipTest("done early")
			return blocks.Result{}, &execctx.SkipSignal{Reason: "done early"}
		},
	})
	d := blocks.NewDispatcher(reg)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "retry",
		Params: map[string]any{"MAX_ATTEMPTS": float64(5), "DELAY_MS": float64(0)},
		Children: map[string][]model.TestStep{
			"BODY": {{ID: "sk", Type: "skip_now"}},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status, "retry's own Execute returns nil error when it honors a skip-test request")
	require.Len(t, r.Children, 1)
}

func TestSkipIfRequestsSkipWhenTruthy(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "skipIf",
		Params: map[string]any{"CONDITION": true},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusSkipped, r.Status)
	assert.True(t, ctx.SkipTestRequested())
	assert.Equal(t, "skipIf condition met", ctx.SkipTestReason())
}

func TestSkipIfContinuesWhenFalsy(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "skipIf",
		Params: map[string]any{"CONDITION": false},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.False(t, ctx.SkipTestRequested())
}

func TestOnFailureExecuteIsANoOp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := newCtx()
	step := model.TestStep{
		ID: "s1", Type: "onFailure",
		Children: map[string][]model.TestStep{
			"BODY": {recordStep("b", "never-runs-inline")},
		},
	}
	r := d.Run(step, ctx)
	assert.Equal(t, model.StatusPassed, r.Status)
	assert.Empty(t, r.Children, "the guard's BODY only runs via the scheduler's afterEach invocation, never inline")
}

func TestAsNumberParsesNumericStringsOnly(t *testing.T) {
	f, ok := asNumber("42")
	assert.True(t, ok)
	assert.Equal(t, float64(42), f)

	_, ok = asNumber("42px")
	assert.False(t, ok)

	_, ok = asNumber("not-a-number")
	assert.False(t, ok)
}
