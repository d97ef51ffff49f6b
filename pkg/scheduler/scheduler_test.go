package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/blocks/control"
	"github.com/testsmith-io/testblocks/pkg/blocks/coreblocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/hooks"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

func newDispatcher(t *testing.T) (*blocks.Dispatcher, *[]string) {
	t.Helper()
	var log []string
	reg := blocks.NewRegistry()
	coreblocks.Register(reg)
	control.Register(reg)
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

func newCtx(file model.TestFile) *execctx.Context {
	globals := map[string]any{}
	fileVars := make(map[string]any, len(file.Variables))
	for name, decl := range file.Variables {
		fileVars[name] = decl.Default
	}
	return execctx.New(context.Background(), varscope.NewChain(globals, fileVars))
}

func recordStep(id, tag string) model.TestStep {
	return model.TestStep{ID: id, Type: "record", Params: map[string]any{"TAG": tag}}
}

func TestRunPassingTestWithFileVariables(t *testing.T) {
	d, _ := newDispatcher(t)
	file := model.TestFile{
		Variables: map[string]model.VariableDecl{"user": {Default: "alice"}},
		Tests: []model.TestCase{{
			ID: "t1", Name: "hi",
			Steps: []model.TestStep{{ID: "s1", Type: "log", Params: map[string]any{"MESSAGE": "hello ${user}"}}},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 1)
	assert.Equal(t, model.StatusPassed, rep.Results[0].Status)
	require.Len(t, rep.Results[0].Steps, 1)
	assert.Equal(t, "hello alice", rep.Results[0].Steps[0].Summary)
	assert.Equal(t, model.Counts{Passed: 1}, rep.Counts)
}

func TestDisabledTestEmitsSkippedWithNoSteps(t *testing.T) {
	d, _ := newDispatcher(t)
	file := model.TestFile{
		Tests: []model.TestCase{{ID: "t1", Name: "off", Disabled: true, Steps: []model.TestStep{recordStep("s1", "x")}}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 1)
	assert.Equal(t, model.StatusSkipped, rep.Results[0].Status)
	assert.Empty(t, rep.Results[0].Steps)
}

func TestDataDrivenExpandsOneResultPerRowInOrder(t *testing.T) {
	d, _ := newDispatcher(t)
	file := model.TestFile{
		Tests: []model.TestCase{{
			ID: "t1", Name: "check",
			Data: []model.DataRow{
				{Values: map[string]any{"n": "1"}},
				{Values: map[string]any{"n": "2"}},
			},
			Steps: []model.TestStep{
				{ID: "s1", Type: "assert_equals", Params: map[string]any{"EXPECTED": "1", "ACTUAL": "${data.n}"}},
			},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, 0, rep.Results[0].Iteration.Index)
	assert.Equal(t, 1, rep.Results[1].Iteration.Index)
	assert.Equal(t, model.StatusPassed, rep.Results[0].Status)
	assert.Equal(t, model.StatusFailed, rep.Results[1].Status)
}

func TestBeforeEachFailureSkipsBodyButAfterEachStillRuns(t *testing.T) {
	d, log := newDispatcher(t)
	file := model.TestFile{
		BeforeEach: []model.TestStep{{ID: "x", Type: "fail_hard"}},
		AfterEach:  []model.TestStep{recordStep("z", "Z")},
		Tests: []model.TestCase{{
			ID: "t1", Name: "body",
			Steps: []model.TestStep{recordStep("y", "Y")},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 1)
	result := rep.Results[0]
	assert.Equal(t, model.StatusFailed, result.Status)
	assert.NotContains(t, *log, "Y")
	assert.Contains(t, *log, "Z")
}

func TestSoftAssertionsAggregateAndDowngradeTestStatus(t *testing.T) {
	d, _ := newDispatcher(t)
	file := model.TestFile{
		Tests: []model.TestCase{{
			ID: "t1", Name: "soft", SoftAssertions: true,
			Steps: []model.TestStep{
				{ID: "a", Type: "assert_truthy", Params: map[string]any{"VALUE": true}},
				{ID: "b", Type: "assert_equals", Params: map[string]any{"EXPECTED": "foo", "ACTUAL": "nope"}},
				{ID: "c", Type: "assert_equals", Params: map[string]any{"EXPECTED": "bar", "ACTUAL": "nope"}},
			},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 1)
	result := rep.Results[0]
	for _, s := range result.Steps {
		assert.Equal(t, model.StatusPassed, s.Status)
	}
	assert.Equal(t, model.StatusFailed, result.Status)
	require.Len(t, result.SoftAssertionErrors, 2)
	assert.Equal(t, "foo", result.SoftAssertionErrors[0].Expected)
	assert.Equal(t, "bar", result.SoftAssertionErrors[1].Expected)
}

func TestSoftAssertionsDoNotLeakAcrossTests(t *testing.T) {
	d, _ := newDispatcher(t)
	file := model.TestFile{
		Tests: []model.TestCase{
			{
				ID: "t1", Name: "soft", SoftAssertions: true,
				Steps: []model.TestStep{{ID: "a", Type: "assert_equals", Params: map[string]any{"EXPECTED": "x", "ACTUAL": "y"}}},
			},
			{
				ID: "t2", Name: "clean",
				Steps: []model.TestStep{recordStep("b", "B")},
			},
		},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 2)
	assert.Equal(t, model.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, model.StatusPassed, rep.Results[1].Status)
	assert.Empty(t, rep.Results[1].SoftAssertionErrors)
}

func TestAfterAllRunsEvenWhenATestFails(t *testing.T) {
	d, log := newDispatcher(t)
	file := model.TestFile{
		AfterAll: []model.TestStep{recordStep("teardown", "DONE")},
		Tests: []model.TestCase{{
			ID: "t1", Name: "broken",
			Steps: []model.TestStep{{ID: "x", Type: "fail_hard"}},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	assert.Contains(t, *log, "DONE")
	found := false
	for _, r := range rep.Results {
		if r.IsLifecycle && r.LifecycleType == "afterAll" {
			found = true
			assert.Equal(t, model.StatusPassed, r.Status)
		}
	}
	assert.True(t, found, "expected an afterAll lifecycle result")
}

func TestBeforeAllFailureSkipsAllTestsButAfterAllStillRuns(t *testing.T) {
	d, log := newDispatcher(t)
	file := model.TestFile{
		BeforeAll: []model.TestStep{{ID: "setup", Type: "fail_hard"}},
		AfterAll:  []model.TestStep{recordStep("teardown", "DONE")},
		Tests: []model.TestCase{
			{ID: "t1", Name: "a", Steps: []model.TestStep{recordStep("s", "S")}},
			{ID: "t2", Name: "b", Steps: []model.TestStep{recordStep("s2", "S2")}},
		},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	var testResults []model.TestResult
	for _, r := range rep.Results {
		if !r.IsLifecycle {
			testResults = append(testResults, r)
		}
	}
	require.Len(t, testResults, 2)
	for _, r := range testResults {
		assert.Equal(t, model.StatusSkipped, r.Status)
	}
	assert.NotContains(t, *log, "S")
	assert.NotContains(t, *log, "S2")
	assert.Contains(t, *log, "DONE")
}

func TestSkipIfShortCircuitsTestWithSkippedStatus(t *testing.T) {
	d, log := newDispatcher(t)
	file := model.TestFile{
		Tests: []model.TestCase{{
			ID: "t1", Name: "conditional",
			Steps: []model.TestStep{
				{ID: "s1", Type: "skipIf", Params: map[string]any{"CONDITION": true}},
				recordStep("s2", "NEVER"),
			},
		}},
	}
	ctx := newCtx(file)
	rep := Run(ctx, file, hooks.Chain{File: file}, d.RunAll)

	require.Len(t, rep.Results, 1)
	result := rep.Results[0]
	assert.Equal(t, model.StatusSkipped, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.NotContains(t, *log, "NEVER")
}
