// Package scheduler implements §4.4's scheduling algorithm: one TestFile
// plus a composed hook chain, in strict sequence, producing a
// model.SuiteReport. Generalized from the teacher's
// orchestrate.RunTestsTool/WorkflowManager.Run sequential-with-teardown
// loop (pkg/core/tools/integration_orchestrator's halt-and-skip-remaining
// pattern) into the §4.4 beforeAll/per-test/afterAll shape.
package scheduler

import (
	"fmt"
	"time"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/hooks"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/report"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// Run executes every TestCase in file in order against ctx, whose Scope is
// already seeded with the global and file frames for this unit (§4.4 step
// 1 — procedure registration into the overlay happens before Run is
// called, by pkg/engine). dispatch is normally a Dispatcher.RunAll bound
// to an overlay that already contains file's procedures.
func Run(ctx *execctx.Context, file model.TestFile, chain hooks.Chain, dispatch blocks.RunFunc) *model.SuiteReport {
	var results []model.TestResult

	fileDefaults := make(map[string]any, len(file.Variables))
	for name, decl := range file.Variables {
		fileDefaults[name] = decl.Default
	}

	beforeAll := chain.BeforeAll()
	beforeAllResult, beforeAllFailed := runLifecycle(ctx, dispatch, beforeAll, "beforeAll")
	if beforeAllResult != nil {
		results = append(results, *beforeAllResult)
	}

	for _, test := range file.Tests {
		switch {
		case ctx.Cancelled():
			results = append(results, skippedResult(test, nil, "cancelled"))
		case test.Disabled:
			results = append(results, skippedResult(test, nil, "disabled"))
		case beforeAllFailed:
			results = append(results, skippedResult(test, nil, "beforeAll failed"))
		case len(test.Data) == 0:
			results = append(results, runOne(ctx, dispatch, chain, test, nil, fileDefaults))
		default:
			for i, row := range test.Data {
				iter := &model.Iteration{Index: i, Name: row.Name, Values: row.Values}
				results = append(results, runOne(ctx, dispatch, chain, test, iter, fileDefaults))
			}
		}
	}

	afterAll := chain.AfterAll()
	afterAllResult, _ := runLifecycle(ctx, dispatch, afterAll, "afterAll")
	if afterAllResult != nil {
		results = append(results, *afterAllResult)
	}

	ctx.Close()
	return report.Finalize(results)
}

// runOne runs exactly one test-case execution (or one data-row iteration
// of it): fresh file scope, composed beforeEach/body/afterEach, status
// finalization per §4.4 step 3.
func runOne(ctx *execctx.Context, dispatch blocks.RunFunc, chain hooks.Chain, test model.TestCase, iter *model.Iteration, fileDefaults map[string]any) model.TestResult {
	started := time.Now()
	name := test.Name
	if iter != nil {
		rowLabel := iter.Name
		if rowLabel == "" {
			rowLabel = fmt.Sprintf("Row %d", iter.Index)
		}
		name = fmt.Sprintf("%s [%s]", test.Name, rowLabel)
	}

	ctx.ResetControlFlow()
	ctx.ResetSoftAssertions()
	ctx.SoftAssertions = test.SoftAssertions

	ctx.Scope.RebuildFile(fileDefaults)
	var dataFrame *varscope.Frame
	if iter != nil {
		dataFrame = ctx.Scope.Push(varscope.KindDataRow, "data", map[string]any{"data": iter.Values})
	}
	defer func() {
		if dataFrame != nil {
			ctx.Scope.Pop()
		}
	}()

	result := model.TestResult{TestID: test.ID, TestName: name, StartedAt: started, Iteration: iter}

	beforeEach := chain.BeforeEach(test)
	beforeEachResults := dispatch(beforeEach, ctx)
	result.Steps = append(result.Steps, beforeEachResults...)
	beforeEachFailed := worstStatus(beforeEachResults) == model.StatusFailed || worstStatus(beforeEachResults) == model.StatusError
	ctx.ResetControlFlow()

	var bodyResults []model.StepResult
	if !beforeEachFailed {
		bodyResults = dispatch(test.Steps, ctx)
		result.Steps = append(result.Steps, bodyResults...)
	}
	bodyStatus := worstStatus(bodyResults)
	skipRequested := ctx.SkipTestRequested()
	skipReason := ctx.SkipTestReason()
	ctx.ResetControlFlow()

	if bodyStatus == model.StatusFailed || bodyStatus == model.StatusError {
		for _, guardResults := range runOnFailureGuards(ctx, dispatch, test.Steps) {
			result.Steps = append(result.Steps, guardResults...)
		}
		ctx.ResetControlFlow()
	}

	afterEach := chain.AfterEach(test)
	afterEachResults := dispatch(afterEach, ctx)
	result.Steps = append(result.Steps, afterEachResults...)
	afterEachFailed := worstStatus(afterEachResults) == model.StatusFailed || worstStatus(afterEachResults) == model.StatusError
	ctx.ResetControlFlow()

	softFailed := len(ctx.SoftAssertionErrors) > 0
	if softFailed {
		result.SoftAssertionErrors = make([]model.SoftAssertionError, 0, len(ctx.SoftAssertionErrors))
		for _, e := range ctx.SoftAssertionErrors {
			result.SoftAssertionErrors = append(result.SoftAssertionErrors, model.SoftAssertionError{
				Message: e.Message, StepType: e.StepType, Expected: e.Expected, Actual: e.Actual, Timestamp: e.Timestamp,
			})
		}
	}

	switch {
	case beforeEachFailed:
		result.Status = model.StatusFailed
		result.Error = "beforeEach failed"
	case bodyStatus == model.StatusError:
		result.Status = model.StatusError
	case bodyStatus == model.StatusFailed || softFailed || afterEachFailed:
		result.Status = model.StatusFailed
	case bodyStatus == model.StatusSkipped && skipRequested:
		result.Status = model.StatusSkipped
		result.Error = skipReason
	default:
		result.Status = model.StatusPassed
	}

	result.FinishedAt = time.Now()
	result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	return result
}

// runOnFailureGuards implements §4.5's onFailure: any top-level onFailure
// step in the test body whose BODY hasn't already run inline (the block's
// own Execute is a no-op) is dispatched here, once, because the body ended
// in failed/error — the "auto-appended afterEach guard" the spec describes.
func runOnFailureGuards(ctx *execctx.Context, dispatch blocks.RunFunc, steps []model.TestStep) [][]model.StepResult {
	var all [][]model.StepResult
	for _, s := range steps {
		if s.Type != "onFailure" {
			continue
		}
		body := s.Children["BODY"]
		if len(body) == 0 {
			continue
		}
		all = append(all, dispatch(body, ctx))
	}
	return all
}

// runLifecycle dispatches a composed beforeAll/afterAll list and wraps it
// as an isLifecycle TestResult (§4.3 "hooks... recorded as isLifecycle
// entries"). Returns nil when steps is empty — an absent hook leaves no
// report entry. failed reports whether any step in the chain did not pass.
func runLifecycle(ctx *execctx.Context, dispatch blocks.RunFunc, steps []model.TestStep, lifecycleType string) (result *model.TestResult, failed bool) {
	if len(steps) == 0 {
		return nil, false
	}
	started := time.Now()
	ctx.ResetControlFlow()
	ctx.ResetSoftAssertions()
	ctx.SoftAssertions = false
	results := dispatch(steps, ctx)
	ctx.ResetControlFlow()

	status := worstStatus(results)
	tr := model.TestResult{
		TestID:        lifecycleType,
		TestName:      lifecycleType,
		Status:        status,
		StartedAt:     started,
		FinishedAt:    time.Now(),
		Steps:         results,
		IsLifecycle:   true,
		LifecycleType: lifecycleType,
	}
	tr.DurationMs = tr.FinishedAt.Sub(tr.StartedAt).Milliseconds()
	return &tr, status == model.StatusFailed || status == model.StatusError
}

func skippedResult(test model.TestCase, iter *model.Iteration, reason string) model.TestResult {
	now := time.Now()
	return model.TestResult{
		TestID: test.ID, TestName: test.Name, Status: model.StatusSkipped,
		StartedAt: now, FinishedAt: now, Iteration: iter, Error: reason,
	}
}

func worstStatus(results []model.StepResult) model.Status {
	status := model.StatusPassed
	for _, r := range results {
		status = model.Worse(status, r.Status)
	}
	return status
}
