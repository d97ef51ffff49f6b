// Package procedure implements §4.6's custom-block engine: each
// ProcedureDefinition is compiled into a BlockSpec named "custom_<slug>"
// and installed on a blocks.ProcedureOverlay for the duration of one
// scheduling unit, generalized from the teacher's dynamic tool
// registration (pkg/core/tools/registry.go's per-session Register calls)
// into a per-unit overlay rather than a process-wide table.
package procedure

import (
	"fmt"
	"strings"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// Slug converts a procedure's declared name into its "custom_<slug>" block
// type: lowercased, with runs of non-alphanumeric characters collapsed to
// a single underscore.
func Slug(name string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return "custom_" + strings.Trim(b.String(), "_")
}

// paramInputName is the call-site params key for a declared procedure
// parameter: the uppercased form of its name, matching every other
// block's uppercase input-field convention (SELECTOR, VALUE, CONDITION…)
// while the procedure body itself refers to the lowercase ${name}.
func paramInputName(name string) string { return strings.ToUpper(name) }

// Compile builds the BlockSpec for one ProcedureDefinition. run is bound
// once the overlay's Dispatcher exists (it recurses back into the same
// Dispatcher.RunAll the defined procedure's own steps are dispatched
// through), matching every other container block's RunFunc threading.
func Compile(def model.ProcedureDefinition) blocks.BlockSpec {
	inputs := make([]blocks.InputSpec, 0, len(def.Params))
	for _, p := range def.Params {
		inputs = append(inputs, blocks.InputSpec{
			Name:    paramInputName(p.Name),
			Kind:    blocks.KindValue,
			Default: p.Default,
		})
	}

	return blocks.BlockSpec{
		Type:      Slug(def.Name),
		Category:  blocks.CategoryProcedure,
		HasPrev:   true,
		HasNext:   true,
		HasOutput: true,
		Inputs:    inputs,
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ok := ctx.EnterProcedure(); !ok {
				return blocks.Result{}, fmt.Errorf("procedure %q: recursion depth exceeds cap of %d", def.Name, ctx.MaxRecursion())
			}
			defer ctx.ExitProcedure()

			frame := ctx.Scope.Push(varscope.KindProcedure, def.Name, nil)
			for _, p := range def.Params {
				val, errRes := blocks.EvalValue(run, params[paramInputName(p.Name)], ctx)
				if errRes != nil {
					ctx.Scope.Pop()
					if ctx.Halted() {
						return blocks.Result{Children: []model.StepResult{*errRes}}, ctx.Propagate()
					}
					return blocks.Result{Children: []model.StepResult{*errRes}},
						&execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
				}
				frame.Declare(p.Name, val)
			}

			results := run(def.Steps, ctx)
			ctx.Scope.Pop()

			if ctx.Halted() {
				return blocks.Result{Children: results}, ctx.Propagate()
			}
			return blocks.Result{Children: results, Summary: fmt.Sprintf("procedure %q completed", def.Name)}, nil
		},
	}
}

// InstallAll compiles every definition in defs (global-scope procedures
// first, then file-local — callers pass file-local definitions last so a
// name collision's last Register call, per blocks.ProcedureOverlay, wins;
// §6 "file-local wins on name collision", extended to built-ins per
// SPEC_FULL.md §E.1) onto overlay.
func InstallAll(overlay *blocks.ProcedureOverlay, defs ...map[string]model.ProcedureDefinition) {
	for _, group := range defs {
		for _, def := range group {
			overlay.Register(Compile(def))
		}
	}
}
