// Package blocks implements §4.1's Block Registry & Dispatcher: a
// process-wide mapping from block type to a typed executor, generalized
// from the teacher's tools.Registry/ToolExecutor pairing
// (pkg/core/tools/registry.go, pkg/core/tools/timing.go's
// ExecuteTool(toolName, args) (string, error) contract) into
// execute(params, ctx) (any, error) plus a declared, type-coerced input
// table spec.md §4.1 requires and the teacher's per-tool JSON-unmarshal
// pattern doesn't.
package blocks

import (
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
)

// InputKind is the declared type of one BlockSpec input field (§4.1).
type InputKind string

const (
	KindText      InputKind = "text"
	KindNumber    InputKind = "number"
	KindCheckbox  InputKind = "checkbox"
	KindDropdown  InputKind = "dropdown"
	KindMultiline InputKind = "multiline"
	KindStatement InputKind = "statement"
	KindValue     InputKind = "value"
)

// InputSpec describes one declared field of a block's params (§4.1).
type InputSpec struct {
	Name     string
	Kind     InputKind
	Default  any
	Required bool
	Options  []string // allowed values for KindDropdown
}

// Category loosely groups blocks for documentation/UI purposes; the engine
// itself only dispatches on Type.
type Category string

const (
	CategoryWeb        Category = "web"
	CategoryHTTP       Category = "http"
	CategoryControl    Category = "control"
	CategoryCore       Category = "core"
	CategoryProcedure  Category = "procedure"
)

// Executor is the typed behavior of one block: given its resolved params
// and the current ExecutionContext, produce a result or an error. A
// returned *execctx.AssertionFailure is classified by the Dispatcher as a
// hard assertion failure (§4.1 step 4); any other error is StatusError;
// a nested-step executor (control-flow, procedures) recurses into
// Dispatcher.Run itself and reports its own children.
type Executor func(params map[string]any, step model.TestStep, ctx *execctx.Context, run RunFunc) (Result, error)

// RunFunc lets a container-block executor recursively dispatch a nested
// step list (e.g. a THEN/ELSE/TRY/CATCH slot) through the same Dispatcher,
// without the block packages (control, procedure, …) holding a reference
// to the Dispatcher itself.
type RunFunc func(steps []model.TestStep, ctx *execctx.Context) []model.StepResult

// Result is what a well-behaved executor returns on success. Summary and
// Output map onto StepResult.Summary/Output (§4.1 step 4); Children lets
// container/procedure blocks attach nested StepResults.
type Result struct {
	Summary  string
	Output   any
	Children []model.StepResult
}

// BlockSpec is the registered shape of one block type (§4.1).
type BlockSpec struct {
	Type     string
	Category Category
	Inputs   []InputSpec
	HasPrev  bool
	HasNext  bool
	HasOutput bool
	Execute  Executor
}
