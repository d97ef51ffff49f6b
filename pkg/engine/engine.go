// Package engine is the top-level facade §6 describes as the host/engine
// boundary: it decodes a RunRequest, wires every package in the DAG below
// it (variable resolver, execution context, block registry and its block
// families, dispatcher, hook composer, scheduler, result aggregator) into
// one scheduling unit, and returns the resulting model.SuiteReport.
// Generalized from the teacher's cmd/falcon/main.go top-level wiring
// (core.InitializeFalconFolder -> Registry.RegisterAllTools -> dispatch):
// construct services, hand them to one entry point.
package engine

import (
	"context"
	"time"

	"github.com/testsmith-io/testblocks/internal/enginelog"
	"github.com/testsmith-io/testblocks/internal/httpdriver"
	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/blocks/control"
	"github.com/testsmith-io/testblocks/pkg/blocks/coreblocks"
	"github.com/testsmith-io/testblocks/pkg/blocks/httpblock"
	"github.com/testsmith-io/testblocks/pkg/blocks/webblock"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/hooks"
	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/procedure"
	"github.com/testsmith-io/testblocks/pkg/scheduler"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// RunRequest is the decoded host->engine payload of §6's "Run request".
type RunRequest struct {
	TestFile    model.TestFile
	FolderHooks []model.FolderHooks
	Globals     *model.Globals

	// Headless is consumed by the host's own BrowserPage construction,
	// not by the engine: §4.7's abstract contract means this repo never
	// launches a browser, so the field only round-trips the run request.
	Headless        bool
	WebTimeoutMs    int
	RecursionDepth  int
	TestIDAttribute string
	RateLimitPerSec float64

	// Page/HTTP are the capability collaborators §1 and §4.7 describe as
	// external: the engine drives them but never constructs a browser
	// itself. HTTP defaults to internal/httpdriver when nil.
	Page execctx.BrowserPage
	HTTP execctx.HttpSession

	Logger execctx.Logger
}

// Engine runs scheduling units against a fixed base block Registry built
// once at construction (§4.1's process-wide Registry), procedures being
// the only thing that varies per run (§4.6's unit-scoped overlay).
type Engine struct {
	base *blocks.Registry
}

// New builds an Engine with every built-in block family registered.
func New() *Engine {
	reg := blocks.NewRegistry()
	control.Register(reg)
	coreblocks.Register(reg)
	webblock.Register(reg)
	httpblock.Register(reg)
	return &Engine{base: reg}
}

// Run executes req as one scheduling unit (§4.4 step 1 through the final
// afterAll) and returns the resulting SuiteReport. parent carries the
// unit's cancellation signal (§5, §6 "cancelSignal").
func (e *Engine) Run(parent context.Context, req RunRequest) *model.SuiteReport {
	globalVars := map[string]any{}
	var globalProcedures map[string]model.ProcedureDefinition
	testIDAttribute := "data-testid"
	if req.Globals != nil {
		for name, decl := range req.Globals.Variables {
			globalVars[name] = decl.Default
		}
		if req.Globals.TestIDAttribute != "" {
			testIDAttribute = req.Globals.TestIDAttribute
		}
		globalProcedures = req.Globals.Procedures
	}
	if req.TestIDAttribute != "" {
		testIDAttribute = req.TestIDAttribute
	}

	fileVars := map[string]any{}
	for name, decl := range req.TestFile.Variables {
		fileVars[name] = decl.Default
	}
	scope := varscope.NewChain(globalVars, fileVars)

	overlay := blocks.NewProcedureOverlay(e.base)
	procedure.InstallAll(overlay, globalProcedures, req.TestFile.Procedures)
	dispatcher := blocks.NewDispatcher(overlay)

	logger := req.Logger
	if logger == nil {
		logger = enginelog.New(nil)
	}

	opts := []execctx.Option{
		execctx.WithLogger(logger),
		execctx.WithTestIDAttribute(testIDAttribute),
	}
	if req.WebTimeoutMs > 0 {
		opts = append(opts, execctx.WithWebTimeout(msToDuration(req.WebTimeoutMs)))
	}
	if req.RecursionDepth > 0 {
		opts = append(opts, execctx.WithMaxRecursion(req.RecursionDepth))
	}

	ctx := execctx.New(parent, scope, opts...)
	ctx.Page = req.Page
	ctx.HTTP = req.HTTP
	if ctx.HTTP == nil {
		var driverOpts []httpdriver.Option
		if req.RateLimitPerSec > 0 {
			driverOpts = append(driverOpts, httpdriver.WithRateLimit(req.RateLimitPerSec))
		}
		ctx.HTTP = httpdriver.New(driverOpts...)
	}

	chain := hooks.Chain{Folders: req.FolderHooks, File: req.TestFile}
	return scheduler.Run(ctx, req.TestFile, chain, dispatcher.RunAll)
}

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
