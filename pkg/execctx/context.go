// Package execctx implements §3's ExecutionContext: the per-test mutable
// record threaded through every block execution — scope chain, browser
// page/http session handles, soft-assertion buffer, logger and
// cancellation — generalized from the teacher's process-wide Registry
// (pkg/core/tools/registry.go bundling ResponseManager/VariableStore/
// HTTPTool as shared services) into a record scoped to one scheduling
// unit, per §3's lifecycle rule.
package execctx

import (
	"context"
	"time"

	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

// Logger accepts leveled, step-attributed log lines (§3 "logger").
type Logger interface {
	Debug(stepID, blockType, msg string, attrs ...any)
	Info(stepID, blockType, msg string, attrs ...any)
	Warn(stepID, blockType, msg string, attrs ...any)
	Error(stepID, blockType, msg string, attrs ...any)
}

// noopLogger discards everything; used when the host supplies none.
type noopLogger struct{}

func (noopLogger) Debug(string, string, string, ...any) {}
func (noopLogger) Info(string, string, string, ...any)  {}
func (noopLogger) Warn(string, string, string, ...any)  {}
func (noopLogger) Error(string, string, string, ...any) {}

// SoftAssertionError is re-exported from model by value at the call site;
// execctx only needs to accumulate them in order (§4.9, §7 invariant 7).
type SoftAssertionError struct {
	Message   string
	StepType  string
	Expected  any
	Actual    any
	Timestamp time.Time
}

// Context is the per-test ExecutionContext of §3.
type Context struct {
	Scope *varscope.Chain

	Page BrowserPage
	HTTP HttpSession

	Logger Logger

	SoftAssertions      bool
	SoftAssertionErrors []SoftAssertionError

	TestIDAttribute string
	WebTimeout      time.Duration

	LastResponse *HTTPResponse

	cancelCtx context.Context
	cancel    context.CancelFunc

	// recursionDepth tracks live procedure-call nesting (§4.6).
	recursionDepth int
	maxRecursion   int

	// haltStatus/haltErr implement §7's failure-propagation: set by the
	// Dispatcher when a step reports Failed/Error, cleared by tryCatch/
	// retry once handled. See halt.go.
	haltStatus model.Status
	haltErr    *model.StepError

	// skipTestReason implements §4.5's skipIf short-circuit. See halt.go.
	skipTestReason string
}

// Option configures a new Context.
type Option func(*Context)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option { return func(c *Context) { c.Logger = l } }

// WithTestIDAttribute sets the testid shorthand attribute (§4.7), default
// "data-testid".
func WithTestIDAttribute(attr string) Option {
	return func(c *Context) { c.TestIDAttribute = attr }
}

// WithWebTimeout sets the default per-operation timeout (§3), default 30s.
func WithWebTimeout(d time.Duration) Option { return func(c *Context) { c.WebTimeout = d } }

// WithMaxRecursion sets the procedure nesting cap (§4.6), default 64.
func WithMaxRecursion(n int) Option { return func(c *Context) { c.maxRecursion = n } }

// New constructs a Context for one scheduling unit/test run. parent
// carries the unit's cancel signal (§5); scope is the seeded global+file
// chain for this unit.
func New(parent context.Context, scope *varscope.Chain, opts ...Option) *Context {
	cctx, cancel := context.WithCancel(parent)
	c := &Context{
		Scope:           scope,
		Logger:          noopLogger{},
		TestIDAttribute: "data-testid",
		WebTimeout:      30 * time.Second,
		cancelCtx:       cctx,
		cancel:          cancel,
		maxRecursion:    64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ctx returns the context.Context blocks should pass to capability calls;
// it observes the unit's cancel signal (§5, §9).
func (c *Context) Ctx() context.Context { return c.cancelCtx }

// Cancel trips the cooperative cancel signal for this unit.
func (c *Context) Cancel() { c.cancel() }

// Cancelled reports whether the cancel signal has fired.
func (c *Context) Cancelled() bool {
	select {
	case <-c.cancelCtx.Done():
		return true
	default:
		return false
	}
}

// EnterProcedure increments the recursion depth and reports whether the cap
// (§4.6, §8 "Recursion depth at cap") was exceeded. Callers must call
// ExitProcedure exactly once for every EnterProcedure that returned ok=true,
// and must not call ExitProcedure when ok was false.
func (c *Context) EnterProcedure() (ok bool) {
	if c.recursionDepth >= c.maxRecursion {
		return false
	}
	c.recursionDepth++
	return true
}

// ExitProcedure decrements the recursion depth on return from a procedure.
func (c *Context) ExitProcedure() { c.recursionDepth-- }

// MaxRecursion reports the configured procedure nesting cap.
func (c *Context) MaxRecursion() int { return c.maxRecursion }

// ResetSoftAssertions clears the soft-assertion buffer; called at the start
// of each top-level test per §3's invariant that it never leaks across tests.
func (c *Context) ResetSoftAssertions() {
	c.SoftAssertionErrors = nil
}

// AddSoftAssertionError appends a soft-assertion failure, preserving
// insertion order (§5).
func (c *Context) AddSoftAssertionError(e SoftAssertionError) {
	c.SoftAssertionErrors = append(c.SoftAssertionErrors, e)
}

// ClosePage releases the current page, if any (§3 lifecycle).
func (c *Context) ClosePage() error {
	if c.Page == nil {
		return nil
	}
	err := c.Page.Close()
	c.Page = nil
	return err
}

// CloseHTTP releases the current http session, if any (§3 lifecycle).
func (c *Context) CloseHTTP() error {
	if c.HTTP == nil {
		return nil
	}
	err := c.HTTP.Close()
	c.HTTP = nil
	return err
}

// Close releases every resource owned by this Context (§3, §4.4 step 5).
func (c *Context) Close() error {
	perr := c.ClosePage()
	herr := c.CloseHTTP()
	if perr != nil {
		return perr
	}
	return herr
}
