package execctx

import "github.com/testsmith-io/testblocks/pkg/model"

// HaltPropagation is returned by a container-block executor (if/forEach/
// repeat/procedure call) to re-raise a nested step's Failed/Error outcome
// on its own enclosing step, preserving the original status and
// structured error (§4.5 "failed/error propagates up", §7).
type HaltPropagation struct {
	Status model.Status
	Err    *model.StepError
}

func (h *HaltPropagation) Error() string {
	if h.Err != nil {
		return h.Err.Message
	}
	return string(h.Status)
}

// SetHalt records that a Failed/Error step occurred somewhere in the
// current test body; Dispatcher.RunAll consults this to abort the
// remainder of every enclosing step list (§7), until a tryCatch or retry
// block clears it after handling the failure.
func (c *Context) SetHalt(status model.Status, err *model.StepError) {
	c.haltStatus = status
	c.haltErr = err
}

// ClearHalt drops the current abort signal; called by tryCatch once it has
// captured the failure into errorInfo, and by retry between attempts.
func (c *Context) ClearHalt() {
	c.haltStatus = ""
	c.haltErr = nil
}

// Halted reports whether a Failed/Error abort is currently in flight.
func (c *Context) Halted() bool { return c.haltStatus != "" }

// HaltStatus and HaltErr expose the current abort's details (e.g. for
// tryCatch to populate its errorInfo loop-local).
func (c *Context) HaltStatus() model.Status   { return c.haltStatus }
func (c *Context) HaltErr() *model.StepError  { return c.haltErr }

// Propagate builds the error a container executor returns to re-raise the
// current halt on its own step.
func (c *Context) Propagate() error {
	return &HaltPropagation{Status: c.haltStatus, Err: c.haltErr}
}

// RequestSkipTest marks that a skipIf condition fired: every enclosing
// step list stops taking further steps and the scheduler finalizes the
// test as skipped (§4.5 "skipIf").
func (c *Context) RequestSkipTest(reason string) { c.skipTestReason = reason }

// SkipTestRequested reports whether skipIf has fired for this test run.
func (c *Context) SkipTestRequested() bool { return c.skipTestReason != "" }

// SkipTestReason returns the reason text, if any.
func (c *Context) SkipTestReason() string { return c.skipTestReason }

// ResetControlFlow clears halt/skip state; called at the start of each
// top-level test run (the same point ResetSoftAssertions is called).
func (c *Context) ResetControlFlow() {
	c.ClearHalt()
	c.skipTestReason = ""
}

// SkipSignal is returned by the skipIf block when its condition is truthy,
// so the Dispatcher classifies that one step as StatusSkipped (distinct
// from a cancellation skip and from a Failed/Error halt) while
// RequestSkipTest has already told every enclosing RunAll to stop.
type SkipSignal struct{ Reason string }

func (s *SkipSignal) Error() string { return s.Reason }

