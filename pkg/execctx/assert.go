package execctx

import "time"

// AssertionDetails describes one assertion outcome for both the soft-buffer
// entry and the hard StepError shape (§4.1 step 5, §7).
type AssertionDetails struct {
	Message  string
	StepType string
	Expected any
	Actual   any
}

// AssertionFailure is returned by Assert on a hard-mode failure so the
// dispatcher can classify the step as StatusFailed with structured error
// data (§4.1, §7 "Assertion failure").
type AssertionFailure struct {
	Details AssertionDetails
}

func (f *AssertionFailure) Error() string { return f.Details.Message }

// Assert is the single chokepoint every assertion block must call (spec.md
// §9: "a single assert(ctx, cond, details) helper that branches on
// ctx.softAssertions; assertion blocks call only this helper, never the
// driver's own assert API directly"). When cond is true it returns nil.
// When false: in soft mode the failure is appended to
// ctx.SoftAssertionErrors and Assert returns nil (the step still reports
// passed, per §4.1 step 5); in hard mode it returns an *AssertionFailure
// for the dispatcher to classify as StatusFailed.
func Assert(c *Context, cond bool, details AssertionDetails) error {
	if cond {
		return nil
	}
	if c.SoftAssertions {
		c.AddSoftAssertionError(SoftAssertionError{
			Message:   details.Message,
			StepType:  details.StepType,
			Expected:  details.Expected,
			Actual:    details.Actual,
			Timestamp: time.Now(),
		})
		return nil
	}
	return &AssertionFailure{Details: details}
}
