package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testsmith-io/testblocks/pkg/model"
	"github.com/testsmith-io/testblocks/pkg/varscope"
)

func newTestContext() *Context {
	return New(context.Background(), varscope.NewChain(nil, nil))
}

func TestAssertHardModeReturnsFailure(t *testing.T) {
	c := newTestContext()
	err := Assert(c, false, AssertionDetails{Message: "nope", Expected: 1, Actual: 2})
	require.Error(t, err)
	var af *AssertionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, 1, af.Details.Expected)
	assert.Empty(t, c.SoftAssertionErrors)
}

func TestAssertSoftModeBuffersAndReturnsNil(t *testing.T) {
	c := newTestContext()
	c.SoftAssertions = true
	err := Assert(c, false, AssertionDetails{Message: "soft fail"})
	assert.NoError(t, err)
	require.Len(t, c.SoftAssertionErrors, 1)
	assert.Equal(t, "soft fail", c.SoftAssertionErrors[0].Message)
}

func TestAssertPassingConditionNeverBuffers(t *testing.T) {
	c := newTestContext()
	c.SoftAssertions = true
	err := Assert(c, true, AssertionDetails{Message: "unused"})
	assert.NoError(t, err)
	assert.Empty(t, c.SoftAssertionErrors)
}

func TestResetSoftAssertionsClearsBuffer(t *testing.T) {
	c := newTestContext()
	c.SoftAssertions = true
	_ = Assert(c, false, AssertionDetails{Message: "x"})
	require.Len(t, c.SoftAssertionErrors, 1)
	c.ResetSoftAssertions()
	assert.Empty(t, c.SoftAssertionErrors)
}

func TestHaltSetClearPropagate(t *testing.T) {
	c := newTestContext()
	assert.False(t, c.Halted())

	c.SetHalt(model.StatusFailed, &model.StepError{Message: "boom"})
	assert.True(t, c.Halted())
	assert.Equal(t, model.StatusFailed, c.HaltStatus())

	err := c.Propagate()
	var hp *HaltPropagation
	require.ErrorAs(t, err, &hp)
	assert.Equal(t, model.StatusFailed, hp.Status)
	assert.Equal(t, "boom", hp.Err.Message)

	c.ClearHalt()
	assert.False(t, c.Halted())
}

func TestSkipTestRequestLifecycle(t *testing.T) {
	c := newTestContext()
	assert.False(t, c.SkipTestRequested())
	c.RequestSkipTest("condition met")
	assert.True(t, c.SkipTestRequested())
	assert.Equal(t, "condition met", c.SkipTestReason())
	c.ResetControlFlow()
	assert.False(t, c.SkipTestRequested())
}

func TestResetControlFlowClearsBothHaltAndSkip(t *testing.T) {
	c := newTestContext()
	c.SetHalt(model.StatusError, nil)
	c.RequestSkipTest("r")
	c.ResetControlFlow()
	assert.False(t, c.Halted())
	assert.False(t, c.SkipTestRequested())
}

func TestRecursionDepthCap(t *testing.T) {
	c := New(context.Background(), varscope.NewChain(nil, nil), WithMaxRecursion(2))
	require.True(t, c.EnterProcedure())
	require.True(t, c.EnterProcedure())
	assert.False(t, c.EnterProcedure(), "third nested call exceeds the cap of 2")
	c.ExitProcedure()
	assert.True(t, c.EnterProcedure(), "depth freed up after an ExitProcedure")
}

func TestCancelledReflectsParentContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := New(parent, varscope.NewChain(nil, nil))
	assert.False(t, c.Cancelled())
	cancel()
	assert.True(t, c.Cancelled())
}

type recordingLogger struct{ lines []string }

func (r *recordingLogger) Debug(stepID, blockType, msg string, attrs ...any) {
	r.lines = append(r.lines, "debug:"+msg)
}
func (r *recordingLogger) Info(stepID, blockType, msg string, attrs ...any) {
	r.lines = append(r.lines, "info:"+msg)
}
func (r *recordingLogger) Warn(stepID, blockType, msg string, attrs ...any) {
	r.lines = append(r.lines, "warn:"+msg)
}
func (r *recordingLogger) Error(stepID, blockType, msg string, attrs ...any) {
	r.lines = append(r.lines, "error:"+msg)
}

func TestWithLoggerOverridesDefault(t *testing.T) {
	log := &recordingLogger{}
	c := New(context.Background(), varscope.NewChain(nil, nil), WithLogger(log))
	c.Logger.Info("s1", "log", "hello")
	assert.Equal(t, []string{"info:hello"}, log.lines)
}

func TestCloseReleasesPageAndHTTP(t *testing.T) {
	c := newTestContext()
	page := &fakeClosable{}
	http := &fakeClosable{}
	c.Page = pageCloserAdapter{page}
	c.HTTP = httpCloserAdapter{http}
	require.NoError(t, c.Close())
	assert.True(t, page.closed)
	assert.True(t, http.closed)
	assert.Nil(t, c.Page)
	assert.Nil(t, c.HTTP)
}

type fakeClosable struct{ closed bool }

func (f *fakeClosable) Close() error { f.closed = true; return nil }

// pageCloserAdapter/httpCloserAdapter satisfy BrowserPage/HttpSession with
// every method a no-op except Close, just to exercise Context.Close.
type pageCloserAdapter struct{ c *fakeClosable }

func (pageCloserAdapter) Goto(context.Context, string, LocatorTimeout) error       { return nil }
func (pageCloserAdapter) Locator(string) Locator                                  { return nil }
func (pageCloserAdapter) WaitFor(context.Context, string, LocatorTimeout) error   { return nil }
func (pageCloserAdapter) Press(context.Context, string, LocatorTimeout) error     { return nil }
func (pageCloserAdapter) Screenshot(context.Context) ([]byte, error)              { return nil, nil }
func (pageCloserAdapter) Title(context.Context) (string, error)                  { return "", nil }
func (pageCloserAdapter) URL(context.Context) (string, error)                    { return "", nil }
func (pageCloserAdapter) WaitForURL(context.Context, string, LocatorTimeout) error { return nil }
func (pageCloserAdapter) WaitForTimeout(context.Context, int) error               { return nil }
func (p pageCloserAdapter) Close() error                                         { return p.c.Close() }

type httpCloserAdapter struct{ c *fakeClosable }

func (httpCloserAdapter) Request(context.Context, HTTPRequestSpec) (*HTTPResponse, error) {
	return nil, nil
}
func (httpCloserAdapter) SetBaseURL(string)                {}
func (httpCloserAdapter) SetHeader(string, string)         {}
func (httpCloserAdapter) UnsetHeader(string)               {}
func (httpCloserAdapter) SetHeaders(map[string]string)     {}
func (httpCloserAdapter) Cookies() map[string]string       { return nil }
func (h httpCloserAdapter) Close() error                   { return h.c.Close() }
