package execctx

import "context"

// LocatorTimeout bundles the optional per-call timeout override threaded
// through every locator operation (§4.7: "each taking an optional timeout").
type LocatorTimeout struct {
	Override *int // milliseconds; the web blocks set it from a step's timeout or else ctx.WebTimeout
}

// Locator is a resolved handle to zero-or-more elements matching a
// selector, as exposed by a BrowserPage capability (§4.7).
type Locator interface {
	Click(ctx context.Context, timeout LocatorTimeout) error
	Fill(ctx context.Context, value string, timeout LocatorTimeout) error
	Type(ctx context.Context, text string, timeout LocatorTimeout) error
	PressSequentially(ctx context.Context, text string, timeout LocatorTimeout) error
	Check(ctx context.Context, timeout LocatorTimeout) error
	Uncheck(ctx context.Context, timeout LocatorTimeout) error
	Hover(ctx context.Context, timeout LocatorTimeout) error
	Focus(ctx context.Context, timeout LocatorTimeout) error
	DragTo(ctx context.Context, target Locator, timeout LocatorTimeout) error
	ScrollIntoViewIfNeeded(ctx context.Context, timeout LocatorTimeout) error
	SelectOption(ctx context.Context, value string, timeout LocatorTimeout) error
	TextContent(ctx context.Context, timeout LocatorTimeout) (string, error)
	GetAttribute(ctx context.Context, name string, timeout LocatorTimeout) (string, error)
	InputValue(ctx context.Context, timeout LocatorTimeout) (string, error)
	Count(ctx context.Context) (int, error)
	WaitFor(ctx context.Context, state string, timeout LocatorTimeout) error
}

// BrowserPage is the narrow capability surface the web block family (§4.7)
// depends on; the concrete driver is an external collaborator (spec.md
// §1) — only the interface and a test fake live in this repository.
type BrowserPage interface {
	Goto(ctx context.Context, url string, timeout LocatorTimeout) error
	Locator(selector string) Locator
	WaitFor(ctx context.Context, state string, timeout LocatorTimeout) error
	Press(ctx context.Context, key string, timeout LocatorTimeout) error
	Screenshot(ctx context.Context) ([]byte, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	WaitForURL(ctx context.Context, pattern string, timeout LocatorTimeout) error
	WaitForTimeout(ctx context.Context, ms int) error
	Close() error
}

// HTTPResponse is the normalized response shape produced by an HttpSession
// request and stashed in ExecutionContext.LastResponse for extract/assert
// blocks (§4.8).
type HTTPResponse struct {
	Status     int
	Headers    map[string]string
	Cookies    map[string]string
	Body       []byte
	BodyText   string
	DurationMs int64
}

// HTTPRequestSpec is the input to HttpSession.Request (§4.8).
type HTTPRequestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    any
}

// HttpSession is the narrow capability surface the HTTP block family
// depends on: base URL, persistent headers, and a cookie jar, scoped to
// one scheduling unit (§4.8). The concrete driver is external per spec.md
// §1; internal/httpdriver provides a reference implementation that the
// engine uses when the host supplies no session.
type HttpSession interface {
	Request(ctx context.Context, spec HTTPRequestSpec) (*HTTPResponse, error)
	SetBaseURL(url string)
	SetHeader(name, value string)
	UnsetHeader(name string)
	SetHeaders(headers map[string]string)
	Cookies() map[string]string
	Close() error
}
