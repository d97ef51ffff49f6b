package webblock

import (
	"context"
	"fmt"
	"sync"

	"github.com/testsmith-io/testblocks/pkg/execctx"
)

// FakeElement is one addressable element in a FakePage's in-memory DOM,
// keyed by selector. Tests construct these directly to script a scenario.
type FakeElement struct {
	Text      string
	Attrs     map[string]string
	Value     string
	Checked   bool
	Visible   bool
	Count     int
	ClickHits int
}

// FakePage is a minimal in-memory BrowserPage for callers that don't want
// a concrete browser driver; no test in this repository uses it
// (spec.md §1 scopes the real driver out — see DESIGN.md "Web block
// family"), in the style of the teacher's own mock LLM client fakes.
type FakePage struct {
	mu       sync.Mutex
	url      string
	title    string
	Elements map[string]*FakeElement
}

// NewFakePage creates an empty fake page.
func NewFakePage() *FakePage {
	return &FakePage{Elements: map[string]*FakeElement{}}
}

func (p *FakePage) element(selector string) *FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[selector]
	if !ok {
		el = &FakeElement{Visible: true, Count: 1}
		p.Elements[selector] = el
	}
	return el
}

func (p *FakePage) Goto(_ context.Context, url string, _ execctx.LocatorTimeout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *FakePage) Locator(selector string) execctx.Locator {
	return &fakeLocator{page: p, selector: selector}
}

func (p *FakePage) WaitFor(_ context.Context, _ string, _ execctx.LocatorTimeout) error { return nil }
func (p *FakePage) Press(_ context.Context, _ string, _ execctx.LocatorTimeout) error   { return nil }
func (p *FakePage) Screenshot(_ context.Context) ([]byte, error)                        { return nil, nil }
func (p *FakePage) Title(_ context.Context) (string, error)                             { return p.title, nil }
func (p *FakePage) URL(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}
func (p *FakePage) WaitForURL(_ context.Context, pattern string, _ execctx.LocatorTimeout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pattern != "" && p.url != pattern {
		return fmt.Errorf("url %q does not match %q", p.url, pattern)
	}
	return nil
}
func (p *FakePage) WaitForTimeout(_ context.Context, _ int) error { return nil }
func (p *FakePage) Close() error                                  { return nil }

type fakeLocator struct {
	page     *FakePage
	selector string
}

func (l *fakeLocator) el() *FakeElement { return l.page.element(l.selector) }

func (l *fakeLocator) Click(context.Context, execctx.LocatorTimeout) error {
	l.el().ClickHits++
	return nil
}
func (l *fakeLocator) Fill(_ context.Context, value string, _ execctx.LocatorTimeout) error {
	l.el().Value = value
	return nil
}
func (l *fakeLocator) Type(_ context.Context, text string, _ execctx.LocatorTimeout) error {
	l.el().Value += text
	return nil
}
func (l *fakeLocator) PressSequentially(_ context.Context, text string, _ execctx.LocatorTimeout) error {
	l.el().Value += text
	return nil
}
func (l *fakeLocator) Check(context.Context, execctx.LocatorTimeout) error {
	l.el().Checked = true
	return nil
}
func (l *fakeLocator) Uncheck(context.Context, execctx.LocatorTimeout) error {
	l.el().Checked = false
	return nil
}
func (l *fakeLocator) Hover(context.Context, execctx.LocatorTimeout) error { return nil }
func (l *fakeLocator) Focus(context.Context, execctx.LocatorTimeout) error { return nil }
func (l *fakeLocator) DragTo(context.Context, execctx.Locator, execctx.LocatorTimeout) error {
	return nil
}
func (l *fakeLocator) ScrollIntoViewIfNeeded(context.Context, execctx.LocatorTimeout) error { return nil }
func (l *fakeLocator) SelectOption(_ context.Context, value string, _ execctx.LocatorTimeout) error {
	l.el().Value = value
	return nil
}
func (l *fakeLocator) TextContent(context.Context, execctx.LocatorTimeout) (string, error) {
	return l.el().Text, nil
}
func (l *fakeLocator) GetAttribute(_ context.Context, name string, _ execctx.LocatorTimeout) (string, error) {
	return l.el().Attrs[name], nil
}
func (l *fakeLocator) InputValue(context.Context, execctx.LocatorTimeout) (string, error) {
	return l.el().Value, nil
}
func (l *fakeLocator) Count(context.Context) (int, error) { return l.el().Count, nil }
func (l *fakeLocator) WaitFor(_ context.Context, state string, _ execctx.LocatorTimeout) error {
	el := l.el()
	if state == "visible" && !el.Visible {
		return fmt.Errorf("element %q not visible", l.selector)
	}
	return nil
}
