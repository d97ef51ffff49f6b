// Package webblock implements §4.7's web block family over the
// execctx.BrowserPage/Locator capability interfaces: navigate, interact
// (click/fill/type/check/hover/…), assert, and retrieve blocks, plus the
// testid: selector shorthand. No concrete driver lives here (spec.md §1
// scopes the browser engine out); only the blocks and a test fake do.
package webblock

import (
	"context"
	"fmt"
	"strings"

	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
)

// Register installs every web BlockSpec into reg.
func Register(reg *blocks.Registry) {
	reg.Register(navigateSpec())
	reg.Register(clickSpec())
	reg.Register(fillSpec())
	reg.Register(typeSpec())
	reg.Register(checkSpec("web_check", true))
	reg.Register(checkSpec("web_uncheck", false))
	reg.Register(hoverSpec())
	reg.Register(selectOptionSpec())
	reg.Register(assertVisibleSpec())
	reg.Register(assertTextSpec())
	reg.Register(getTextSpec())
	reg.Register(getAttributeSpec())
	reg.Register(waitForURLSpec())
}

// resolveSelector rewrites the testid: shorthand (§4.7).
func resolveSelector(raw string, attr string) string {
	if strings.HasPrefix(raw, "testid:") {
		value := strings.TrimPrefix(raw, "testid:")
		return fmt.Sprintf("[%s=%q]", attr, value)
	}
	return raw
}

func locatorTimeout(ctx *execctx.Context, overrideMs any) execctx.LocatorTimeout {
	if f, ok := overrideMs.(float64); ok && f > 0 {
		ms := int(f)
		return execctx.LocatorTimeout{Override: &ms}
	}
	if ctx.WebTimeout > 0 {
		ms := int(ctx.WebTimeout.Milliseconds())
		return execctx.LocatorTimeout{Override: &ms}
	}
	return execctx.LocatorTimeout{}
}

// timeoutFailure builds the structured {expected, actual} assertion-style
// failure §4.7 requires for an elapsed auto-wait.
func timeoutFailure(step model.TestStep, selector string, condition string, err error) error {
	return &execctx.AssertionFailure{Details: execctx.AssertionDetails{
		Message:  fmt.Sprintf("timed out waiting for %s on %q: %v", condition, selector, err),
		StepType: step.Type,
		Expected: condition,
		Actual:   selector,
	}}
}

func requirePage(ctx *execctx.Context) (execctx.BrowserPage, error) {
	if ctx.Page == nil {
		return nil, fmt.Errorf("no browser page acquired for this scheduling unit")
	}
	return ctx.Page, nil
}

func navigateSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "web_navigate",
		Category: blocks.CategoryWeb,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "URL", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			url, _ := params["URL"].(string)
			if err := page.Goto(ctx.Ctx(), url, locatorTimeout(ctx, params["TIMEOUT_MS"])); err != nil {
				return blocks.Result{}, timeoutFailure(step, url, "navigation", err)
			}
			return blocks.Result{Summary: "navigated to " + url}, nil
		},
	}
}

func clickSpec() blocks.BlockSpec {
	return interactSpec("web_click", "clicked", func(ctx context.Context, loc execctx.Locator, _ string, timeout execctx.LocatorTimeout) error {
		return loc.Click(ctx, timeout)
	}, nil)
}

func fillSpec() blocks.BlockSpec {
	return interactSpec("web_fill", "filled", func(ctx context.Context, loc execctx.Locator, value string, timeout execctx.LocatorTimeout) error {
		return loc.Fill(ctx, value, timeout)
	}, []blocks.InputSpec{{Name: "VALUE", Kind: blocks.KindText, Required: true}})
}

func typeSpec() blocks.BlockSpec {
	return interactSpec("web_type", "typed into", func(ctx context.Context, loc execctx.Locator, value string, timeout execctx.LocatorTimeout) error {
		return loc.PressSequentially(ctx, value, timeout)
	}, []blocks.InputSpec{{Name: "VALUE", Kind: blocks.KindText, Required: true}})
}

func hoverSpec() blocks.BlockSpec {
	return interactSpec("web_hover", "hovered", func(ctx context.Context, loc execctx.Locator, _ string, timeout execctx.LocatorTimeout) error {
		return loc.Hover(ctx, timeout)
	}, nil)
}

func selectOptionSpec() blocks.BlockSpec {
	return interactSpec("web_select_option", "selected option on", func(ctx context.Context, loc execctx.Locator, value string, timeout execctx.LocatorTimeout) error {
		return loc.SelectOption(ctx, value, timeout)
	}, []blocks.InputSpec{{Name: "VALUE", Kind: blocks.KindText, Required: true}})
}

// interactSpec builds one locator-driven interaction block, threading the
// common SELECTOR + optional TIMEOUT_MS inputs and the testid: shorthand,
// auto-wait-until-timeout error framing, and variable resolution.
func interactSpec(typ, verb string, call func(context.Context, execctx.Locator, string, execctx.LocatorTimeout) error, extra []blocks.InputSpec) blocks.BlockSpec {
	inputs := append([]blocks.InputSpec{
		{Name: "SELECTOR", Kind: blocks.KindText, Required: true},
		{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
	}, extra...)
	return blocks.BlockSpec{
		Type:     typ,
		Category: blocks.CategoryWeb,
		HasPrev:  true, HasNext: true,
		Inputs: inputs,
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			raw, _ := params["SELECTOR"].(string)
			selector := resolveSelector(raw, ctx.TestIDAttribute)
			value, _ := params["VALUE"].(string)
			loc := page.Locator(selector)
			timeout := locatorTimeout(ctx, params["TIMEOUT_MS"])
			if err := call(ctx.Ctx(), loc, value, timeout); err != nil {
				return blocks.Result{}, timeoutFailure(step, selector, verb, err)
			}
			return blocks.Result{Summary: fmt.Sprintf("%s %s", verb, selector)}, nil
		},
	}
}

func checkSpec(typ string, check bool) blocks.BlockSpec {
	verb := "checked"
	if !check {
		verb = "unchecked"
	}
	return interactSpec(typ, verb, func(ctx context.Context, loc execctx.Locator, _ string, timeout execctx.LocatorTimeout) error {
		if check {
			return loc.Check(ctx, timeout)
		}
		return loc.Uncheck(ctx, timeout)
	}, nil)
}

func assertVisibleSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "web_assert_visible",
		Category: blocks.CategoryWeb,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "SELECTOR", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			raw, _ := params["SELECTOR"].(string)
			selector := resolveSelector(raw, ctx.TestIDAttribute)
			loc := page.Locator(selector)
			timeout := locatorTimeout(ctx, params["TIMEOUT_MS"])
			waitErr := loc.WaitFor(ctx.Ctx(), "visible", timeout)
			assertErr := execctx.Assert(ctx, waitErr == nil, execctx.AssertionDetails{
				Message:  fmt.Sprintf("expected %q to be visible", selector),
				StepType: step.Type, Expected: "visible", Actual: waitErr,
			})
			return blocks.Result{Summary: "checked visibility of " + selector}, assertErr
		},
	}
}

func assertTextSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "web_assert_text_equals",
		Category: blocks.CategoryWeb,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "SELECTOR", Kind: blocks.KindText, Required: true},
			{Name: "TEXT", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			raw, _ := params["SELECTOR"].(string)
			selector := resolveSelector(raw, ctx.TestIDAttribute)
			expected, _ := params["TEXT"].(string)
			loc := page.Locator(selector)
			timeout := locatorTimeout(ctx, params["TIMEOUT_MS"])
			actual, textErr := loc.TextContent(ctx.Ctx(), timeout)
			if textErr != nil {
				return blocks.Result{}, timeoutFailure(step, selector, "text content", textErr)
			}
			assertErr := execctx.Assert(ctx, actual == expected, execctx.AssertionDetails{
				Message:  fmt.Sprintf("expected %q text to equal %q", selector, expected),
				StepType: step.Type, Expected: expected, Actual: actual,
			})
			return blocks.Result{Summary: "compared text of " + selector}, assertErr
		},
	}
}

func getTextSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:      "web_get_text",
		Category:  blocks.CategoryWeb,
		HasPrev:   true, HasNext: true,
		HasOutput: true,
		Inputs: []blocks.InputSpec{
			{Name: "SELECTOR", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			raw, _ := params["SELECTOR"].(string)
			selector := resolveSelector(raw, ctx.TestIDAttribute)
			loc := page.Locator(selector)
			timeout := locatorTimeout(ctx, params["TIMEOUT_MS"])
			text, textErr := loc.TextContent(ctx.Ctx(), timeout)
			if textErr != nil {
				return blocks.Result{}, timeoutFailure(step, selector, "text content", textErr)
			}
			return blocks.Result{Output: text, Summary: "read text of " + selector}, nil
		},
	}
}

func getAttributeSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:      "web_get_attribute",
		Category:  blocks.CategoryWeb,
		HasPrev:   true, HasNext: true,
		HasOutput: true,
		Inputs: []blocks.InputSpec{
			{Name: "SELECTOR", Kind: blocks.KindText, Required: true},
			{Name: "NAME", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			raw, _ := params["SELECTOR"].(string)
			selector := resolveSelector(raw, ctx.TestIDAttribute)
			name, _ := params["NAME"].(string)
			loc := page.Locator(selector)
			timeout := locatorTimeout(ctx, params["TIMEOUT_MS"])
			val, attrErr := loc.GetAttribute(ctx.Ctx(), name, timeout)
			if attrErr != nil {
				return blocks.Result{}, timeoutFailure(step, selector, "attribute "+name, attrErr)
			}
			return blocks.Result{Output: val, Summary: fmt.Sprintf("read %s of %s", name, selector)}, nil
		},
	}
}

func waitForURLSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "web_wait_for_url",
		Category: blocks.CategoryWeb,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "PATTERN", Kind: blocks.KindText, Required: true},
			{Name: "TIMEOUT_MS", Kind: blocks.KindNumber},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			page, err := requirePage(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			pattern, _ := params["PATTERN"].(string)
			if err := page.WaitForURL(ctx.Ctx(), pattern, locatorTimeout(ctx, params["TIMEOUT_MS"])); err != nil {
				return blocks.Result{}, timeoutFailure(step, pattern, "URL match", err)
			}
			return blocks.Result{Summary: "URL matched " + pattern}, nil
		},
	}
}
