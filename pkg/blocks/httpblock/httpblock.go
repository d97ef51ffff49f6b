// Package httpblock implements §4.8's HTTP block family over the
// execctx.HttpSession capability: request methods, header/auth helpers,
// extraction, and assertions — plus the supplemented http_assert_schema,
// header/cookie/regex extraction, and OAuth2 auth helper (SPEC_FULL.md
// §C.1-3), generalized from the teacher's shared.ExtractTool,
// tools.SchemaValidationTool, and shared.AuthTool.
package httpblock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/testsmith-io/testblocks/internal/jsonpath"
	"github.com/testsmith-io/testblocks/pkg/blocks"
	"github.com/testsmith-io/testblocks/pkg/execctx"
	"github.com/testsmith-io/testblocks/pkg/model"
)

// Register installs every HTTP BlockSpec into reg.
func Register(reg *blocks.Registry) {
	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		reg.Register(methodSpec(method))
	}
	reg.Register(setHeaderSpec())
	reg.Register(unsetHeaderSpec())
	reg.Register(setHeadersSpec())
	reg.Register(authBearerSpec())
	reg.Register(authBasicSpec())
	reg.Register(authAPIKeySpec())
	reg.Register(authOAuth2Spec())
	reg.Register(extractSpec())
	reg.Register(assertStatusSpec())
	reg.Register(assertBodyContainsSpec())
	reg.Register(assertJSONPathSpec())
	reg.Register(assertSchemaSpec())
}

func requireSession(ctx *execctx.Context) (execctx.HttpSession, error) {
	if ctx.HTTP == nil {
		return nil, fmt.Errorf("no HTTP session acquired for this scheduling unit")
	}
	return ctx.HTTP, nil
}

// methodSpec builds one GET/POST/PUT/PATCH/DELETE block (§4.8). BODY may
// carry a nested JSON-producing value-step, evaluated before the request.
func methodSpec(method string) blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:      "http_" + strings.ToLower(method),
		Category:  blocks.CategoryHTTP,
		HasPrev:   true, HasNext: true,
		HasOutput: true,
		Inputs: []blocks.InputSpec{
			{Name: "URL", Kind: blocks.KindText, Required: true},
			{Name: "QUERY", Kind: blocks.KindValue},
			{Name: "BODY", Kind: blocks.KindValue},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			url, _ := params["URL"].(string)

			var body any
			if raw, ok := params["BODY"]; ok && raw != nil {
				val, errRes := blocks.EvalValue(run, raw, ctx)
				if errRes != nil {
					if ctx.Halted() {
						return blocks.Result{Children: []model.StepResult{*errRes}}, ctx.Propagate()
					}
					return blocks.Result{Children: []model.StepResult{*errRes}},
						&execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
				}
				body = val
			}

			query := stringMap(params["QUERY"])

			resp, reqErr := session.Request(ctx.Ctx(), execctx.HTTPRequestSpec{
				Method: method, URL: url, Query: query, Body: body,
			})
			if reqErr != nil {
				return blocks.Result{}, fmt.Errorf("%s %s: %w", method, url, reqErr)
			}
			ctx.LastResponse = resp
			return blocks.Result{
				Output:  map[string]any{"status": resp.Status, "headers": resp.Headers, "body": resp.BodyText},
				Summary: fmt.Sprintf("%s %s -> %d", method, url, resp.Status),
			}, nil
		},
	}
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

func setHeaderSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_set_header",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "NAME", Kind: blocks.KindText, Required: true},
			{Name: "VALUE", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			name, _ := params["NAME"].(string)
			value, _ := params["VALUE"].(string)
			session.SetHeader(name, value)
			return blocks.Result{Summary: fmt.Sprintf("set header %s", name)}, nil
		},
	}
}

func unsetHeaderSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_unset_header",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "NAME", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			name, _ := params["NAME"].(string)
			session.UnsetHeader(name)
			return blocks.Result{Summary: fmt.Sprintf("unset header %s", name)}, nil
		},
	}
}

func setHeadersSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_set_headers",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "HEADERS", Kind: blocks.KindValue, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			headers := stringMap(params["HEADERS"])
			session.SetHeaders(headers)
			return blocks.Result{Summary: fmt.Sprintf("set %d headers", len(headers))}, nil
		},
	}
}

func authBearerSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_auth_bearer",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "TOKEN", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			token, _ := params["TOKEN"].(string)
			session.SetHeader("Authorization", "Bearer "+token)
			return blocks.Result{Summary: "set bearer auth"}, nil
		},
	}
}

func authBasicSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_auth_basic",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "USERNAME", Kind: blocks.KindText, Required: true},
			{Name: "PASSWORD", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			username, _ := params["USERNAME"].(string)
			password, _ := params["PASSWORD"].(string)
			session.SetHeader("Authorization", basicAuthHeader(username, password))
			return blocks.Result{Summary: "set basic auth for " + username}, nil
		},
	}
}

func basicAuthHeader(username, password string) string {
	creds := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func authAPIKeySpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_auth_api_key",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "HEADER_NAME", Kind: blocks.KindText, Default: "X-API-Key"},
			{Name: "VALUE", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			header, _ := params["HEADER_NAME"].(string)
			value, _ := params["VALUE"].(string)
			session.SetHeader(header, value)
			return blocks.Result{Summary: "set API key header " + header}, nil
		},
	}
}

// authOAuth2Spec performs a client_credentials exchange via
// golang.org/x/oauth2/clientcredentials (SPEC_FULL.md §C.3) and sets the
// resulting bearer token on the session.
func authOAuth2Spec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_auth_oauth2",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "TOKEN_URL", Kind: blocks.KindText, Required: true},
			{Name: "CLIENT_ID", Kind: blocks.KindText, Required: true},
			{Name: "CLIENT_SECRET", Kind: blocks.KindText, Required: true},
			{Name: "SCOPES", Kind: blocks.KindText},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			session, err := requireSession(ctx)
			if err != nil {
				return blocks.Result{}, err
			}
			tokenURL, _ := params["TOKEN_URL"].(string)
			clientID, _ := params["CLIENT_ID"].(string)
			clientSecret, _ := params["CLIENT_SECRET"].(string)
			scopesRaw, _ := params["SCOPES"].(string)
			var scopes []string
			if scopesRaw != "" {
				scopes = strings.Split(scopesRaw, ",")
			}

			cfg := &clientcredentials.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenURL:     tokenURL,
				Scopes:       scopes,
			}
			token, tokErr := cfg.Token(ctx.Ctx())
			if tokErr != nil {
				return blocks.Result{}, fmt.Errorf("oauth2 client_credentials: %w", tokErr)
			}
			tokenType := token.TokenType
			if tokenType == "" {
				tokenType = "Bearer"
			}
			session.SetHeader("Authorization", tokenType+" "+token.AccessToken)
			return blocks.Result{Summary: "obtained oauth2 token", Output: tokenSummary(token)}, nil
		},
	}
}

func tokenSummary(t *oauth2.Token) map[string]any {
	return map[string]any{"tokenType": t.TokenType, "expiry": t.Expiry}
}

// extractSpec implements the four extraction methods of SPEC_FULL.md §C.2:
// json_path, header, cookie, regex — exactly one per call, assigning the
// extracted string via Scope.Set: into the innermost frame that already
// declares the name, else into the file scope. A new name is not declared
// in a loop or procedure frame.
func extractSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_extract",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "JSON_PATH", Kind: blocks.KindText},
			{Name: "HEADER", Kind: blocks.KindText},
			{Name: "COOKIE", Kind: blocks.KindText},
			{Name: "REGEX", Kind: blocks.KindText},
			{Name: "REGEX_GROUP", Kind: blocks.KindNumber, Default: float64(1)},
			{Name: "SAVE_AS", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ctx.LastResponse == nil {
				return blocks.Result{}, fmt.Errorf("http_extract: no response available — make a request first")
			}
			resp := ctx.LastResponse
			saveAs, _ := params["SAVE_AS"].(string)

			var value string
			var method string
			switch {
			case nonEmpty(params["JSON_PATH"]):
				path, _ := params["JSON_PATH"].(string)
				v, err := jsonpath.Query(resp.Body, path)
				if err != nil {
					return blocks.Result{}, err
				}
				value = jsonpath.Stringify(v)
				method = "json_path"
			case nonEmpty(params["HEADER"]):
				name, _ := params["HEADER"].(string)
				v, ok := resp.Headers[name]
				if !ok {
					return blocks.Result{}, fmt.Errorf("http_extract: header %q not found", name)
				}
				value, method = v, "header"
			case nonEmpty(params["COOKIE"]):
				name, _ := params["COOKIE"].(string)
				v, ok := resp.Cookies[name]
				if !ok {
					return blocks.Result{}, fmt.Errorf("http_extract: cookie %q not found", name)
				}
				value, method = v, "cookie"
			case nonEmpty(params["REGEX"]):
				pattern, _ := params["REGEX"].(string)
				group := int(numberOf(params["REGEX_GROUP"]))
				if group <= 0 {
					group = 1
				}
				re, reErr := regexp.Compile(pattern)
				if reErr != nil {
					return blocks.Result{}, fmt.Errorf("http_extract: invalid regex %q: %w", pattern, reErr)
				}
				matches := re.FindStringSubmatch(resp.BodyText)
				if matches == nil || group >= len(matches) {
					return blocks.Result{}, fmt.Errorf("http_extract: regex %q did not match (group %d)", pattern, group)
				}
				value, method = matches[group], "regex"
			default:
				return blocks.Result{}, fmt.Errorf("http_extract: no extraction method specified (json_path, header, cookie, regex)")
			}

			ctx.Scope.Set(saveAs, value)
			return blocks.Result{
				Output:  value,
				Summary: fmt.Sprintf("extracted %s via %s -> %s", saveAs, method, value),
			}, nil
		},
	}
}

func nonEmpty(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func numberOf(v any) float64 {
	f, _ := v.(float64)
	return f
}

func assertStatusSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_assert_status",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "EXPECTED", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ctx.LastResponse == nil {
				return blocks.Result{}, fmt.Errorf("http_assert_status: no response available")
			}
			expectedRaw, _ := params["EXPECTED"].(string)
			actual := ctx.LastResponse.Status
			ok := matchesStatusSet(expectedRaw, actual)
			err := execctx.Assert(ctx, ok, execctx.AssertionDetails{
				Message: fmt.Sprintf("expected status %s, got %d", expectedRaw, actual),
				StepType: step.Type, Expected: expectedRaw, Actual: actual,
			})
			return blocks.Result{Summary: fmt.Sprintf("status %d vs %s", actual, expectedRaw)}, err
		},
	}
}

// matchesStatusSet accepts "200", "200,201,204" or a "2xx" pattern.
func matchesStatusSet(expected string, actual int) bool {
	for _, part := range strings.Split(expected, ",") {
		part = strings.TrimSpace(part)
		if strings.HasSuffix(part, "xx") && len(part) == 3 {
			if string(part[0]) == strconv.Itoa(actual/100) {
				return true
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n == actual {
			return true
		}
	}
	return false
}

func assertBodyContainsSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_assert_body_contains",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "SUBSTRING", Kind: blocks.KindText, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ctx.LastResponse == nil {
				return blocks.Result{}, fmt.Errorf("http_assert_body_contains: no response available")
			}
			substr, _ := params["SUBSTRING"].(string)
			ok := strings.Contains(ctx.LastResponse.BodyText, substr)
			err := execctx.Assert(ctx, ok, execctx.AssertionDetails{
				Message:  fmt.Sprintf("expected body to contain %q", substr),
				StepType: step.Type, Expected: substr, Actual: ctx.LastResponse.BodyText,
			})
			return blocks.Result{Summary: "checked body contains"}, err
		},
	}
}

func assertJSONPathSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_assert_json_path",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "PATH", Kind: blocks.KindText, Required: true},
			{Name: "EXPECTED", Kind: blocks.KindValue, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ctx.LastResponse == nil {
				return blocks.Result{}, fmt.Errorf("http_assert_json_path: no response available")
			}
			path, _ := params["PATH"].(string)
			expected, errRes := blocks.EvalValue(run, params["EXPECTED"], ctx)
			if errRes != nil {
				if ctx.Halted() {
					return blocks.Result{Children: []model.StepResult{*errRes}}, ctx.Propagate()
				}
				return blocks.Result{Children: []model.StepResult{*errRes}},
					&execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
			}
			actual, qErr := jsonpath.Query(ctx.LastResponse.Body, path)
			if qErr != nil {
				return blocks.Result{}, qErr
			}
			ok := jsonpath.Stringify(actual) == jsonpath.Stringify(expected)
			err := execctx.Assert(ctx, ok, execctx.AssertionDetails{
				Message:  fmt.Sprintf("expected %s to equal %v", path, expected),
				StepType: step.Type, Expected: expected, Actual: actual,
			})
			return blocks.Result{Summary: "compared " + path}, err
		},
	}
}

// assertSchemaSpec implements SPEC_FULL.md §C.1's http_assert_schema,
// generalized from the teacher's SchemaValidationTool.
func assertSchemaSpec() blocks.BlockSpec {
	return blocks.BlockSpec{
		Type:     "http_assert_schema",
		Category: blocks.CategoryHTTP,
		HasPrev:  true, HasNext: true,
		Inputs: []blocks.InputSpec{
			{Name: "SCHEMA", Kind: blocks.KindValue, Required: true},
		},
		Execute: func(params map[string]any, step model.TestStep, ctx *execctx.Context, run blocks.RunFunc) (blocks.Result, error) {
			if ctx.LastResponse == nil {
				return blocks.Result{}, fmt.Errorf("http_assert_schema: no response available")
			}
			schemaVal, errRes := blocks.EvalValue(run, params["SCHEMA"], ctx)
			if errRes != nil {
				if ctx.Halted() {
					return blocks.Result{Children: []model.StepResult{*errRes}}, ctx.Propagate()
				}
				return blocks.Result{Children: []model.StepResult{*errRes}},
					&execctx.HaltPropagation{Status: errRes.Status, Err: errRes.Error}
			}
			schemaBytes, mErr := json.Marshal(schemaVal)
			if mErr != nil {
				return blocks.Result{}, fmt.Errorf("http_assert_schema: schema is not serializable: %w", mErr)
			}

			schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
			docLoader := gojsonschema.NewBytesLoader(ctx.LastResponse.Body)
			result, valErr := gojsonschema.Validate(schemaLoader, docLoader)
			if valErr != nil {
				return blocks.Result{}, fmt.Errorf("http_assert_schema: %w", valErr)
			}

			var violations []string
			for _, e := range result.Errors() {
				violations = append(violations, e.String())
			}
			err := execctx.Assert(ctx, result.Valid(), execctx.AssertionDetails{
				Message:  "response body does not conform to schema",
				StepType: step.Type, Expected: "valid", Actual: violations,
			})
			return blocks.Result{Summary: fmt.Sprintf("schema validation: %d violations", len(violations))}, err
		},
	}
}
