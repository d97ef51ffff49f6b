// Package httpdriver provides the default HttpSession implementation
// the engine falls back to when the host supplies none — the concrete HTTP
// client is an external collaborator per spec.md §1, but the engine needs
// a reference driver to actually run against. Built on the teacher's
// declared fasthttp dependency (go.mod: github.com/valyala/fasthttp) paced
// with golang.org/x/time/rate the way the control package's retry backoff is, rather
// than leaving the rate limiter dependency unexercised.
package httpdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/testsmith-io/testblocks/pkg/execctx"
)

func writeJSONBody(req *fasthttp.Request, body any) error {
	if raw, ok := body.([]byte); ok {
		req.SetBody(raw)
		return nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpdriver: request body is not serializable: %w", err)
	}
	req.SetBody(b)
	return nil
}

// Session is a fasthttp-backed execctx.HttpSession: one persistent base
// URL, header set, and cookie jar per scheduling unit (§4.8).
type Session struct {
	mu      sync.Mutex
	client  *fasthttp.Client
	limiter *rate.Limiter

	baseURL string
	headers map[string]string
	cookies map[string]string
}

// Option configures a new Session.
type Option func(*Session)

// WithRateLimit caps outbound requests per second; ratePerSec <= 0 means
// unlimited.
func WithRateLimit(ratePerSec float64) Option {
	return func(s *Session) {
		if ratePerSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
		}
	}
}

// New builds a Session with a fresh fasthttp.Client.
func New(opts ...Option) *Session {
	s := &Session{
		client:  &fasthttp.Client{},
		headers: map[string]string{},
		cookies: map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) SetBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(u, "/")
}

func (s *Session) SetHeader(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[name] = value
}

func (s *Session) UnsetHeader(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.headers, name)
}

func (s *Session) SetHeaders(headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range headers {
		s.headers[k] = v
	}
}

func (s *Session) Cookies() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

func (s *Session) resolveURL(raw string, query map[string]string) (string, error) {
	s.mu.Lock()
	base := s.baseURL
	s.mu.Unlock()

	target := raw
	if base != "" && !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		target = base + "/" + strings.TrimLeft(raw, "/")
	}
	if len(query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("httpdriver: invalid URL %q: %w", raw, err)
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Request issues one HTTP call and normalizes the response per §4.8,
// tracking any Set-Cookie headers into the session's jar.
func (s *Session) Request(ctx context.Context, spec execctx.HTTPRequestSpec) (*execctx.HTTPResponse, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target, err := s.resolveURL(spec.URL, spec.Query)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(spec.Method)

	s.mu.Lock()
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	s.mu.Unlock()
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	if spec.Body != nil {
		req.Header.SetContentType("application/json")
		if err := writeJSONBody(req, spec.Body); err != nil {
			return nil, err
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, fmt.Errorf("httpdriver: %s %s: %w", spec.Method, target, err)
		}
	} else if err := s.client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("httpdriver: %s %s: %w", spec.Method, target, err)
	}

	headers := map[string]string{}
	resp.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	body := append([]byte(nil), resp.Body()...)

	resp.Header.VisitAllCookie(func(_, setCookie []byte) {
		s.rememberCookie(string(setCookie))
	})

	return &execctx.HTTPResponse{
		Status:   resp.StatusCode(),
		Headers:  headers,
		Cookies:  s.Cookies(),
		Body:     body,
		BodyText: string(body),
	}, nil
}

func (s *Session) rememberCookie(setCookie string) {
	parts := strings.SplitN(setCookie, ";", 2)
	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[nameValue[0]] = nameValue[1]
}

func (s *Session) Close() error { return nil }
