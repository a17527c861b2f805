// Package types defines core domain types for the pageturn runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"net/textproto"
	"net/url"
)

// DefaultSessionCookie is the cookie carrying the reading-platform
// session key in a captured request.
const DefaultSessionCookie = "wr_skey"

// Template parsing errors. Both are pre-run fatal: a run never starts
// from a template that failed to parse.
var (
	// ErrMalformedTemplate indicates the captured request text could not
	// be parsed into a usable request definition.
	ErrMalformedTemplate = errors.New("malformed request template")

	// ErrMissingCredential indicates the captured request parsed cleanly
	// but carries no session credential, so every call would fail.
	ErrMissingCredential = errors.New("template missing session credential")
)

// RequestTemplate is the reusable request definition extracted from a
// captured authenticated request. It is built once per run and never
// mutated; derived templates are produced with WithCookie.
type RequestTemplate struct {
	Method  string
	URL     string
	headers map[string]string // canonical MIME keys
	cookies map[string]string
	Body    []byte
}

// NewRequestTemplate builds a template from already-extracted parts.
// Header keys are canonicalized so lookups are case-insensitive.
func NewRequestTemplate(method, rawURL string, headers, cookies map[string]string, body []byte) (*RequestTemplate, error) {
	if method == "" {
		return nil, fmt.Errorf("%w: empty method", ErrMalformedTemplate)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrMalformedTemplate, rawURL)
	}

	t := &RequestTemplate{
		Method:  method,
		URL:     rawURL,
		headers: make(map[string]string, len(headers)),
		cookies: make(map[string]string, len(cookies)),
	}
	for k, v := range headers {
		t.headers[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	for k, v := range cookies {
		t.cookies[k] = v
	}
	if len(body) > 0 {
		t.Body = append([]byte(nil), body...)
	}
	return t, nil
}

// Header returns the header value for name (case-insensitive), or "".
func (t *RequestTemplate) Header(name string) string {
	return t.headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Headers returns a copy of the header map with canonical keys.
func (t *RequestTemplate) Headers() map[string]string {
	out := make(map[string]string, len(t.headers))
	for k, v := range t.headers {
		out[k] = v
	}
	return out
}

// Cookie returns the cookie value for name, or "".
func (t *RequestTemplate) Cookie(name string) string {
	return t.cookies[name]
}

// Cookies returns a copy of the cookie map.
func (t *RequestTemplate) Cookies() map[string]string {
	out := make(map[string]string, len(t.cookies))
	for k, v := range t.cookies {
		out[k] = v
	}
	return out
}

// WithCookie returns a copy of the template with one cookie replaced.
// The receiver is left untouched; templates are immutable once built.
func (t *RequestTemplate) WithCookie(name, value string) *RequestTemplate {
	clone := &RequestTemplate{
		Method:  t.Method,
		URL:     t.URL,
		headers: t.headers, // never written after construction
		cookies: make(map[string]string, len(t.cookies)+1),
		Body:    t.Body,
	}
	for k, v := range t.cookies {
		clone.cookies[k] = v
	}
	clone.cookies[name] = value
	return clone
}
