// Package session implements the pre-run credential preflight.
//
// One lightweight call against the platform's credential-renewal endpoint
// decides whether the captured session is worth spending the run budget
// on. Auth rejection is fatal for the run; network trouble is not — the
// engine's per-call retry policy already covers transient conditions.
package session

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultRenewalURL is the platform's credential-renewal endpoint.
const DefaultRenewalURL = "https://weread.qq.com/web/login/renewal"

// DefaultTimeout is the preflight request timeout.
const DefaultTimeout = 15 * time.Second

// renewalBody is the fixed renewal request body; the rq field names the
// endpoint the renewed key will be spent on.
const renewalBody = `{"rq":"%2Fweb%2Fbook%2Fread"}`

// Outcome is the preflight verdict.
type Outcome string

const (
	// Valid: the credential was accepted and a fresh session key issued.
	Valid Outcome = "valid"
	// Expired: the credential was rejected; the run must not start.
	Expired Outcome = "expired"
	// Unreachable: the endpoint could not be reached; non-fatal.
	Unreachable Outcome = "unreachable"
)

// Result is the preflight outcome. On Valid, Template is the input
// template with the refreshed session key (a new value; the input is
// never mutated). Detail explains Expired and Unreachable verdicts.
type Result struct {
	Outcome  Outcome
	Template *types.RequestTemplate
	Detail   string
}

// Validator performs the credential preflight.
type Validator struct {
	client        *http.Client
	renewalURL    string
	sessionCookie string
	logger        *log.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithClient overrides the HTTP client (test injection).
func WithClient(c *http.Client) Option {
	return func(v *Validator) { v.client = c }
}

// WithRenewalURL overrides the renewal endpoint.
func WithRenewalURL(u string) Option {
	return func(v *Validator) { v.renewalURL = u }
}

// WithSessionCookie overrides the session cookie name.
func WithSessionCookie(name string) Option {
	return func(v *Validator) { v.sessionCookie = name }
}

// NewValidator creates a preflight validator.
func NewValidator(logger *log.Logger, opts ...Option) *Validator {
	v := &Validator{
		client:        &http.Client{Timeout: DefaultTimeout},
		renewalURL:    DefaultRenewalURL,
		sessionCookie: types.DefaultSessionCookie,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate performs the preflight call.
func (v *Validator) Validate(ctx context.Context, tpl *types.RequestTemplate) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.renewalURL, bytes.NewReader([]byte(renewalBody)))
	if err != nil {
		return Result{Outcome: Unreachable, Detail: err.Error()}
	}
	for k, val := range tpl.Headers() {
		req.Header.Set(k, val)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, val := range tpl.Cookies() {
		req.AddCookie(&http.Cookie{Name: name, Value: val})
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("preflight unreachable", map[string]any{"error": err.Error()})
		return Result{Outcome: Unreachable, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Result{Outcome: Expired, Detail: "renewal rejected with status " + resp.Status}
	}
	if resp.StatusCode >= 500 {
		return Result{Outcome: Unreachable, Detail: "renewal endpoint returned " + resp.Status}
	}

	if key := renewedKey(resp, v.sessionCookie); key != "" {
		v.logger.Info("session key renewed", map[string]any{"cookie": v.sessionCookie})
		return Result{Outcome: Valid, Template: tpl.WithCookie(v.sessionCookie, key)}
	}

	// No fresh key. A body marker saying the session is invalid, or a
	// renewal response without the cookie at all, both mean the captured
	// credential is dead.
	if marker := invalidSessionMarker(body); marker != "" {
		return Result{Outcome: Expired, Detail: marker}
	}
	return Result{Outcome: Expired, Detail: "renewal response carried no fresh session key"}
}

// renewedKey extracts the refreshed session cookie from Set-Cookie.
func renewedKey(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// invalidSessionMarker inspects a renewal response body for the
// platform's session-invalid markers. Returns "" when none found.
func invalidSessionMarker(body []byte) string {
	var probe struct {
		Succ    *int   `json:"succ"`
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.Succ != nil && *probe.Succ != 1 {
		return "renewal body reports succ != 1"
	}
	if probe.ErrCode < 0 {
		if probe.ErrMsg != "" {
			return "renewal error: " + probe.ErrMsg
		}
		return "renewal error code " + strconv.Itoa(probe.ErrCode)
	}
	return ""
}
