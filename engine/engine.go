// Package engine executes the simulated read sequence.
//
// The engine is a single-writer state machine: Idle → Running →
// {Completed, Aborted}. Execution is strictly sequential — one call in
// flight at a time — because concurrency would defeat the pacing model
// and trip anti-automation detection on the target service. The only
// suspension points are the randomized inter-call delay and the retry
// backoff wait.
package engine

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes caps how much of a response body is read for
// classification.
const maxResponseBytes = 256 * 1024

// HTTPClient abstracts the HTTP transport for test injection.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BodySource produces the request body for each call attempt. Commit is
// called once per successful iteration so stateful sources (payload
// rotation) can advance their read-interval baseline.
type BodySource interface {
	Next() ([]byte, error)
	Commit()
}

// staticBody replays the captured body verbatim.
type staticBody struct{ body []byte }

func (s staticBody) Next() ([]byte, error) { return s.body, nil }
func (s staticBody) Commit()               {}

// Config configures a single engine instance. Template and Run are
// required; everything else has working defaults and exists for test
// injection.
type Config struct {
	// Template is the authenticated request definition. Owned by the run;
	// never mutated by the engine.
	Template *types.RequestTemplate
	// Run holds the caller-supplied run parameters.
	Run types.RunConfig
	// Client overrides the HTTP client.
	Client HTTPClient
	// Body overrides the request body source. Nil replays the captured
	// body on every call.
	Body BodySource
	// Logger receives run progress. Nil means a stderr logger without run
	// context.
	Logger *log.Logger
	// Rand is the randomness source for pacing. Nil seeds from the clock.
	Rand *rand.Rand
	// Sleep overrides the suspension primitive (tests assert delay
	// sequences without real sleeping).
	Sleep func(ctx context.Context, d time.Duration) error
	// Now overrides the clock used for the run deadline.
	Now func() time.Time
	// Observer, when set, is called synchronously with each CallResult as
	// it is recorded.
	Observer func(types.CallResult)
	// SynckeyRepairURL is the endpoint for best-effort synckey repair when
	// a success response lacks one. Empty disables repair.
	SynckeyRepairURL string
}

// Engine runs one read-simulation sequence. A terminal engine is spent;
// a new run requires a new instance.
type Engine struct {
	cfg   Config
	state types.RunState
}

// New validates the config and returns an Idle engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Template == nil {
		return nil, types.ErrMalformedTemplate
	}
	if err := cfg.Run.Validate(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Body == nil {
		cfg.Body = staticBody{body: cfg.Template.Body}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New("")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg, state: types.StateIdle}, nil
}

// State returns the engine lifecycle state.
func (e *Engine) State() types.RunState {
	return e.state
}

// Run executes up to ReadCount iterations and returns the ordered
// CallResult sequence actually produced. The sequence is gapless: one
// result per attempted iteration, each reflecting its final attempt.
//
// Run returns early (state Aborted) on a session or structural fault,
// on context cancellation, and on the run deadline — the last two are
// graceful aborts, checked at the top of each iteration.
func (e *Engine) Run(ctx context.Context) []types.CallResult {
	if e.state != types.StateIdle {
		e.cfg.Logger.Error("run on spent engine ignored", map[string]any{"state": string(e.state)})
		return nil
	}
	e.state = types.StateRunning

	start := e.cfg.Now()
	var deadline time.Time
	if e.cfg.Run.MaxRunDuration > 0 {
		deadline = start.Add(e.cfg.Run.MaxRunDuration)
	}

	results := make([]types.CallResult, 0, e.cfg.Run.ReadCount)
	aborted := false

	for i := 1; i <= e.cfg.Run.ReadCount; i++ {
		if ctx.Err() != nil {
			e.cfg.Logger.Warn("run canceled, aborting", map[string]any{"iteration": i})
			aborted = true
			break
		}
		if !deadline.IsZero() && e.cfg.Now().After(deadline) {
			e.cfg.Logger.Warn("run deadline reached, aborting", map[string]any{
				"iteration": i,
				"deadline":  e.cfg.Run.MaxRunDuration.String(),
			})
			aborted = true
			break
		}

		// The first call goes out immediately; later calls wait a
		// randomized reading interval.
		if i > 1 {
			delay := PacingDelay(e.cfg.Rand, e.cfg.Run.MinDelay, e.cfg.Run.MaxDelay)
			if err := e.cfg.Sleep(ctx, delay); err != nil {
				aborted = true
				break
			}
		}

		res, abort := e.iterate(ctx, i)
		results = append(results, res)
		if e.cfg.Observer != nil {
			e.cfg.Observer(res)
		}

		if res.Succeeded {
			e.cfg.Logger.Info("read succeeded", map[string]any{
				"iteration":  res.Index,
				"attempts":   res.Attempts,
				"latency_ms": res.LatencyMs,
			})
		} else {
			e.cfg.Logger.Warn("read failed", map[string]any{
				"iteration": res.Index,
				"attempts":  res.Attempts,
				"kind":      string(res.ErrorKind),
				"detail":    res.ErrorDetail,
			})
		}

		if abort {
			aborted = true
			break
		}
	}

	if aborted {
		e.state = types.StateAborted
	} else {
		e.state = types.StateCompleted
	}
	return results
}

// attemptOutcome is the result of one attempt inside an iteration.
type attemptOutcome struct {
	status  int
	latency time.Duration
	err     *types.CallError
}

// iterate runs one iteration: up to MaxRetriesPerCall+1 attempts with
// exponential backoff between them, retrying only transient failures.
// The returned bool is true when the failure aborts the whole run.
func (e *Engine) iterate(ctx context.Context, index int) (types.CallResult, bool) {
	budget := e.cfg.Run.MaxRetriesPerCall + 1

	var out attemptOutcome
	attempts := 0
	for a := 1; a <= budget; a++ {
		if a > 1 {
			backoff := RetryBackoff(e.cfg.Run.RetryBackoffBase, a-1)
			e.cfg.Logger.Debug("retrying call", map[string]any{
				"iteration": index,
				"attempt":   a,
				"backoff":   backoff.String(),
			})
			if err := e.cfg.Sleep(ctx, backoff); err != nil {
				break
			}
		}
		attempts = a
		out = e.attempt(ctx)
		if out.err == nil || !out.err.Kind.Retryable() || ctx.Err() != nil {
			break
		}
	}

	res := types.CallResult{
		Index:     index,
		Attempts:  attempts,
		LatencyMs: out.latency.Milliseconds(),
	}
	if out.err == nil {
		res.Succeeded = true
		res.HTTPStatus = out.status
		e.cfg.Body.Commit()
		return res, false
	}

	res.HTTPStatus = out.err.HTTPStatus
	res.ErrorKind = out.err.Kind
	res.ErrorDetail = out.err.Err.Error()
	return res, out.err.Kind.AbortsRun()
}

// attempt performs a single call against the template's endpoint.
func (e *Engine) attempt(ctx context.Context) attemptOutcome {
	body, err := e.cfg.Body.Next()
	if err != nil {
		// A payload that cannot be constructed will not construct on the
		// next iteration either.
		return attemptOutcome{err: &types.CallError{Kind: types.ErrKindFatal, Err: err}}
	}

	req, err := e.newRequest(ctx, e.cfg.Template.Method, e.cfg.Template.URL, body)
	if err != nil {
		return attemptOutcome{err: &types.CallError{Kind: types.ErrKindFatal, Err: err}}
	}

	started := time.Now()
	resp, err := e.cfg.Client.Do(req)
	latency := time.Since(started)
	if err != nil {
		return attemptOutcome{latency: latency, err: classifyTransportError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return attemptOutcome{status: resp.StatusCode, latency: latency, err: classifyStatus(resp.StatusCode)}
	}

	decoded, cerr := classifyBody(resp.StatusCode, respBody)
	if cerr != nil {
		return attemptOutcome{status: resp.StatusCode, latency: latency, err: cerr}
	}

	if !decoded.hasSynckey {
		e.cfg.Logger.Warn("read response lacks synckey", nil)
		e.repairSynckey(ctx)
	}

	return attemptOutcome{status: resp.StatusCode, latency: latency}
}

// repairSynckey issues the platform's chapterInfos call, which re-seeds
// the account's synckey. Best effort: failure is logged and ignored, the
// read itself already succeeded.
func (e *Engine) repairSynckey(ctx context.Context) {
	if e.cfg.SynckeyRepairURL == "" {
		return
	}

	req, err := e.newRequest(ctx, http.MethodPost, e.cfg.SynckeyRepairURL, []byte(`{"bookIds":["3300060341"]}`))
	if err != nil {
		return
	}
	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		e.cfg.Logger.Warn("synckey repair failed", map[string]any{"error": err.Error()})
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	e.cfg.Logger.Info("synckey repair sent", map[string]any{"status": resp.StatusCode})
}

// newRequest builds a request carrying the template's headers and cookies.
func (e *Engine) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range e.cfg.Template.Headers() {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		req.Header.Set(k, v)
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, v := range e.cfg.Template.Cookies() {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	return req, nil
}
