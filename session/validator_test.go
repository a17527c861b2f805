package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/types"
)

func testLogger() *log.Logger {
	return log.NewWithWriter("run-test", io.Discard)
}

func testTemplate(t *testing.T) *types.RequestTemplate {
	t.Helper()
	tpl, err := types.NewRequestTemplate(http.MethodPost, "https://weread.example/web/book/read",
		map[string]string{"User-Agent": "Mozilla/5.0"},
		map[string]string{"wr_skey": "old-key", "wr_vid": "12345"},
		nil,
	)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return tpl
}

func TestValidate_RenewedKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		// The preflight must present the captured credential.
		if c, err := r.Cookie("wr_skey"); err != nil || c.Value != "old-key" {
			t.Errorf("credential cookie missing: %v %v", c, err)
		}
		if ua := r.Header.Get("User-Agent"); ua != "Mozilla/5.0" {
			t.Errorf("template headers not forwarded: %q", ua)
		}
		http.SetCookie(w, &http.Cookie{Name: "wr_skey", Value: "fresh-key"})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"succ":1}`))
	}))
	defer ts.Close()

	tpl := testTemplate(t)
	v := NewValidator(testLogger(), WithRenewalURL(ts.URL))
	res := v.Validate(context.Background(), tpl)

	if res.Outcome != Valid {
		t.Fatalf("outcome = %s (%s), want valid", res.Outcome, res.Detail)
	}
	if got := res.Template.Cookie("wr_skey"); got != "fresh-key" {
		t.Errorf("renewed template key %q, want fresh-key", got)
	}
	// The input template keeps the captured key.
	if got := tpl.Cookie("wr_skey"); got != "old-key" {
		t.Errorf("input template mutated: %q", got)
	}
	// Unrelated cookies survive the renewal.
	if got := res.Template.Cookie("wr_vid"); got != "12345" {
		t.Errorf("renewed template lost wr_vid: %q", got)
	}
}

func TestValidate_AuthRejection(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		res := NewValidator(testLogger(), WithRenewalURL(ts.URL)).Validate(context.Background(), testTemplate(t))
		ts.Close()

		if res.Outcome != Expired {
			t.Errorf("status %d: outcome = %s, want expired", status, res.Outcome)
		}
	}
}

func TestValidate_NoFreshKey(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"succ zero", `{"succ":0}`},
		{"negative errcode", `{"errcode":-2012,"errmsg":"login timeout"}`},
		{"no cookie at all", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			res := NewValidator(testLogger(), WithRenewalURL(ts.URL)).Validate(context.Background(), testTemplate(t))
			if res.Outcome != Expired {
				t.Errorf("outcome = %s (%s), want expired", res.Outcome, res.Detail)
			}
		})
	}
}

func TestValidate_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	res := NewValidator(testLogger(), WithRenewalURL(ts.URL)).Validate(context.Background(), testTemplate(t))
	if res.Outcome != Unreachable {
		t.Errorf("outcome = %s, want unreachable", res.Outcome)
	}
}

func TestValidate_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listens anymore

	res := NewValidator(testLogger(), WithRenewalURL(ts.URL)).Validate(context.Background(), testTemplate(t))
	if res.Outcome != Unreachable {
		t.Errorf("outcome = %s, want unreachable", res.Outcome)
	}
	if res.Detail == "" {
		t.Error("unreachable verdict carries no detail")
	}
}

func TestValidate_CustomCookieName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "fresh"})
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tpl, err := types.NewRequestTemplate(http.MethodPost, "https://example.com",
		nil, map[string]string{"session_id": "old"}, nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}

	v := NewValidator(testLogger(), WithRenewalURL(ts.URL), WithSessionCookie("session_id"))
	res := v.Validate(context.Background(), tpl)

	if res.Outcome != Valid {
		t.Fatalf("outcome = %s (%s), want valid", res.Outcome, res.Detail)
	}
	if got := res.Template.Cookie("session_id"); got != "fresh" {
		t.Errorf("renewed key %q, want fresh", got)
	}
}
