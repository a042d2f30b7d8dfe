package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func signBody(body, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func TestWebhookAuthAcceptsValidSignature(t *testing.T) {
	const secret = "hook-secret"
	const body = `{"batchId":"b-1","posts":[]}`

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read restored body: %v", err)
		}
		got = string(b)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	req.Header.Set("x-webhook-signature", signBody(body, secret))
	rec := httptest.NewRecorder()

	WebhookAuthMiddleware(secret)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got != body {
		t.Fatalf("handler saw a different body: %q", got)
	}
}

func TestWebhookAuthRejectsBadSignature(t *testing.T) {
	const secret = "hook-secret"
	const body = `{"batchId":"b-1"}`

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on a bad signature")
	})

	cases := map[string]string{
		"missing":      "",
		"not hex":      "zzzz",
		"wrong secret": signBody(body, "other-secret"),
		"wrong body":   signBody(body+" ", secret),
	}
	for name, sig := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
		if sig != "" {
			req.Header.Set("x-webhook-signature", sig)
		}
		rec := httptest.NewRecorder()
		WebhookAuthMiddleware(secret)(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestWebhookAuthRejectsWhenSecretUnset(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a configured secret")
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{}"))
	req.Header.Set("x-webhook-signature", signBody("{}", ""))
	rec := httptest.NewRecorder()

	WebhookAuthMiddleware("")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAuthAcceptsMatchingToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/cron/publish", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()

	BearerAuthMiddleware("cron-secret")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBearerAuthRejectsBadTokens(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	})
	cases := map[string]string{
		"missing header": "",
		"no prefix":      "cron-secret",
		"wrong token":    "Bearer nope",
		"empty token":    "Bearer ",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/cron/publish", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		BearerAuthMiddleware("cron-secret")(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}
