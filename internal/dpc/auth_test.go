package dpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func tokenHandler(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() err=%v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type=%q, want client_credentials", got)
		}
		if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestAuthenticatorToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(tokenHandler(t, &calls))
	defer srv.Close()

	a := &Authenticator{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client()}
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() err=%v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("Token()=%q, want tok-123", tok)
	}

	if _, err := a.Token(context.Background()); err != nil {
		t.Fatalf("Token() second call err=%v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("token endpoint calls=%d, want 2 (no caching)", got)
	}
}

func TestAuthenticatorToken_Rejected(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(tokenHandler(t, &calls))
	defer srv.Close()

	a := &Authenticator{ClientID: "client", ClientSecret: "wrong", TokenURL: srv.URL, HTTPClient: srv.Client()}
	_, err := a.Token(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Token() err=%v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("StatusCode=%d, want 401", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "invalid_client") {
		t.Fatalf("Body=%q, want it to carry the response body", statusErr.Body)
	}
}

func TestAuthenticatorToken_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	a := &Authenticator{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := a.Token(context.Background()); err == nil {
		t.Fatalf("Token() expected error for response without access_token")
	}
}

func TestAuthenticatorToken_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"access_token":"tok-201","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	a := &Authenticator{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client()}
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() err=%v, want 201 accepted", err)
	}
	if tok != "tok-201" {
		t.Fatalf("Token()=%q, want tok-201", tok)
	}
}

func TestAuthenticatorToken_RedirectStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	a := &Authenticator{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL, HTTPClient: srv.Client()}
	_, err := a.Token(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Token() err=%v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotModified {
		t.Fatalf("StatusCode=%d, want 304", statusErr.StatusCode)
	}
}

func TestAuthenticatorToken_DiscoversTokenURL(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/oauth/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/oauth/token", tokenHandler(t, &calls))

	a := &Authenticator{ClientID: "client", ClientSecret: "secret", IssuerURL: srv.URL, HTTPClient: srv.Client()}
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() err=%v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("Token()=%q, want tok-123", tok)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("token endpoint calls=%d, want 1", got)
	}
}
