package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient() *Client {
	return NewClient(0, zerolog.Nop())
}

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer token")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := newTestClient().Get(context.Background(), srv.URL, map[string]string{
		"Authorization": "Bearer token",
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q, want %q", body, `{"ok":true}`)
	}
}

func TestSend_ErrorStatusCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	body, err := newTestClient().Post(context.Background(), srv.URL, nil, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if terr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", terr.StatusCode)
	}
	if terr.Message != `{"error":"bad key"}` {
		t.Errorf("Message = %q, want body text", terr.Message)
	}
	// Body is still returned so callers can decode structured payloads.
	if string(body) != `{"error":"bad key"}` {
		t.Errorf("body = %q, want error payload", body)
	}
}

func TestSend_EmptyErrorBodyUsesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient().Get(context.Background(), srv.URL, nil)
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if terr.Message != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("Message = %q, want status text", terr.Message)
	}
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := newTestClient().Get(context.Background(), srv.URL, nil)
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if terr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for network failure", terr.StatusCode)
	}
}

func TestSend_Delete(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	if _, err := newTestClient().Delete(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
}
