package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProvider_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("room"); got != "agent-room" {
			t.Errorf("expected room=agent-room, got %q", got)
		}
		if got := r.URL.Query().Get("identity"); got != "user" {
			t.Errorf("expected identity=user, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	tok, err := p.Token(context.Background(), "agent-room", "user")
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "abc" {
		t.Errorf("expected token abc, got %q", tok)
	}
}

func TestHTTPProvider_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	if _, err := p.Token(context.Background(), "r", "i"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHTTPProvider_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	if _, err := p.Token(context.Background(), "r", "i"); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestHTTPProvider_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":""}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, time.Second)
	_, err := p.Token(context.Background(), "r", "i")
	if !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	p := NewHTTPProvider(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := p.Token(context.Background(), "r", "i")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not bounded")
	}
}

func TestStatic(t *testing.T) {
	tok, err := Static("dev-token").Token(context.Background(), "r", "i")
	if err != nil || tok != "dev-token" {
		t.Fatalf("expected dev-token, got %q, %v", tok, err)
	}
	if _, err := Static("").Token(context.Background(), "r", "i"); !errors.Is(err, ErrNoFallback) {
		t.Fatalf("expected ErrNoFallback, got %v", err)
	}
}
