package streams

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegisterSendsAddress(t *testing.T) {
	var gotMethod, gotKey, gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("X-API-Key")

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		gotAddress = payload["address"]

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", time.Second, nil)
	if err := client.Register(context.Background(), "0xabc"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method: got %s want POST", gotMethod)
	}
	if gotKey != "secret-key" {
		t.Fatalf("api key header: got %q", gotKey)
	}
	if gotAddress != "0xabc" {
		t.Fatalf("address: got %q", gotAddress)
	}
}

func TestRemoveUsesDelete(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", time.Second, nil)
	if err := client.Remove(context.Background(), "0xabc"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if gotMethod != http.MethodDelete {
		t.Fatalf("method: got %s want DELETE", gotMethod)
	}
}

func TestRegisterRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key", time.Second, nil)
	if err := client.Register(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestRegisterRequiresAddress(t *testing.T) {
	client := NewClient("http://localhost", "key", time.Second, nil)
	if err := client.Register(context.Background(), "  "); err == nil {
		t.Fatal("expected error on empty address")
	}
}
