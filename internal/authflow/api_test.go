package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vbt-go/internal/vbt"
)

func TestAPIClient_Accounts(t *testing.T) {
	t.Run("decodes accounts in API order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, want := r.URL.Path, "/accounts"; got != want {
				t.Errorf("path = %q, want %q", got, want)
			}
			respond(t, w, []Account{{ID: "acc-2", Name: "B"}, {ID: "acc-1", Name: "A"}})
		}))
		t.Cleanup(srv.Close)

		accounts, err := NewAPIClient(srv.URL).Accounts(context.Background(), "bearer-1")
		if err != nil {
			t.Fatalf("Accounts() error = %v", err)
		}
		if len(accounts) != 2 || accounts[0].ID != "acc-2" || accounts[1].ID != "acc-1" {
			t.Errorf("Accounts() = %+v, want API order preserved", accounts)
		}
	})

	t.Run("a trailing slash on the base URL is tolerated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, want := r.URL.Path, "/accounts"; got != want {
				t.Errorf("path = %q, want %q", got, want)
			}
			respond(t, w, []Account{})
		}))
		t.Cleanup(srv.Close)

		if _, err := NewAPIClient(srv.URL + "/").Accounts(context.Background(), "bearer-1"); err != nil {
			t.Fatalf("Accounts() error = %v", err)
		}
	})

	t.Run("surfaces envelope errors with code and message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"authentication error"}],"result":null}`))
		}))
		t.Cleanup(srv.Close)

		_, err := NewAPIClient(srv.URL).Accounts(context.Background(), "bearer-1")
		if err == nil {
			t.Fatal("Accounts() expected error")
		}
		if !strings.Contains(err.Error(), "10000") || !strings.Contains(err.Error(), "authentication error") {
			t.Errorf("error %q does not carry the envelope code and message", err)
		}
	})

	t.Run("surfaces non-200 statuses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		t.Cleanup(srv.Close)

		_, err := NewAPIClient(srv.URL).Accounts(context.Background(), "bearer-1")
		if err == nil {
			t.Fatal("Accounts() expected error")
		}
		if !strings.Contains(err.Error(), "403") {
			t.Errorf("error %q does not carry the HTTP status", err)
		}
	})

	t.Run("transport failures wrap as connectivity errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		_, err := NewAPIClient(srv.URL).Accounts(context.Background(), "bearer-1")
		var connErr *vbt.ConnectivityError
		if !errors.As(err, &connErr) {
			t.Fatalf("Accounts() error = %v, want ConnectivityError", err)
		}
	})
}

func TestAPIClient_IssueStorageToken(t *testing.T) {
	t.Run("posts to the account's tokens endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, want := r.URL.Path, "/accounts/acc-1/tokens"; got != want {
				t.Errorf("path = %q, want %q", got, want)
			}
			if got, want := r.Method, http.MethodPost; got != want {
				t.Errorf("method = %q, want %q", got, want)
			}
			if got, want := r.Header.Get("Content-Type"), "application/json"; got != want {
				t.Errorf("Content-Type = %q, want %q", got, want)
			}
			respond(t, w, StorageToken{ID: "key-id-1", Value: "token-value-1"})
		}))
		t.Cleanup(srv.Close)

		tok, err := NewAPIClient(srv.URL).IssueStorageToken(context.Background(), "bearer-1", "acc-1")
		if err != nil {
			t.Fatalf("IssueStorageToken() error = %v", err)
		}
		if tok.ID != "key-id-1" || tok.Value != "token-value-1" {
			t.Errorf("IssueStorageToken() = %+v", tok)
		}
	})

	t.Run("rejects an incomplete token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respond(t, w, StorageToken{ID: "key-id-1"})
		}))
		t.Cleanup(srv.Close)

		if _, err := NewAPIClient(srv.URL).IssueStorageToken(context.Background(), "bearer-1", "acc-1"); err == nil {
			t.Fatal("IssueStorageToken() expected error for a token without a value")
		}
	})
}
