package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

func TestClient_CreateOrder(t *testing.T) {
	t.Run("posts amount in minor units with basic auth", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.URL.Path != "/v1/orders" {
				t.Errorf("expected /v1/orders, got %s", r.URL.Path)
			}
			user, pass, ok := r.BasicAuth()
			if !ok || user != "key_id" || pass != "key_secret" {
				t.Errorf("unexpected credentials %q/%q", user, pass)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}

			var body createOrderRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Amount != 10000 || body.Currency != "INR" || body.Receipt != "receipt_1_u1" {
				t.Errorf("unexpected body: %+v", body)
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"order_abc","amount":10000,"currency":"INR","receipt":"receipt_1_u1","status":"created"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL+"/", "key_id", "key_secret", server.Client())
		order, err := client.CreateOrder(context.Background(), 10000, "INR", "receipt_1_u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.ID != "order_abc" {
			t.Errorf("expected order_abc, got %s", order.ID)
		}
		if order.Amount != 10000 {
			t.Errorf("expected amount 10000, got %d", order.Amount)
		}
		if order.Status != "created" {
			t.Errorf("expected status created, got %s", order.Status)
		}
	})

	t.Run("surfaces gateway error description", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be at least INR 1.00"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		_, err := client.CreateOrder(context.Background(), 50, "INR", "r")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "at least INR 1.00") {
			t.Errorf("expected gateway description in error, got %v", err)
		}
	})

	t.Run("rejects non-positive amounts without calling out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		_, err := client.CreateOrder(context.Background(), 0, "INR", "r")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := client.CreateOrder(ctx, 100, "INR", "r"); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestClient_FetchOrder(t *testing.T) {
	t.Run("reads the order amount", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", r.Method)
			}
			if r.URL.Path != "/v1/orders/order_abc" {
				t.Errorf("expected /v1/orders/order_abc, got %s", r.URL.Path)
			}
			if _, _, ok := r.BasicAuth(); !ok {
				t.Error("expected basic auth")
			}
			_, _ = w.Write([]byte(`{"id":"order_abc","amount":26000,"currency":"INR","receipt":"receipt_1_u1","status":"paid"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		order, err := client.FetchOrder(context.Background(), "order_abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Amount != 26000 {
			t.Errorf("expected amount 26000, got %d", order.Amount)
		}
		if order.Status != "paid" {
			t.Errorf("expected status paid, got %s", order.Status)
		}
	})

	t.Run("unknown order is not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		_, err := client.FetchOrder(context.Background(), "order_missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected gateway description in error, got %v", err)
		}
	})

	t.Run("empty id is rejected without calling out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}))
		defer server.Close()

		client := NewClient(server.URL, "key_id", "key_secret", server.Client())
		if _, err := client.FetchOrder(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}
