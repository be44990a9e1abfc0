package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/api"
	"github.com/mmeshcher/pastry-storefront/internal/model"
)

func newTestClient(url string) *Client {
	return NewClient(url, time.Second, zap.NewNop())
}

func TestProducts_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/products" {
			t.Fatalf("path = %s, want /api/products", r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatalf("X-Request-ID header is missing")
		}

		resp := []api.Product{
			{ID: "1", Name: "Cupcake Vanille", Price: 3.5, Available: true, Category: "Cupcakes"},
			{ID: "4", Name: "Paris-Brest", Price: 6, Available: true, InPromotion: true, DiscountRate: 10, Category: "Gâteaux"},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	products, err := newTestClient(ts.URL).Products(context.Background())
	if err != nil {
		t.Fatalf("Products error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len(products) = %d, want 2", len(products))
	}
	if products[1].ID != "4" || !products[1].InPromotion || products[1].DiscountRate != 10 {
		t.Fatalf("unexpected product: %+v", products[1])
	}
}

func TestLogin_StoresCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if creds.Email != "a@x.com" || creds.Password != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "token", Path: "/"})
		_ = json.NewEncoder(w).Encode(api.User{ID: 7, FirstName: "A", Email: "a@x.com"})
	})
	mux.HandleFunc("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("auth_token"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]api.CartLine{{UserID: 7, ProductID: "1", Quantity: 2}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := newTestClient(ts.URL)
	ctx := context.Background()

	u, err := client.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if u.ID != 7 || u.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", u)
	}

	lines, err := client.Cart(ctx)
	if err != nil {
		t.Fatalf("Cart error: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart: %+v", lines)
	}

	client.ResetSession()
	_, err = client.Cart(ctx)
	if model.KindOf(err) != model.KindAuth {
		t.Fatalf("kind after reset = %v, want auth", model.KindOf(err))
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name string
		code int
		want model.Kind
	}{
		{name: "unauthorized", code: http.StatusUnauthorized, want: model.KindAuth},
		{name: "conflict", code: http.StatusConflict, want: model.KindDuplicate},
		{name: "not found", code: http.StatusNotFound, want: model.KindNotFound},
		{name: "bad request", code: http.StatusBadRequest, want: model.KindValidation},
		{name: "server error", code: http.StatusInternalServerError, want: model.KindConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(tt.code), tt.code)
			}))
			defer ts.Close()

			_, err := newTestClient(ts.URL).Register(context.Background(), model.User{Email: "a@x.com"}, "secret1")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.code)
			}
			if got := model.KindOf(err); got != tt.want {
				t.Fatalf("kind = %v, want %v", got, tt.want)
			}
			if !IsStatus(err, tt.code) {
				t.Fatalf("IsStatus(%d) = false for %v", tt.code, err)
			}
		})
	}
}

func TestPlaceOrder_SendsBody(t *testing.T) {
	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var o api.Order
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if o.TotalAmount != 15 || o.PaymentMethod != "card" || o.CardRef != "**** 1111" {
			t.Fatalf("unexpected order body: %+v", o)
		}
		if !o.CreatedAt.Equal(created) {
			t.Fatalf("created_at = %v, want %v", o.CreatedAt, created)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.Created{ID: 31})
	}))
	defer ts.Close()

	id, err := newTestClient(ts.URL).PlaceOrder(context.Background(), model.Order{
		ID:              5,
		UserID:          7,
		TotalAmount:     15,
		PaymentMethod:   model.PaymentCard,
		CardRef:         "**** 1111",
		ShippingAddress: "1 Main St",
		CreatedAt:       created,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if id != 31 {
		t.Fatalf("id = %d, want 31", id)
	}
}

func TestUpdateOrderStatusAndReview(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	ctx := context.Background()

	if err := client.UpdateOrderStatus(ctx, 3, model.OrderStatusPreparing); err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if err := client.SubmitReview(ctx, 3, "great"); err != nil {
		t.Fatalf("SubmitReview error: %v", err)
	}

	want := []string{"PATCH /api/orders/3/status", "PUT /api/orders/3/review"}
	if len(paths) != len(want) || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient("", 0, zap.NewNop())
	if client.Enabled() {
		t.Fatalf("client without base URL must be disabled")
	}

	_, err := client.Products(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if model.KindOf(err) != model.KindConnectivity {
		t.Fatalf("kind = %v, want connectivity", model.KindOf(err))
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client must be disabled")
	}
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(url).Products(context.Background())
	if model.KindOf(err) != model.KindConnectivity {
		t.Fatalf("kind = %v, want connectivity", model.KindOf(err))
	}
}

func TestTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 50*time.Millisecond, zap.NewNop())
	_, err := client.Orders(context.Background())
	if model.KindOf(err) != model.KindConnectivity {
		t.Fatalf("kind = %v, want connectivity", model.KindOf(err))
	}
}

func TestRetriesUnavailable(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]api.Product{{ID: "1", Name: "Cupcake"}})
	}))
	defer ts.Close()

	products, err := NewClient(ts.URL, time.Second, zap.NewNop(), WithRetries(1)).Products(context.Background())
	if err != nil {
		t.Fatalf("Products error: %v", err)
	}
	if calls != 2 || len(products) != 1 {
		t.Fatalf("calls = %d, products = %d, want 2 and 1", calls, len(products))
	}
}

func TestDoesNotRetryServerError(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, time.Second, zap.NewNop(), WithRetries(3)).PlaceOrder(context.Background(), model.Order{UserID: 1})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
