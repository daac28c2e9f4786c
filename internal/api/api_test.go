package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/session"
	"github.com/utafrali/StorefrontGo/internal/transport"
	"github.com/utafrali/StorefrontGo/pkg/httpclient"
)

// storeBackend is a minimal in-memory storefront backend for service tests.
// It issues "granted-token" on login and refresh and keeps one cart and one
// wishlist per run.
type storeBackend struct {
	t *testing.T

	mu       sync.Mutex
	cart     domain.Cart
	wishlist domain.Wishlist

	loginFails   bool
	logoutFails  bool
	refreshFails bool

	srv *httptest.Server
}

const testToken = "granted-token"

var testUser = domain.User{ID: "user-1", Email: "shopper@example.com", FirstName: "Sam", Role: "customer"}

func newStoreBackend(t *testing.T) *storeBackend {
	t.Helper()
	b := &storeBackend{
		t:        t,
		cart:     domain.Cart{ID: "cart-1", Currency: "USD"},
		wishlist: domain.Wishlist{UserID: "user-1"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+transport.LoginPath, b.handleLogin)
	mux.HandleFunc("POST "+transport.LogoutPath, b.handleLogout)
	mux.HandleFunc("POST "+transport.RefreshPath, b.handleRefresh)
	mux.HandleFunc("GET /cart", b.authed(b.handleGetCart))
	mux.HandleFunc("POST /cart/items", b.authed(b.handleAddItem))
	mux.HandleFunc("PUT /cart/items/{id}", b.authed(b.handleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{id}", b.authed(b.handleRemoveItem))
	mux.HandleFunc("POST /cart/merge", b.authed(b.handleCartMerge))
	mux.HandleFunc("GET /wishlist", b.authed(b.handleGetWishlist))
	mux.HandleFunc("POST /wishlist", b.authed(b.handleWishlistAdd))
	mux.HandleFunc("DELETE /wishlist/{id}", b.authed(b.handleWishlistRemove))
	mux.HandleFunc("POST /wishlist/merge", b.authed(b.handleWishlistMerge))
	mux.HandleFunc("GET /products", b.handleListProducts)
	mux.HandleFunc("GET /products/{id}", b.handleGetProduct)
	mux.HandleFunc("GET /orders", b.authed(b.handleListOrders))
	mux.HandleFunc("GET /orders/{id}", b.authed(b.handleGetOrder))

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *storeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]string{"code": "UNAUTHORIZED", "message": "missing or expired token"},
			})
			return
		}
		next(w, r)
	}
}

func (b *storeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if b.loginFails {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": testToken, "user": testUser})
}

func (b *storeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if b.logoutFails {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]string{"code": "INTERNAL", "message": "boom"},
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *storeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if b.refreshFails {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": testToken, "user": testUser})
}

func (b *storeBackend) handleGetCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.cart)
}

func (b *storeBackend) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var line struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Price     int64  `json:"price"`
	}
	json.NewDecoder(r.Body).Decode(&line)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart.MergeLine(domain.CartItem{ProductID: line.ProductID, Quantity: line.Quantity, Price: line.Price})
	writeJSON(w, http.StatusOK, b.cart)
}

func (b *storeBackend) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.cart.FindItemIndex(r.PathValue("id")); i >= 0 {
		b.cart.Items[i].Quantity = body.Quantity
	}
	writeJSON(w, http.StatusOK, b.cart)
}

func (b *storeBackend) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.cart.FindItemIndex(r.PathValue("id")); i >= 0 {
		b.cart.Items = append(b.cart.Items[:i], b.cart.Items[i+1:]...)
	}
	writeJSON(w, http.StatusOK, b.cart)
}

func (b *storeBackend) handleCartMerge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
			Price     int64  `json:"price"`
		} `json:"items"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range body.Items {
		b.cart.MergeLine(domain.CartItem{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": b.cart})
}

func (b *storeBackend) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.wishlist)
}

func (b *storeBackend) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"productId"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.wishlist.Contains(body.ProductID) {
		b.wishlist.Products = append(b.wishlist.Products, body.ProductID)
	}
	writeJSON(w, http.StatusOK, b.wishlist)
}

func (b *storeBackend) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.wishlist.Products[:0]
	for _, p := range b.wishlist.Products {
		if p != id {
			out = append(out, p)
		}
	}
	b.wishlist.Products = out
	writeJSON(w, http.StatusOK, b.wishlist)
}

func (b *storeBackend) handleWishlistMerge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Products []string `json:"products"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range body.Products {
		if !b.wishlist.Contains(p) {
			b.wishlist.Products = append(b.wishlist.Products, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": b.wishlist})
}

func (b *storeBackend) handleListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProductPage{
		Products: []domain.Product{
			{ID: "p1", Name: "Keyboard", Price: 4999},
			{ID: "p2", Name: "Mouse", Price: 1999},
		},
		Total: 2,
		Page:  1,
		Limit: 20,
	})
}

func (b *storeBackend) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id != "p1" {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "no such product"},
		})
		return
	}
	writeJSON(w, http.StatusOK, domain.Product{ID: "p1", Name: "Keyboard", Price: 4999})
}

func (b *storeBackend) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": []domain.Order{{ID: "o1", Status: "shipped", TotalAmount: 4999, Currency: "USD"}},
	})
}

func (b *storeBackend) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.Order{ID: r.PathValue("id"), Status: "shipped", TotalAmount: 4999, Currency: "USD"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type serviceRig struct {
	backend    *storeBackend
	store      *session.Store
	coord      *transport.Coordinator
	dispatcher *transport.Dispatcher
	auth       *AuthService
	cart       *CartService
	wishlist   *WishlistService
	catalog    *CatalogService
	orders     *OrderService
}

func newServiceRig(t *testing.T) *serviceRig {
	t.Helper()
	backend := newStoreBackend(t)

	client := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 20,
	})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := session.New()
	coord := transport.NewCoordinator(store, client, backend.srv.URL, 1, logger)
	dispatcher := transport.NewDispatcher(client, store, coord, backend.srv.URL, logger)

	return &serviceRig{
		backend:    backend,
		store:      store,
		coord:      coord,
		dispatcher: dispatcher,
		auth:       NewAuthService(dispatcher, coord, store, logger),
		cart:       NewCartService(dispatcher),
		wishlist:   NewWishlistService(dispatcher),
		catalog:    NewCatalogService(dispatcher),
		orders:     NewOrderService(dispatcher),
	}
}
