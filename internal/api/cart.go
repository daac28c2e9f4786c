package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/transport"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

// maxLineQuantity matches the backend's per-line cap.
const maxLineQuantity = 100

// cartLine is the wire form of a cart line in requests.
type cartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type cartEnvelope struct {
	Cart domain.Cart `json:"cart"`
}

// CartService wraps the authenticated cart endpoints and keeps a local copy
// of the last cart the server returned. The server is authoritative; the
// cached copy only exists so callers can render without a round trip.
type CartService struct {
	dispatcher *transport.Dispatcher

	mu     sync.RWMutex
	cached *domain.Cart
}

func NewCartService(dispatcher *transport.Dispatcher) *CartService {
	return &CartService{dispatcher: dispatcher}
}

// Cached returns a copy of the last server cart seen, or nil when no cart
// call has completed yet.
func (s *CartService) Cached() *domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return nil
	}
	cp := *s.cached
	cp.Items = append([]domain.CartItem(nil), s.cached.Items...)
	return &cp
}

func (s *CartService) setCached(cart domain.Cart) {
	s.mu.Lock()
	s.cached = &cart
	s.mu.Unlock()
}

// Reset drops the cached cart, used when the session ends.
func (s *CartService) Reset() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Get fetches the authenticated cart.
func (s *CartService) Get(ctx context.Context) (*domain.Cart, error) {
	var cart domain.Cart
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/cart",
	}, &cart)
	if err != nil {
		return nil, err
	}
	s.setCached(cart)
	return s.Cached(), nil
}

// AddItem adds a product to the authenticated cart. price is the unit price
// snapshot in cents.
func (s *CartService) AddItem(ctx context.Context, productID string, quantity int, price int64) (*domain.Cart, error) {
	if err := validateLine(productID, quantity, price); err != nil {
		return nil, err
	}

	var cart domain.Cart
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/cart/items",
		Body:   cartLine{ProductID: productID, Quantity: quantity, Price: price},
	}, &cart)
	if err != nil {
		return nil, err
	}
	s.setCached(cart)
	return s.Cached(), nil
}

// UpdateQuantity sets the quantity of an existing line.
func (s *CartService) UpdateQuantity(ctx context.Context, productID string, quantity int) (*domain.Cart, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 || quantity > maxLineQuantity {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}

	var cart domain.Cart
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPut,
		Path:   "/cart/items/" + productID,
		Name:   "/cart/items/{id}",
		Body:   map[string]int{"quantity": quantity},
	}, &cart)
	if err != nil {
		return nil, err
	}
	s.setCached(cart)
	return s.Cached(), nil
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, productID string) (*domain.Cart, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var cart domain.Cart
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodDelete,
		Path:   "/cart/items/" + productID,
		Name:   "/cart/items/{id}",
	}, &cart)
	if err != nil {
		return nil, err
	}
	s.setCached(cart)
	return s.Cached(), nil
}

// Merge submits a deduplicated batch of guest lines to the server's merge
// endpoint. The server folds them into the account cart, summing quantities
// for products it already holds, and returns the authoritative result.
func (s *CartService) Merge(ctx context.Context, lines []domain.CartItem) (*domain.Cart, error) {
	wire := make([]cartLine, 0, len(lines))
	for _, l := range lines {
		if err := validateLine(l.ProductID, l.Quantity, l.Price); err != nil {
			return nil, err
		}
		wire = append(wire, cartLine{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
	}

	var resp cartEnvelope
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/cart/merge",
		Body:   map[string]any{"items": wire},
	}, &resp)
	if err != nil {
		return nil, err
	}
	s.setCached(resp.Cart)
	return s.Cached(), nil
}

func validateLine(productID string, quantity int, price int64) error {
	if productID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 || quantity > maxLineQuantity {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}
	if price < 0 {
		return apperrors.InvalidInput("price must not be negative")
	}
	return nil
}
