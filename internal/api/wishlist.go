package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/transport"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

type wishlistEnvelope struct {
	Wishlist domain.Wishlist `json:"wishlist"`
}

// WishlistService wraps the authenticated wishlist endpoints, caching the
// last server state the same way CartService does.
type WishlistService struct {
	dispatcher *transport.Dispatcher

	mu     sync.RWMutex
	cached *domain.Wishlist
}

func NewWishlistService(dispatcher *transport.Dispatcher) *WishlistService {
	return &WishlistService{dispatcher: dispatcher}
}

// Cached returns a copy of the last server wishlist seen, or nil.
func (s *WishlistService) Cached() *domain.Wishlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return nil
	}
	cp := *s.cached
	cp.Products = append([]string(nil), s.cached.Products...)
	return &cp
}

func (s *WishlistService) setCached(w domain.Wishlist) {
	s.mu.Lock()
	s.cached = &w
	s.mu.Unlock()
}

// Reset drops the cached wishlist.
func (s *WishlistService) Reset() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// List fetches the authenticated wishlist.
func (s *WishlistService) List(ctx context.Context) (*domain.Wishlist, error) {
	var w domain.Wishlist
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/wishlist",
	}, &w)
	if err != nil {
		return nil, err
	}
	s.setCached(w)
	return s.Cached(), nil
}

// Add puts a product on the wishlist.
func (s *WishlistService) Add(ctx context.Context, productID string) (*domain.Wishlist, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var w domain.Wishlist
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/wishlist",
		Body:   map[string]string{"productId": productID},
	}, &w)
	if err != nil {
		return nil, err
	}
	s.setCached(w)
	return s.Cached(), nil
}

// Remove takes a product off the wishlist.
func (s *WishlistService) Remove(ctx context.Context, productID string) (*domain.Wishlist, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var w domain.Wishlist
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodDelete,
		Path:   "/wishlist/" + productID,
		Name:   "/wishlist/{id}",
	}, &w)
	if err != nil {
		return nil, err
	}
	s.setCached(w)
	return s.Cached(), nil
}

// Merge submits the guest wishlist products in one batch. The server unions
// them into the account wishlist and returns the authoritative result.
func (s *WishlistService) Merge(ctx context.Context, productIDs []string) (*domain.Wishlist, error) {
	for _, id := range productIDs {
		if id == "" {
			return nil, apperrors.InvalidInput("product id is required")
		}
	}

	var resp wishlistEnvelope
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/wishlist/merge",
		Body:   map[string]any{"products": productIDs},
	}, &resp)
	if err != nil {
		return nil, err
	}
	s.setCached(resp.Wishlist)
	return s.Cached(), nil
}
