package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/transport"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProductPage is one page of catalog results.
type ProductPage struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// CatalogService wraps the public catalog endpoints. They work anonymously
// but still go through the dispatcher so an authenticated session gets
// user-scoped results (pricing tiers, availability).
type CatalogService struct {
	dispatcher *transport.Dispatcher
}

func NewCatalogService(dispatcher *transport.Dispatcher) *CatalogService {
	return &CatalogService{dispatcher: dispatcher}
}

// ListProducts fetches one catalog page. page is 1-based; limit falls back
// to the default when out of range.
func (s *CatalogService) ListProducts(ctx context.Context, page, limit int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	var out ProductPage
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/products",
		Query: url.Values{
			"page":  {strconv.Itoa(page)},
			"limit": {strconv.Itoa(limit)},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct fetches a single product by id.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var out domain.Product
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/products/" + id,
		Name:   "/products/{id}",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
