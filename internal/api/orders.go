package api

import (
	"context"
	"net/http"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/transport"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

type ordersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// OrderService wraps the authenticated order history endpoints.
type OrderService struct {
	dispatcher *transport.Dispatcher
}

func NewOrderService(dispatcher *transport.Dispatcher) *OrderService {
	return &OrderService{dispatcher: dispatcher}
}

// ListOrders fetches the signed-in user's order history.
func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var out ordersResponse
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/orders",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// GetOrder fetches a single order by id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}

	var out domain.Order
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/orders/" + id,
		Name:   "/orders/{id}",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
