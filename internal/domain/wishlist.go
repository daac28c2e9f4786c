package domain

// Wishlist is the authenticated wishlist as returned by the backend.
type Wishlist struct {
	UserID   string   `json:"user_id,omitempty"`
	Products []string `json:"products"`
}

// Contains reports whether the wishlist holds the given product.
func (w *Wishlist) Contains(productID string) bool {
	for _, id := range w.Products {
		if id == productID {
			return true
		}
	}
	return false
}

// Product is a catalog product summary used by the catalog endpoints.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock,omitempty"`
}

// Order is a placed order summary used by the order endpoints.
type Order struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Items       []CartItem `json:"items"`
	TotalAmount int64      `json:"total_amount"`
	Currency    string     `json:"currency"`
}
