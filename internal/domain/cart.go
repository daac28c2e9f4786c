package domain

// Cart represents a shopping cart as returned by the backend.
type Cart struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id,omitempty"`
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency"`
}

// CartItem represents a single line in a cart. Price is the unit price in
// cents, snapshotted at the time the item was added.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// TotalAmount calculates the total price of all items in the cart (in cents).
func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the total number of items in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the cart item matching the given product
// ID, or -1 if not found.
func (c *Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// MergeLine folds a line into the item list, keeping at most one line per
// product: an existing line has its quantity increased and keeps the incoming
// price snapshot, a new product is appended.
func (c *Cart) MergeLine(line CartItem) {
	if i := c.FindItemIndex(line.ProductID); i >= 0 {
		c.Items[i].Quantity += line.Quantity
		c.Items[i].Price = line.Price
		if line.Name != "" {
			c.Items[i].Name = line.Name
		}
		return
	}
	c.Items = append(c.Items, line)
}
