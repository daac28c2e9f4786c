// Package guest persists the anonymous shopping state: a cart and a wishlist
// keyed by a locally generated guest identity. The buffer never talks to the
// backend; it exists so that items picked while logged out survive restarts
// and can be merged into the account cart at login.
package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/StorefrontGo/internal/domain"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

const (
	identityKey    = "guest:identity"
	cartKeyPrefix  = "guest:cart:"
	wishKeyPrefix  = "guest:wishlist:"
	maxQuantityPer = 100
	// Concurrent writers retry the versioned save this many times before
	// giving up with a conflict.
	maxSaveAttempts = 16
)

var errVersionConflict = errors.New("guest cart version conflict")

// cartDocument is the stored shape of the guest cart. Version increments on
// every successful save and guards against lost updates from concurrent
// writers.
type cartDocument struct {
	Version int               `json:"version"`
	Lines   []domain.CartItem `json:"lines"`
}

// Buffer is the Redis-backed anonymous cart/wishlist store.
type Buffer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBuffer creates a guest buffer on the given Redis client. Entries expire
// after ttl so abandoned guest carts do not accumulate.
func NewBuffer(client *redis.Client, ttl time.Duration) *Buffer {
	return &Buffer{client: client, ttl: ttl}
}

// Identity returns the persisted guest ID, generating and storing one on
// first use. The ID is stable across restarts until Discard is called.
func (b *Buffer) Identity(ctx context.Context) (string, error) {
	id, err := b.client.Get(ctx, identityKey).Result()
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("redis get guest identity: %w", err)
	}

	id = uuid.New().String()
	// SetNX keeps the first writer's ID if two calls race.
	ok, err := b.client.SetNX(ctx, identityKey, id, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis set guest identity: %w", err)
	}
	if !ok {
		return b.client.Get(ctx, identityKey).Result()
	}
	return id, nil
}

// AddLine adds a product to the guest cart. Adding a product that is already
// present increments its quantity instead of appending a duplicate line.
// The cart is saved with an optimistic version check, so increments from
// concurrent callers are never lost.
func (b *Buffer) AddLine(ctx context.Context, productID string, quantity int, price int64) error {
	if productID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if quantity <= 0 {
		return apperrors.InvalidInput("quantity must be greater than 0")
	}
	if price < 0 {
		return apperrors.InvalidInput("price must not be negative")
	}

	id, err := b.Identity(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		doc, err := b.loadDocument(ctx, id)
		if err != nil {
			return err
		}

		lines, err := mergeLine(doc.Lines, productID, quantity, price)
		if err != nil {
			return err
		}

		ok, err := b.saveIfVersion(ctx, id, lines, doc.Version)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return apperrors.Conflict("guest cart was modified concurrently, please retry")
}

// mergeLine folds a new line into the cart, incrementing the quantity of an
// existing product and refreshing its price.
func mergeLine(lines []domain.CartItem, productID string, quantity int, price int64) ([]domain.CartItem, error) {
	for i := range lines {
		if lines[i].ProductID == productID {
			newQty := lines[i].Quantity + quantity
			if newQty > maxQuantityPer {
				return nil, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", maxQuantityPer))
			}
			lines[i].Quantity = newQty
			lines[i].Price = price
			return lines, nil
		}
	}
	return append(lines, domain.CartItem{ProductID: productID, Price: price, Quantity: quantity}), nil
}

// Lines returns the guest cart contents. An absent cart is an empty cart.
func (b *Buffer) Lines(ctx context.Context) ([]domain.CartItem, error) {
	id, err := b.Identity(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := b.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Lines, nil
}

// ClearCart removes the guest cart, keeping the identity and wishlist.
func (b *Buffer) ClearCart(ctx context.Context) error {
	id, err := b.Identity(ctx)
	if err != nil {
		return err
	}
	if err := b.client.Del(ctx, cartKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del guest cart: %w", err)
	}
	return nil
}

// AddWishlistProduct records a product in the guest wishlist. Re-adding an
// already-saved product is a no-op.
func (b *Buffer) AddWishlistProduct(ctx context.Context, productID string) error {
	if productID == "" {
		return apperrors.InvalidInput("product id is required")
	}

	id, err := b.Identity(ctx)
	if err != nil {
		return err
	}

	key := wishKeyPrefix + id
	pipe := b.client.TxPipeline()
	pipe.SAdd(ctx, key, productID)
	pipe.Expire(ctx, key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sadd guest wishlist: %w", err)
	}
	return nil
}

// WishlistProducts returns the guest wishlist product IDs.
func (b *Buffer) WishlistProducts(ctx context.Context) ([]string, error) {
	id, err := b.Identity(ctx)
	if err != nil {
		return nil, err
	}

	products, err := b.client.SMembers(ctx, wishKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers guest wishlist: %w", err)
	}
	return products, nil
}

// ClearWishlist removes the guest wishlist, keeping the identity and cart.
func (b *Buffer) ClearWishlist(ctx context.Context) error {
	id, err := b.Identity(ctx)
	if err != nil {
		return err
	}
	if err := b.client.Del(ctx, wishKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del guest wishlist: %w", err)
	}
	return nil
}

// Empty reports whether both the guest cart and wishlist hold nothing.
func (b *Buffer) Empty(ctx context.Context) (bool, error) {
	lines, err := b.Lines(ctx)
	if err != nil {
		return false, err
	}
	if len(lines) > 0 {
		return false, nil
	}
	products, err := b.WishlistProducts(ctx)
	if err != nil {
		return false, err
	}
	return len(products) == 0, nil
}

// Discard drops the cart, the wishlist, and the guest identity itself. Called
// once the guest state has been merged into an account; the old ID is never
// used again.
func (b *Buffer) Discard(ctx context.Context) error {
	id, err := b.client.Get(ctx, identityKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get guest identity: %w", err)
	}

	if err := b.client.Del(ctx, cartKeyPrefix+id, wishKeyPrefix+id, identityKey).Err(); err != nil {
		return fmt.Errorf("redis del guest state: %w", err)
	}
	return nil
}

func (b *Buffer) loadDocument(ctx context.Context, guestID string) (cartDocument, error) {
	return readDocument(ctx, b.client, cartKeyPrefix+guestID)
}

func readDocument(ctx context.Context, c redis.Cmdable, key string) (cartDocument, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return cartDocument{Lines: []domain.CartItem{}}, nil
		}
		return cartDocument{}, fmt.Errorf("redis get guest cart: %w", err)
	}

	var doc cartDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return cartDocument{}, fmt.Errorf("unmarshal guest cart: %w", err)
	}
	return doc, nil
}

// saveIfVersion writes the cart only if the stored version still equals
// expectedVersion, bumping the version on success. It watches the cart key so
// a write that lands between read and save aborts the transaction instead of
// being overwritten.
func (b *Buffer) saveIfVersion(ctx context.Context, guestID string, lines []domain.CartItem, expectedVersion int) (bool, error) {
	key := cartKeyPrefix + guestID

	err := b.client.Watch(ctx, func(tx *redis.Tx) error {
		doc, err := readDocument(ctx, tx, key)
		if err != nil {
			return err
		}
		if doc.Version != expectedVersion {
			return errVersionConflict
		}

		data, err := json.Marshal(cartDocument{Version: expectedVersion + 1, Lines: lines})
		if err != nil {
			return fmt.Errorf("marshal guest cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, b.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionConflict), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis save guest cart: %w", err)
	}
}
